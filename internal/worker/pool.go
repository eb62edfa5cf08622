package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remindhub/messaging-scheduler/internal/queue"
	"github.com/remindhub/messaging-scheduler/internal/ratelimiter"
	"github.com/remindhub/messaging-scheduler/internal/repository"
	"github.com/remindhub/messaging-scheduler/internal/scheduling"
	"github.com/remindhub/messaging-scheduler/internal/sender"
	"github.com/remindhub/messaging-scheduler/internal/service"
)

// MetricHooks carries the metric callbacks the pool injects into its
// workers. Any nil hook is a no-op.
type MetricHooks struct {
	OnSent   func(ct scheduling.ContentType, latency time.Duration)
	OnFailed func(ct scheduling.ContentType)
}

// Pool runs a fixed set of workers against a shared queue.
type Pool struct {
	workers []*Worker
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewPool(
	size int,
	q *queue.DueQueue,
	schedules repository.ScheduleRepository,
	instances repository.InstanceRepository,
	broadcasts repository.BroadcastRepository,
	cases repository.CaseRepository,
	send sender.Sender,
	limiter *ratelimiter.ContentLimiters,
	envs service.EnvFactory,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = NewWorker(i+1, q, schedules, instances, broadcasts, cases,
			send, limiter, envs, logger, hooks.OnSent, hooks.OnFailed)
	}
	return &Pool{workers: workers, logger: logger}
}

// Start launches all workers. They run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool", zap.Int("size", len(p.workers)))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}
