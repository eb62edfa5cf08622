package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/remindhub/messaging-scheduler/internal/queue"
	"github.com/remindhub/messaging-scheduler/internal/repository"
	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// SweepWorker polls the database for schedule instances whose next event is
// due and enqueues them for processing.
//
// Claiming happens in the database (FOR UPDATE SKIP LOCKED plus a stale-claim
// window), so multiple server processes can sweep concurrently without
// double-sending. The sweep is also the retry path: a failed send leaves the
// instance due, and the next tick after the claim goes stale picks it up
// again.
type SweepWorker struct {
	instances repository.InstanceRepository
	q         *queue.DueQueue
	clock     scheduling.Clock
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewSweepWorker(
	instances repository.InstanceRepository,
	q *queue.DueQueue,
	clock scheduling.Clock,
	interval time.Duration,
	batchSize int,
	logger *zap.Logger,
) *SweepWorker {
	return &SweepWorker{
		instances: instances,
		q:         q,
		clock:     clock,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run ticks every interval and enqueues any instances that are now due.
// Stops cleanly when ctx is cancelled.
func (sw *SweepWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.logger.Info("sweep worker started", zap.Duration("interval", sw.interval))

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("sweep worker stopping")
			return
		case <-ticker.C:
			sw.poll(ctx)
		}
	}
}

func (sw *SweepWorker) poll(ctx context.Context) {
	instances, err := sw.instances.ClaimDue(ctx, sw.clock.UTCNow(), sw.batchSize)
	if err != nil {
		sw.logger.Error("sweep poll error", zap.Error(err))
		return
	}

	for _, inst := range instances {
		if err := sw.q.Enqueue(queue.Item{
			InstanceID: inst.ID,
			ScheduleID: inst.ScheduleID,
			Kind:       inst.ScheduleKind,
		}); err != nil {
			// Claim stays on the row; it goes stale and the instance is
			// swept again once the queue drains.
			sw.logger.Warn("could not enqueue due instance",
				zap.String("id", inst.ID.String()), zap.Error(err))
			continue
		}
	}

	if len(instances) > 0 {
		sw.logger.Info("enqueued due instances", zap.Int("count", len(instances)))
	}
}
