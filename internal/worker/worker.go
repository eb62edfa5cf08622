package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/remindhub/messaging-scheduler/internal/queue"
	"github.com/remindhub/messaging-scheduler/internal/ratelimiter"
	"github.com/remindhub/messaging-scheduler/internal/repository"
	"github.com/remindhub/messaging-scheduler/internal/scheduling"
	"github.com/remindhub/messaging-scheduler/internal/sender"
	"github.com/remindhub/messaging-scheduler/internal/service"
)

// Worker is a single goroutine that continuously pulls due instances from
// the queue, applies per-content-type rate limiting, delivers the current
// event's content via the sender, and advances the instance cursor.
type Worker struct {
	id         int
	q          *queue.DueQueue
	schedules  repository.ScheduleRepository
	instances  repository.InstanceRepository
	broadcasts repository.BroadcastRepository
	cases      repository.CaseRepository
	send       sender.Sender
	limiter    *ratelimiter.ContentLimiters
	envs       service.EnvFactory
	logger     *zap.Logger

	// Metric hooks, injected by the pool so the worker stays metrics-agnostic.
	onSent   func(ct scheduling.ContentType, latency time.Duration)
	onFailed func(ct scheduling.ContentType)
}

// NewWorker constructs a worker. onSent and onFailed are optional (nil = no-op).
func NewWorker(
	id int,
	q *queue.DueQueue,
	schedules repository.ScheduleRepository,
	instances repository.InstanceRepository,
	broadcasts repository.BroadcastRepository,
	cases repository.CaseRepository,
	send sender.Sender,
	limiter *ratelimiter.ContentLimiters,
	envs service.EnvFactory,
	logger *zap.Logger,
	onSent func(scheduling.ContentType, time.Duration),
	onFailed func(scheduling.ContentType),
) *Worker {
	if onSent == nil {
		onSent = func(scheduling.ContentType, time.Duration) {}
	}
	if onFailed == nil {
		onFailed = func(scheduling.ContentType) {}
	}
	return &Worker{
		id: id, q: q,
		schedules: schedules, instances: instances,
		broadcasts: broadcasts, cases: cases,
		send: send, limiter: limiter, envs: envs, logger: logger,
		onSent: onSent, onFailed: onFailed,
	}
}

// Run blocks until ctx is cancelled, processing one queue item per iteration.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", zap.Int("id", w.id))
	for {
		item, ok := w.q.Dequeue(ctx)
		if !ok {
			w.logger.Info("worker stopping", zap.Int("id", w.id))
			return
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item queue.Item) {
	start := time.Now()
	log := w.logger.With(
		zap.String("instance_id", item.InstanceID.String()),
		zap.String("schedule_id", item.ScheduleID.String()),
	)

	inst, err := w.instances.GetByID(ctx, item.InstanceID)
	if errors.Is(err, scheduling.ErrNotFound) {
		// Deleted between sweep and processing; nothing to do.
		log.Debug("instance vanished before processing")
		return
	}
	if err != nil {
		log.Error("failed to fetch instance", zap.Error(err))
		return
	}

	stored, err := w.schedules.GetByID(ctx, inst.ScheduleID)
	if errors.Is(err, scheduling.ErrNotFound) {
		log.Warn("schedule gone, removing orphan instance")
		if err := w.instances.Delete(ctx, inst.ID); err != nil {
			log.Error("failed to delete orphan instance", zap.Error(err))
		}
		return
	}
	if err != nil {
		log.Error("failed to fetch schedule", zap.Error(err))
		return
	}

	var c scheduling.Case
	if inst.CaseID != "" {
		c, err = w.cases.GetByID(ctx, inst.CaseID)
		if err != nil && !errors.Is(err, scheduling.ErrNotFound) {
			log.Error("failed to fetch case", zap.Error(err))
			return
		}
		// A missing case is not fatal: time resolution falls back to noon.
	}

	env := w.envs.For(stored, c)
	scheduler, err := stored.Scheduler()
	if err != nil {
		log.Error("unusable schedule", zap.Error(err))
		return
	}

	// Reconcile the instance with the schedule's active flag first; a
	// deactivated schedule silences its instances without deleting them.
	changed, err := scheduling.CheckActiveFlagAgainstSchedule(scheduler, inst, env)
	if err != nil {
		log.Error("active flag reconcile failed", zap.Error(err))
		return
	}
	if !inst.Active {
		if changed {
			w.update(ctx, inst, log)
		}
		return
	}

	// A revision mismatch means the definition changed since the cached due
	// timestamp was computed; recompute from scratch instead of advancing.
	if stored.Kind == scheduling.KindTimed && inst.ScheduleRevision != stored.Revision(c) {
		if err := stored.Timed.RecalculateSchedule(inst, time.Time{}, env); err != nil {
			log.Error("recalculate failed", zap.Error(err))
			return
		}
	}

	now := env.Clock.UTCNow()
	if inst.NextEventDue.After(now) {
		// Not due (anymore); persist any reconcile work and release the claim.
		w.update(ctx, inst, log)
		return
	}

	content, err := scheduling.CurrentEventContent(scheduler, inst)
	if err != nil {
		log.Error("no content for current event", zap.Error(err))
		return
	}

	// Block here until the per-content-type rate limiter grants a token.
	if err := w.limiter.Wait(ctx, content.Type); err != nil {
		// ctx cancelled while waiting: worker is shutting down.
		return
	}

	msg, err := w.buildMessage(stored, inst, content)
	if err != nil {
		log.Error("failed to build message", zap.Error(err))
		return
	}

	resp, err := w.send.Send(ctx, msg)
	elapsed := time.Since(start)
	if err != nil {
		// The cursor is not advanced: the sweep reclaims the instance once
		// the claim goes stale and the send is retried.
		log.Warn("gateway send failed", zap.Error(err))
		w.onFailed(content.Type)
		return
	}

	if err := scheduling.MoveToNextEvent(scheduler, inst, env); err != nil {
		log.Error("failed to advance instance", zap.Error(err))
		return
	}
	if err := scheduling.MoveToNextEventNotInThePast(scheduler, inst, env); err != nil {
		log.Error("failed to fast-forward instance", zap.Error(err))
		return
	}
	w.update(ctx, inst, log)

	w.markBroadcastSent(ctx, inst, now, log)

	w.onSent(content.Type, elapsed)
	log.Info("event sent",
		zap.String("gateway_msg_id", resp.MessageID),
		zap.String("content_type", string(content.Type)),
		zap.Duration("latency", elapsed))
}

func (w *Worker) buildMessage(stored *scheduling.StoredSchedule, inst *scheduling.ScheduleInstance, content scheduling.Content) (sender.Message, error) {
	base, err := stored.Base()
	if err != nil {
		return sender.Message{}, err
	}
	lang := base.DefaultLanguageCode
	return sender.Message{
		Recipient:       scheduling.Recipient{Type: inst.RecipientType, ID: inst.RecipientID},
		Domain:          inst.Domain,
		Type:            content.Type,
		Subject:         content.SubjectForLanguage(lang, lang),
		Body:            content.MessageForLanguage(lang, lang),
		CustomContentID: content.CustomContentID,
	}, nil
}

func (w *Worker) update(ctx context.Context, inst *scheduling.ScheduleInstance, log *zap.Logger) {
	if err := w.instances.Update(ctx, inst); err != nil {
		log.Error("failed to persist instance", zap.Error(err))
	}
}

// markBroadcastSent stamps the owning broadcast's last-sent timestamp.
// Instances not owned by a broadcast (rule-driven ones) have no row to
// stamp; that is not an error.
func (w *Worker) markBroadcastSent(ctx context.Context, inst *scheduling.ScheduleInstance, sentAt time.Time, log *zap.Logger) {
	b, err := w.broadcasts.GetByScheduleID(ctx, inst.ScheduleID)
	if errors.Is(err, scheduling.ErrNotFound) {
		return
	}
	if err != nil {
		log.Warn("failed to look up broadcast", zap.Error(err))
		return
	}
	if err := w.broadcasts.SetLastSent(ctx, b.ID, sentAt); err != nil {
		log.Warn("failed to stamp broadcast last sent", zap.Error(err))
	}
}
