package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/remindhub/messaging-scheduler/internal/repository"
	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// PurgeWorker finishes the second half of broadcast deletion: the API only
// soft-deletes, and this worker periodically hard-deletes the soft-deleted
// broadcasts along with their schedule and instances.
//
// Deletion order matters: instances first, then the schedule, then the
// broadcast row, so a crash mid-purge leaves the broadcast discoverable for
// the next pass rather than orphaning rows.
type PurgeWorker struct {
	broadcasts repository.BroadcastRepository
	schedules  repository.ScheduleRepository
	instances  repository.InstanceRepository
	interval   time.Duration
	batchSize  int
	logger     *zap.Logger
}

func NewPurgeWorker(
	broadcasts repository.BroadcastRepository,
	schedules repository.ScheduleRepository,
	instances repository.InstanceRepository,
	interval time.Duration,
	batchSize int,
	logger *zap.Logger,
) *PurgeWorker {
	return &PurgeWorker{
		broadcasts: broadcasts,
		schedules:  schedules,
		instances:  instances,
		interval:   interval,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Run ticks every interval and purges a batch of soft-deleted broadcasts.
// Stops cleanly when ctx is cancelled.
func (pw *PurgeWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	pw.logger.Info("purge worker started", zap.Duration("interval", pw.interval))

	for {
		select {
		case <-ctx.Done():
			pw.logger.Info("purge worker stopping")
			return
		case <-ticker.C:
			pw.poll(ctx)
		}
	}
}

func (pw *PurgeWorker) poll(ctx context.Context) {
	deleted, err := pw.broadcasts.FindDeleted(ctx, pw.batchSize)
	if err != nil {
		pw.logger.Error("purge poll error", zap.Error(err))
		return
	}

	purged := 0
	for _, b := range deleted {
		if err := pw.purge(ctx, b); err != nil {
			pw.logger.Error("failed to purge broadcast",
				zap.String("id", b.ID.String()), zap.Error(err))
			continue
		}
		purged++
	}

	if purged > 0 {
		pw.logger.Info("purged deleted broadcasts", zap.Int("count", purged))
	}
}

func (pw *PurgeWorker) purge(ctx context.Context, b *scheduling.Broadcast) error {
	removed, err := pw.instances.DeleteBySchedule(ctx, b.ScheduleID)
	if err != nil {
		return err
	}
	if err := pw.schedules.Delete(ctx, b.ScheduleID); err != nil {
		return err
	}
	if err := pw.broadcasts.HardDelete(ctx, b.ID); err != nil {
		return err
	}
	pw.logger.Debug("purged broadcast",
		zap.String("id", b.ID.String()),
		zap.Int64("instances_removed", removed))
	return nil
}
