package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/remindhub/messaging-scheduler/internal/repository"
	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// CaseService ingests case updates from the platform feed and reconciles
// the case-driven schedule instances that depend on them: a watched reset
// property restarts the schedule, and a changed case-property send time
// shows up as a revision mismatch and triggers a recalculation.
type CaseService struct {
	cases     repository.CaseRepository
	instances repository.InstanceRepository
	schedules repository.ScheduleRepository
	envs      EnvFactory
	logger    *zap.Logger
}

func NewCaseService(
	cases repository.CaseRepository,
	instances repository.InstanceRepository,
	schedules repository.ScheduleRepository,
	envs EnvFactory,
	logger *zap.Logger,
) *CaseService {
	return &CaseService{
		cases:     cases,
		instances: instances,
		schedules: schedules,
		envs:      envs,
		logger:    logger,
	}
}

// UpsertCase stores the case's new property bag and refreshes every
// instance driven by the case. A failure on one instance does not stop the
// others; the first error is reported after the loop.
func (s *CaseService) UpsertCase(ctx context.Context, domain, caseID string, properties map[string]string) error {
	if err := s.cases.Upsert(ctx, domain, caseID, properties); err != nil {
		return err
	}

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return fmt.Errorf("reload case: %w", err)
	}

	instances, err := s.instances.ListByCase(ctx, caseID)
	if err != nil {
		return fmt.Errorf("list case instances: %w", err)
	}

	var firstErr error
	for _, inst := range instances {
		if err := s.refreshCaseInstance(ctx, inst, c); err != nil {
			s.logger.Error("case instance refresh failed",
				zap.String("instance_id", inst.ID.String()),
				zap.String("case_id", caseID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *CaseService) refreshCaseInstance(ctx context.Context, inst *scheduling.ScheduleInstance, c scheduling.Case) error {
	stored, err := s.schedules.GetByID(ctx, inst.ScheduleID)
	if errors.Is(err, scheduling.ErrNotFound) {
		// Schedule purged from under the instance; remove the orphan.
		return s.instances.Delete(ctx, inst.ID)
	}
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}

	base, err := stored.Base()
	if err != nil {
		return err
	}
	env := s.envs.For(stored, c)

	changed := false
	if base.ResetCasePropertyName != "" {
		current := c.DynamicProperties()[base.ResetCasePropertyName]
		if current != inst.LastResetCasePropertyValue {
			if err := s.resetInstance(stored, inst, env); err != nil {
				return err
			}
			inst.LastResetCasePropertyValue = current
			changed = true
		}
	}

	// A changed case-property send time surfaces as a revision mismatch.
	if !changed && stored.Kind == scheduling.KindTimed &&
		inst.ScheduleRevision != stored.Revision(c) {
		if err := stored.Timed.RecalculateSchedule(inst, time.Time{}, env); err != nil {
			return fmt.Errorf("recalculate instance: %w", err)
		}
		changed = true
	}

	if !changed {
		return nil
	}
	return s.instances.Update(ctx, inst)
}

// resetInstance restarts the schedule for the instance: alert chains start
// over from the top right now, timed schedules restart from today.
func (s *CaseService) resetInstance(stored *scheduling.StoredSchedule, inst *scheduling.ScheduleInstance, env scheduling.Env) error {
	switch stored.Kind {
	case scheduling.KindAlert:
		return stored.Alert.ResetSchedule(inst, env)
	case scheduling.KindTimed:
		local := env.Clock.UTCNow().In(env.Location)
		today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		return stored.Timed.RecalculateSchedule(inst, today, env)
	default:
		return fmt.Errorf("schedule kind %q: %w", stored.Kind, scheduling.ErrUnsupportedSchedule)
	}
}
