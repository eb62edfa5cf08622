package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remindhub/messaging-scheduler/internal/queue"
	"github.com/remindhub/messaging-scheduler/internal/repository"
	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// BroadcastService coordinates broadcasts, their schedules and the
// per-recipient instances. All business rules (immediate edit lockout, the
// recipient snapshot, instance refresh on edit) live here. HTTP handlers and
// workers depend on this service, not on each other.
type BroadcastService struct {
	broadcasts repository.BroadcastRepository
	schedules  repository.ScheduleRepository
	instances  repository.InstanceRepository
	cases      repository.CaseRepository
	q          *queue.DueQueue
	envs       EnvFactory
	logger     *zap.Logger
}

func NewBroadcastService(
	broadcasts repository.BroadcastRepository,
	schedules repository.ScheduleRepository,
	instances repository.InstanceRepository,
	cases repository.CaseRepository,
	q *queue.DueQueue,
	envs EnvFactory,
	logger *zap.Logger,
) *BroadcastService {
	return &BroadcastService{
		broadcasts: broadcasts,
		schedules:  schedules,
		instances:  instances,
		cases:      cases,
		q:          q,
		envs:       envs,
		logger:     logger,
	}
}

// CreateImmediate builds an alert schedule with a single immediate event,
// snapshots the recipient list, and fans out one instance per recipient.
// The instances are enqueued right away; the sweep is only a backstop.
func (s *BroadcastService) CreateImmediate(ctx context.Context, req ImmediateBroadcastRequest) (*scheduling.Broadcast, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	alert := scheduling.NewSimpleAlertSchedule(req.Domain, req.Content)
	stored := scheduling.NewStoredAlert(alert)
	if err := s.schedules.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("persist schedule: %w", err)
	}

	b := &scheduling.Broadcast{
		ID:         uuid.New(),
		Domain:     req.Domain,
		Name:       req.Name,
		Kind:       scheduling.BroadcastImmediate,
		ScheduleID: alert.ID,
		Recipients: append([]scheduling.Recipient(nil), req.Recipients...),
		CreatedAt:  s.envs.Clock.UTCNow(),
	}
	if err := s.broadcasts.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("persist broadcast: %w", err)
	}

	env := s.envs.For(stored, nil)
	for _, recipient := range req.Recipients {
		inst, err := alert.NewAlertInstance(recipient.Type, recipient.ID, env)
		if err != nil {
			return nil, fmt.Errorf("create instance: %w", err)
		}
		if err := s.instances.Create(ctx, inst); err != nil {
			return nil, fmt.Errorf("persist instance: %w", err)
		}
		s.enqueue(inst)
	}

	return b, nil
}

// CreateScheduled builds a timed schedule and one instance per recipient,
// each fast-forwarded past any occurrences already in the past. Nothing is
// enqueued here; the sweep picks the instances up when they come due.
func (s *BroadcastService) CreateScheduled(ctx context.Context, req ScheduledBroadcastRequest) (*scheduling.Broadcast, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	timed, err := buildTimedSchedule(req)
	if err != nil {
		return nil, err
	}
	stored := scheduling.NewStoredTimed(timed)
	if err := s.schedules.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("persist schedule: %w", err)
	}

	b := &scheduling.Broadcast{
		ID:         uuid.New(),
		Domain:     req.Domain,
		Name:       req.Name,
		Kind:       scheduling.BroadcastScheduled,
		ScheduleID: timed.ID,
		Recipients: append([]scheduling.Recipient(nil), req.Recipients...),
		StartDate:  req.StartDate,
		CreatedAt:  s.envs.Clock.UTCNow(),
	}
	if err := s.broadcasts.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("persist broadcast: %w", err)
	}

	env := s.envs.For(stored, nil)
	for _, recipient := range req.Recipients {
		inst, err := timed.NewTimedInstance(recipient.Type, recipient.ID, "", req.StartDate, env)
		if err != nil {
			return nil, fmt.Errorf("create instance: %w", err)
		}
		if err := s.instances.Create(ctx, inst); err != nil {
			return nil, fmt.Errorf("persist instance: %w", err)
		}
	}

	return b, nil
}

// UpdateScheduled replaces a scheduled broadcast's definition: name,
// recipients, start date and the whole schedule (event list included), then
// reconciles the running instances against the new definition.
//
// Immediate broadcasts are rejected with ErrImmediateBroadcastEdit: their
// single event has already fired by the time an edit could arrive.
func (s *BroadcastService) UpdateScheduled(ctx context.Context, id uuid.UUID, req ScheduledBroadcastRequest) (*scheduling.Broadcast, error) {
	b, err := s.broadcasts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.CanEdit(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.schedules.GetByID(ctx, b.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if existing.Kind != scheduling.KindTimed {
		return nil, fmt.Errorf("broadcast %s is not backed by a timed schedule: %w",
			id, scheduling.ErrUnsupportedSchedule)
	}

	timed, err := buildTimedSchedule(req)
	if err != nil {
		return nil, err
	}
	// The replacement keeps the schedule's identity and active flag; only
	// the definition changes.
	timed.ID = b.ScheduleID
	timed.Active = existing.Timed.Active
	stored := scheduling.NewStoredTimed(timed)
	if err := s.schedules.Update(ctx, stored); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	b.Name = req.Name
	b.Recipients = append([]scheduling.Recipient(nil), req.Recipients...)
	b.StartDate = req.StartDate
	if err := s.broadcasts.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("update broadcast: %w", err)
	}

	if err := s.RefreshInstances(ctx, b, stored); err != nil {
		return nil, fmt.Errorf("refresh instances: %w", err)
	}
	return b, nil
}

// SetActive flips the schedule's active flag. Instances catch up with the
// flag lazily: the worker reconciles each instance against the schedule
// when it next looks at it.
func (s *BroadcastService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	b, err := s.broadcasts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := b.CanEdit(); err != nil {
		return err
	}
	return s.schedules.SetActive(ctx, b.ScheduleID, active)
}

// Delete soft-deletes the broadcast and deactivates its schedule so the
// sweep stops firing instances immediately. The purge worker removes the
// instances, schedule and broadcast row asynchronously.
func (s *BroadcastService) Delete(ctx context.Context, id uuid.UUID) error {
	b, err := s.broadcasts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.broadcasts.SoftDelete(ctx, id); err != nil {
		return err
	}
	if err := s.schedules.SetActive(ctx, b.ScheduleID, false); err != nil && !errors.Is(err, scheduling.ErrNotFound) {
		return fmt.Errorf("deactivate schedule: %w", err)
	}
	return nil
}

func (s *BroadcastService) GetByID(ctx context.Context, id uuid.UUID) (*scheduling.Broadcast, error) {
	return s.broadcasts.GetByID(ctx, id)
}

// ListInstances returns the per-recipient delivery state for a broadcast,
// together with the schedule's representative content so callers can render
// the message alongside it.
func (s *BroadcastService) ListInstances(ctx context.Context, id uuid.UUID) ([]*scheduling.ScheduleInstance, scheduling.Content, error) {
	b, err := s.broadcasts.GetByID(ctx, id)
	if err != nil {
		return nil, scheduling.Content{}, err
	}
	stored, err := s.schedules.GetByID(ctx, b.ScheduleID)
	if err != nil {
		return nil, scheduling.Content{}, fmt.Errorf("load schedule: %w", err)
	}
	base, err := stored.Base()
	if err != nil {
		return nil, scheduling.Content{}, err
	}
	event, err := base.RepresentativeEvent()
	if err != nil {
		return nil, scheduling.Content{}, err
	}
	insts, err := s.instances.ListBySchedule(ctx, b.ScheduleID)
	if err != nil {
		return nil, scheduling.Content{}, fmt.Errorf("list instances: %w", err)
	}
	return insts, event.Content, nil
}

func (s *BroadcastService) List(ctx context.Context, domain string, page, limit int) ([]*scheduling.Broadcast, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.broadcasts.List(ctx, domain, page, limit)
}

// RefreshInstances reconciles the per-recipient instances with the
// broadcast's current recipient snapshot and schedule definition:
//
//   - recipients no longer on the broadcast lose their instance
//   - new recipients get one; joining a running alert schedule copies an
//     existing cursor so the newcomer does not restart the chain
//   - surviving instances are recalculated when the schedule revision or
//     start date changed, and otherwise just reconciled against the
//     schedule's active flag
func (s *BroadcastService) RefreshInstances(ctx context.Context, b *scheduling.Broadcast, stored *scheduling.StoredSchedule) error {
	existing, err := s.instances.ListBySchedule(ctx, b.ScheduleID)
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}

	byRecipient := make(map[scheduling.Recipient]*scheduling.ScheduleInstance, len(existing))
	for _, inst := range existing {
		byRecipient[scheduling.Recipient{Type: inst.RecipientType, ID: inst.RecipientID}] = inst
	}
	desired := make(map[scheduling.Recipient]bool, len(b.Recipients))
	for _, r := range b.Recipients {
		desired[r] = true
	}

	for recipient, inst := range byRecipient {
		if !desired[recipient] {
			if err := s.instances.Delete(ctx, inst.ID); err != nil {
				return fmt.Errorf("delete instance: %w", err)
			}
			delete(byRecipient, recipient)
		}
	}

	env := s.envs.For(stored, nil)

	for _, recipient := range b.Recipients {
		if inst, ok := byRecipient[recipient]; ok {
			if err := s.reconcileInstance(ctx, stored, inst, env); err != nil {
				return err
			}
			continue
		}

		inst, err := s.newInstanceForRecipient(stored, b, recipient, byRecipient, env)
		if err != nil {
			return err
		}
		if err := s.instances.Create(ctx, inst); err != nil {
			return fmt.Errorf("persist instance: %w", err)
		}
		byRecipient[recipient] = inst
	}

	return nil
}

func (s *BroadcastService) newInstanceForRecipient(
	stored *scheduling.StoredSchedule,
	b *scheduling.Broadcast,
	recipient scheduling.Recipient,
	running map[scheduling.Recipient]*scheduling.ScheduleInstance,
	env scheduling.Env,
) (*scheduling.ScheduleInstance, error) {
	switch stored.Kind {
	case scheduling.KindAlert:
		// Joining a running alert chain: copy any existing cursor so the
		// newcomer receives the remaining events, not the whole chain again.
		for _, template := range running {
			return template.CopyForRecipient(recipient.Type, recipient.ID), nil
		}
		return stored.Alert.NewAlertInstance(recipient.Type, recipient.ID, env)
	case scheduling.KindTimed:
		return stored.Timed.NewTimedInstance(recipient.Type, recipient.ID, "", b.StartDate, env)
	default:
		return nil, fmt.Errorf("schedule kind %q: %w", stored.Kind, scheduling.ErrUnsupportedSchedule)
	}
}

func (s *BroadcastService) reconcileInstance(
	ctx context.Context,
	stored *scheduling.StoredSchedule,
	inst *scheduling.ScheduleInstance,
	env scheduling.Env,
) error {
	if stored.Kind == scheduling.KindTimed {
		b, err := s.broadcasts.GetByScheduleID(ctx, inst.ScheduleID)
		if err != nil && !errors.Is(err, scheduling.ErrNotFound) {
			return err
		}

		needsRecalc := inst.ScheduleRevision != stored.Revision(env.Case)
		if b != nil && !b.StartDate.IsZero() && !sameDate(inst.StartDate, b.StartDate) {
			needsRecalc = true
		}
		if needsRecalc {
			startDate := inst.StartDate
			if b != nil && !b.StartDate.IsZero() {
				startDate = b.StartDate
			}
			if err := stored.Timed.RecalculateSchedule(inst, startDate, env); err != nil {
				return fmt.Errorf("recalculate instance: %w", err)
			}
			return s.instances.Update(ctx, inst)
		}
	}

	scheduler, err := stored.Scheduler()
	if err != nil {
		return err
	}
	changed, err := scheduling.CheckActiveFlagAgainstSchedule(scheduler, inst, env)
	if err != nil {
		return err
	}
	if changed {
		return s.instances.Update(ctx, inst)
	}
	return nil
}

func (s *BroadcastService) enqueue(inst *scheduling.ScheduleInstance) {
	err := s.q.Enqueue(queue.Item{
		InstanceID: inst.ID,
		ScheduleID: inst.ScheduleID,
		Kind:       inst.ScheduleKind,
	})
	if err != nil {
		// Not fatal: the sweep re-discovers the instance on its next tick.
		s.logger.Warn("queue full: instance waits for the sweep",
			zap.String("instance_id", inst.ID.String()), zap.Error(err))
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
