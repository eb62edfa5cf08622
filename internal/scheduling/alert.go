package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// AlertSchedule is a non-repeating schedule whose events fire as a chain of
// minute delays: each event's wait is relative to the previous event firing,
// not to instance creation. It makes exactly one pass through its event
// list and never repeats.
type AlertSchedule struct {
	Schedule
}

// NewSimpleAlertSchedule builds an alert schedule with a single immediate
// event carrying the given content.
func NewSimpleAlertSchedule(domain string, content Content) *AlertSchedule {
	return NewCustomAlertSchedule(domain, []Event{{
		Order:         1,
		Type:          EventAlert,
		MinutesToWait: 0,
		Content:       content,
	}})
}

// NewCustomAlertSchedule builds an alert schedule from an explicit event
// chain. Event order is normalized to the slice order.
func NewCustomAlertSchedule(domain string, events []Event) *AlertSchedule {
	for i := range events {
		events[i].Order = i + 1
		events[i].Type = EventAlert
	}
	return &AlertSchedule{
		Schedule: Schedule{
			ID:     uuid.New(),
			Domain: domain,
			Active: true,
			Events: events,
		},
	}
}

func (s *AlertSchedule) ScheduleActive() bool {
	return s.Active
}

func (s *AlertSchedule) EventList() []Event {
	return s.Events
}

// TotalIterationsComplete is true once the instance wraps past the single
// pass: alert schedules implicitly have exactly one iteration.
func (s *AlertSchedule) TotalIterationsComplete(inst *ScheduleInstance) bool {
	return inst.ScheduleIterationNum > 1
}

// SetFirstEventDueTimestamp anchors the delta chain at the current time and
// applies the first event's wait.
func (s *AlertSchedule) SetFirstEventDueTimestamp(inst *ScheduleInstance, env Env) error {
	inst.NextEventDue = env.now()
	return s.SetNextEventDueTimestamp(inst, env)
}

// SetNextEventDueTimestamp adds the current event's wait to the previous
// due timestamp. The waits are cumulative deltas, so an event chain with
// waits [0, 10, 30] reaches its third event 40 minutes after the start.
func (s *AlertSchedule) SetNextEventDueTimestamp(inst *ScheduleInstance, env Env) error {
	if len(s.Events) == 0 {
		return ErrNoEvents
	}
	wait := s.Events[inst.CurrentEventNum].MinutesToWait
	inst.NextEventDue = inst.NextEventDue.Add(time.Duration(wait) * time.Minute)
	return nil
}

// NewAlertInstance creates the per-recipient run state for this schedule.
// Alert instances never fast-forward on creation: a recipient added late
// still receives the remaining chain from wherever the clock stands.
func (s *AlertSchedule) NewAlertInstance(recipientType RecipientType, recipientID string, env Env) (*ScheduleInstance, error) {
	now := env.now()
	inst := &ScheduleInstance{
		ID:                   uuid.New(),
		ScheduleID:           s.ID,
		Domain:               s.Domain,
		ScheduleKind:         KindAlert,
		RecipientType:        recipientType,
		RecipientID:          recipientID,
		CurrentEventNum:      0,
		ScheduleIterationNum: 1,
		Active:               s.Active,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.SetFirstEventDueTimestamp(inst, env); err != nil {
		return nil, err
	}
	return inst, nil
}

// ResetSchedule restarts the instance from the top of the event chain.
// Used when a watched case property changes value.
func (s *AlertSchedule) ResetSchedule(inst *ScheduleInstance, env Env) error {
	inst.CurrentEventNum = 0
	inst.ScheduleIterationNum = 1
	inst.Active = true
	return s.SetFirstEventDueTimestamp(inst, env)
}

var _ InstanceScheduler = (*AlertSchedule)(nil)
