package scheduling

import "fmt"

// ScheduleKind discriminates persisted schedules.
type ScheduleKind string

const (
	KindAlert ScheduleKind = "alert"
	KindTimed ScheduleKind = "timed"
)

func (k ScheduleKind) IsValid() bool {
	return k == KindAlert || k == KindTimed
}

// StoredSchedule is the persisted union of the two schedule kinds. Exactly
// one of Alert and Timed is non-nil, matching Kind; anything else is a
// storage corruption surfaced as ErrUnsupportedSchedule.
type StoredSchedule struct {
	Kind  ScheduleKind
	Alert *AlertSchedule
	Timed *TimedSchedule
}

func NewStoredAlert(s *AlertSchedule) *StoredSchedule {
	return &StoredSchedule{Kind: KindAlert, Alert: s}
}

func NewStoredTimed(s *TimedSchedule) *StoredSchedule {
	return &StoredSchedule{Kind: KindTimed, Timed: s}
}

// Scheduler returns the advancement interface for whichever kind is stored.
func (s *StoredSchedule) Scheduler() (InstanceScheduler, error) {
	switch s.Kind {
	case KindAlert:
		if s.Alert == nil {
			return nil, fmt.Errorf("alert schedule missing payload: %w", ErrUnsupportedSchedule)
		}
		return s.Alert, nil
	case KindTimed:
		if s.Timed == nil {
			return nil, fmt.Errorf("timed schedule missing payload: %w", ErrUnsupportedSchedule)
		}
		return s.Timed, nil
	default:
		return nil, fmt.Errorf("schedule kind %q: %w", s.Kind, ErrUnsupportedSchedule)
	}
}

// Base returns the shared schedule fields for whichever kind is stored.
func (s *StoredSchedule) Base() (*Schedule, error) {
	switch s.Kind {
	case KindAlert:
		if s.Alert == nil {
			return nil, fmt.Errorf("alert schedule missing payload: %w", ErrUnsupportedSchedule)
		}
		return &s.Alert.Schedule, nil
	case KindTimed:
		if s.Timed == nil {
			return nil, fmt.Errorf("timed schedule missing payload: %w", ErrUnsupportedSchedule)
		}
		return &s.Timed.Schedule, nil
	default:
		return nil, fmt.Errorf("schedule kind %q: %w", s.Kind, ErrUnsupportedSchedule)
	}
}

// Revision returns the schedule's current revision hash. Alert schedules
// have no calendar parameters, so their revision is empty and instance
// refreshes never trigger a recalculation for them.
func (s *StoredSchedule) Revision(c Case) string {
	if s.Kind == KindTimed && s.Timed != nil {
		return s.Timed.Revision(c)
	}
	return ""
}
