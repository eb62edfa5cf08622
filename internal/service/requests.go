package service

import (
	"fmt"
	"time"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// Frequency selects the recurrence shape of a scheduled broadcast.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ImmediateBroadcastRequest creates a one-shot broadcast: an alert schedule
// with a single immediate event, fanned out to the recipients right away.
type ImmediateBroadcastRequest struct {
	Domain     string                 `json:"domain"`
	Name       string                 `json:"name"`
	Recipients []scheduling.Recipient `json:"recipients"`
	Content    scheduling.Content     `json:"content"`
}

func (r ImmediateBroadcastRequest) Validate() error {
	if err := validateCommon(r.Domain, r.Name, r.Recipients, r.Content); err != nil {
		return err
	}
	return nil
}

// TimedScheduleInput describes the recurrence of a scheduled broadcast.
// Exactly one of RandomWindowMinutes and CaseTimeProperty may be set; when
// neither is, the event fires at the fixed Time.
type TimedScheduleInput struct {
	Frequency Frequency            `json:"frequency"`
	Time      scheduling.TimeOfDay `json:"time"`

	// RandomWindowMinutes > 0 samples the send time from [Time, Time+window).
	RandomWindowMinutes int `json:"random_window_minutes,omitempty"`

	// CaseTimeProperty reads the send time from this case property.
	CaseTimeProperty string `json:"case_time_property,omitempty"`

	// RepeatEveryDays is the cycle length for daily schedules; 0 means 1.
	RepeatEveryDays int `json:"repeat_every_days,omitempty"`

	// TotalIterations is the number of cycles, or -1 to repeat forever.
	TotalIterations int `json:"total_iterations"`

	// DaysOfWeek holds Monday-based weekdays (weekly only).
	DaysOfWeek []int `json:"days_of_week,omitempty"`

	// DaysOfMonth holds days of month, negative counting from the end
	// (monthly only).
	DaysOfMonth []int `json:"days_of_month,omitempty"`

	StartOffset int `json:"start_offset,omitempty"`

	// StartDayOfWeek anchors the effective start date to a Monday-based
	// weekday (0 = Monday). Omitted means no anchor for daily schedules;
	// weekly schedules require it.
	StartDayOfWeek *int `json:"start_day_of_week,omitempty"`

	UseUTC bool `json:"use_utc,omitempty"`
}

// ScheduledBroadcastRequest creates or replaces a recurring broadcast backed
// by a timed schedule.
type ScheduledBroadcastRequest struct {
	Domain              string                 `json:"domain"`
	Name                string                 `json:"name"`
	Recipients          []scheduling.Recipient `json:"recipients"`
	StartDate           time.Time              `json:"start_date"`
	DefaultLanguageCode string                 `json:"default_language_code,omitempty"`
	Schedule            TimedScheduleInput     `json:"schedule"`
	Content             scheduling.Content     `json:"content"`
}

func (r ScheduledBroadcastRequest) Validate() error {
	if err := validateCommon(r.Domain, r.Name, r.Recipients, r.Content); err != nil {
		return err
	}
	if r.StartDate.IsZero() {
		return scheduling.ErrMissingStartDate
	}
	switch r.Schedule.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("frequency %q: %w", r.Schedule.Frequency, scheduling.ErrUnsupportedSchedule)
	}
	if r.Schedule.TotalIterations == 0 {
		return fmt.Errorf("total iterations must be positive or %d for indefinite: %w",
			scheduling.RepeatIndefinitely, scheduling.ErrUnsupportedSchedule)
	}
	return nil
}

func validateCommon(domain, name string, recipients []scheduling.Recipient, content scheduling.Content) error {
	if domain == "" || name == "" {
		return scheduling.ErrEmptyBroadcastName
	}
	if len(recipients) == 0 {
		return scheduling.ErrNoRecipients
	}
	for _, r := range recipients {
		if !r.Type.IsValid() || r.ID == "" {
			return scheduling.ErrInvalidRecipientType
		}
	}
	return validateContent(content)
}

func validateContent(c scheduling.Content) error {
	switch c.Type {
	case scheduling.ContentSMS, scheduling.ContentEmail:
		if len(c.Message) == 0 {
			return scheduling.ErrEmptyContent
		}
	case scheduling.ContentCustom:
		if c.CustomContentID == "" {
			return scheduling.ErrEmptyContent
		}
	default:
		return fmt.Errorf("content type %q: %w", c.Type, scheduling.ErrUnknownContentType)
	}
	return nil
}

// buildTimedSchedule turns the input into an engine schedule via the simple
// constructors, mirroring how the UI-level shapes map onto the engine.
func buildTimedSchedule(r ScheduledBroadcastRequest) (*scheduling.TimedSchedule, error) {
	event := scheduling.Event{Type: scheduling.EventFixedTime, Time: r.Schedule.Time}
	switch {
	case r.Schedule.CaseTimeProperty != "":
		event.Type = scheduling.EventCasePropertyTime
		event.CasePropertyName = r.Schedule.CaseTimeProperty
	case r.Schedule.RandomWindowMinutes > 0:
		event.Type = scheduling.EventRandomTime
		event.WindowLength = r.Schedule.RandomWindowMinutes
	}

	startDayOfWeek := scheduling.AnyDay
	if r.Schedule.StartDayOfWeek != nil {
		startDayOfWeek = *r.Schedule.StartDayOfWeek
	}

	var (
		s   *scheduling.TimedSchedule
		err error
	)
	switch r.Schedule.Frequency {
	case FrequencyDaily:
		repeatEvery := r.Schedule.RepeatEveryDays
		if repeatEvery <= 0 {
			repeatEvery = 1
		}
		s, err = scheduling.NewCustomDailySchedule(r.Domain,
			[]scheduling.Event{withContent(event, r.Content)},
			repeatEvery, r.Schedule.TotalIterations, r.Schedule.StartOffset, startDayOfWeek)
	case FrequencyWeekly:
		s, err = scheduling.NewSimpleWeeklySchedule(r.Domain, event, r.Content,
			r.Schedule.DaysOfWeek, startDayOfWeek, r.Schedule.TotalIterations)
	case FrequencyMonthly:
		s, err = scheduling.NewSimpleMonthlySchedule(r.Domain, event,
			r.Schedule.DaysOfMonth, r.Content, r.Schedule.TotalIterations)
	default:
		return nil, fmt.Errorf("frequency %q: %w", r.Schedule.Frequency, scheduling.ErrUnsupportedSchedule)
	}
	if err != nil {
		return nil, err
	}

	s.DefaultLanguageCode = r.DefaultLanguageCode
	s.UseUTCAsDefaultTimezone = r.Schedule.UseUTC
	return s, nil
}

func withContent(e scheduling.Event, c scheduling.Content) scheduling.Event {
	e.Content = c.Copy()
	return e
}
