package scheduling

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

// EventType discriminates how an event determines its send time.
type EventType string

const (
	// EventAlert waits MinutesToWait after the previous event fired.
	EventAlert EventType = "alert"
	// EventFixedTime fires at an explicit local clock time.
	EventFixedTime EventType = "fixed_time"
	// EventRandomTime fires at a time sampled uniformly from a window.
	EventRandomTime EventType = "random_time"
	// EventCasePropertyTime reads the local clock time from a case property.
	EventCasePropertyTime EventType = "case_property_time"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventAlert, EventFixedTime, EventRandomTime, EventCasePropertyTime:
		return true
	}
	return false
}

// TimeOfDay is a local wall-clock time with minute resolution.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutesFromMidnight() int {
	return t.Hour*60 + t.Minute
}

func timeOfDayFromMinutes(m int) TimeOfDay {
	return TimeOfDay{Hour: m / 60, Minute: m % 60}
}

// DefaultCasePropertyTime is the fallback when a case property holds an
// unparsable time. Preserved from the original system: the fallback is
// silent as far as the schedule is concerned, but observable through the
// fallback hook.
var DefaultCasePropertyTime = TimeOfDay{Hour: 12, Minute: 0}

// casePropertyTimeRegex accepts a loose H:MM prefix, e.g. "9:30", "14:05"
// or "14:05:59". Anything else falls back to noon.
var casePropertyTimeRegex = regexp.MustCompile(`^\d?\d:\d\d`)

// ParseTimeOfDay parses an H:MM prefix. Values with an out-of-range hour or
// minute are rejected the same way as non-matching strings.
func ParseTimeOfDay(value string) (TimeOfDay, bool) {
	match := casePropertyTimeRegex.FindString(strings.TrimSpace(value))
	if match == "" {
		return TimeOfDay{}, false
	}
	parts := strings.SplitN(match, ":", 2)
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour > 23 || minute > 59 {
		return TimeOfDay{}, false
	}
	return TimeOfDay{Hour: hour, Minute: minute}, true
}

// Case exposes the dynamic properties of the case backing a case-driven
// schedule instance. Implemented by the platform's case store; the engine
// only reads from it.
type Case interface {
	CaseID() string
	DynamicProperties() map[string]string
}

// casePropertyFallbackHook is called whenever a case-property time fails to
// parse and the noon default is used. Wired once at startup to a log line
// and a metric; never mutated afterwards.
var casePropertyFallbackHook func(property, rawValue string)

// SetCasePropertyFallbackHook installs the observability hook for the noon
// fallback. Call once during startup, before any schedules are evaluated.
func SetCasePropertyFallbackHook(hook func(property, rawValue string)) {
	casePropertyFallbackHook = hook
}

// Event is one occurrence slot within a schedule's cycle. It is a tagged
// union: which fields are meaningful depends on Type.
//
// An event never outlives its schedule, and it exclusively owns its Content.
type Event struct {
	// Order is the 1-based position within the schedule's event list.
	Order int       `json:"order"`
	Type  EventType `json:"type"`

	// MinutesToWait is the delay from the previous event firing (alert).
	// The waits chain: they are relative deltas, not offsets from start.
	MinutesToWait int `json:"minutes_to_wait,omitempty"`

	// Day is the day offset within the repeat cycle (timed types). For
	// monthly schedules a positive Day is a literal day of month and a
	// negative Day counts backward from month end (-1 = last day).
	Day int `json:"day,omitempty"`

	// Time is the local clock time (fixed) or window start (random).
	Time TimeOfDay `json:"time"`

	// WindowLength is the random window size in minutes (random only).
	WindowLength int `json:"window_length,omitempty"`

	// CasePropertyName names the case property holding the send time
	// (case-property only).
	CasePropertyName string `json:"case_property_name,omitempty"`

	Content Content `json:"content"`
}

// Copy returns a structurally identical sibling with a fresh Content clone.
// Used when fanning a weekly or monthly template event out across multiple
// days: the copies must not share Content.
func (e Event) Copy() Event {
	out := e
	out.Content = e.Content.Copy()
	return out
}

// LocalTime resolves the event's local send time and an extra day offset.
//
// Fixed time: the configured time, offset 0.
// Random time: a minute offset sampled uniformly from [0, WindowLength) is
// added to the window start; crossing midnight wraps the time and sets the
// extra day offset to 1. Sampling is fresh on every call.
// Case-property time: parsed from the named property on c, falling back to
// noon when missing or unparsable. Offset is always 0.
func (e Event) LocalTime(c Case) (TimeOfDay, int, error) {
	switch e.Type {
	case EventFixedTime:
		return e.Time, 0, nil
	case EventRandomTime:
		total := e.Time.minutesFromMidnight()
		if e.WindowLength > 0 {
			total += rand.IntN(e.WindowLength)
		}
		if total >= 24*60 {
			return timeOfDayFromMinutes(total - 24*60), 1, nil
		}
		return timeOfDayFromMinutes(total), 0, nil
	case EventCasePropertyTime:
		var raw string
		if c != nil {
			raw = c.DynamicProperties()[e.CasePropertyName]
		}
		parsed, ok := ParseTimeOfDay(raw)
		if !ok {
			if casePropertyFallbackHook != nil {
				casePropertyFallbackHook(e.CasePropertyName, raw)
			}
			return DefaultCasePropertyTime, 0, nil
		}
		return parsed, 0, nil
	case EventAlert:
		return TimeOfDay{}, 0, fmt.Errorf("alert events have no clock time: %w", ErrUnknownEventType)
	default:
		return TimeOfDay{}, 0, fmt.Errorf("event type %q: %w", e.Type, ErrUnknownEventType)
	}
}

// SchedulingInfo returns the event's structural fingerprint for the schedule
// revision hash. For random events the fingerprint embeds the window, never
// a sampled time, so the hash is stable across re-evaluations.
func (e Event) SchedulingInfo(c Case) []any {
	switch e.Type {
	case EventAlert:
		return []any{"alert", e.MinutesToWait}
	case EventRandomTime:
		return []any{e.Day, e.Time.String(), e.WindowLength}
	case EventCasePropertyTime:
		// The resolved time is part of the fingerprint: if the case
		// property changes, running instances must recompute.
		resolved, _, _ := e.LocalTime(c)
		return []any{e.Day, e.CasePropertyName, resolved.String()}
	default:
		return []any{e.Day, e.Time.String()}
	}
}
