package scheduling_test

import (
	"testing"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

type fakeCase struct {
	id    string
	props map[string]string
}

func (c *fakeCase) CaseID() string                     { return c.id }
func (c *fakeCase) DynamicProperties() map[string]string { return c.props }

func smsContent(text string) scheduling.Content {
	return scheduling.Content{
		Type:    scheduling.ContentSMS,
		Message: map[string]string{"en": text},
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in     string
		want   scheduling.TimeOfDay
		wantOK bool
	}{
		{"9:30", scheduling.TimeOfDay{Hour: 9, Minute: 30}, true},
		{"09:30", scheduling.TimeOfDay{Hour: 9, Minute: 30}, true},
		{"14:05", scheduling.TimeOfDay{Hour: 14, Minute: 5}, true},
		{"14:05:59", scheduling.TimeOfDay{Hour: 14, Minute: 5}, true},
		{" 8:15 ", scheduling.TimeOfDay{Hour: 8, Minute: 15}, true},
		{"0:00", scheduling.TimeOfDay{}, true},
		{"25:00", scheduling.TimeOfDay{}, false},
		{"12:60", scheduling.TimeOfDay{}, false},
		{"noon", scheduling.TimeOfDay{}, false},
		{"", scheduling.TimeOfDay{}, false},
		{":30", scheduling.TimeOfDay{}, false},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := scheduling.ParseTimeOfDay(tc.in)
			if ok != tc.wantOK {
				t.Fatalf("ParseTimeOfDay(%q) ok=%v, want %v", tc.in, ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Fatalf("ParseTimeOfDay(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestFixedTimeEventLocalTime(t *testing.T) {
	e := scheduling.Event{
		Type: scheduling.EventFixedTime,
		Time: scheduling.TimeOfDay{Hour: 12, Minute: 0},
	}

	got, extraDay, err := e.LocalTime(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != e.Time || extraDay != 0 {
		t.Fatalf("got (%v, %d), want (%v, 0)", got, extraDay, e.Time)
	}
}

// The sampled time must stay within [window start, window start + length),
// inclusive-exclusive, and every sample must be drawn fresh.
func TestRandomTimeEventStaysInWindow(t *testing.T) {
	e := scheduling.Event{
		Type:         scheduling.EventRandomTime,
		Time:         scheduling.TimeOfDay{Hour: 12, Minute: 0},
		WindowLength: 120,
	}

	seen := make(map[scheduling.TimeOfDay]bool)
	for i := 0; i < 10000; i++ {
		got, extraDay, err := e.LocalTime(nil)
		if err != nil {
			t.Fatal(err)
		}
		if extraDay != 0 {
			t.Fatalf("unexpected extra day offset %d", extraDay)
		}
		minutes := got.Hour*60 + got.Minute
		if minutes < 12*60 || minutes >= 14*60 {
			t.Fatalf("sampled time %v outside [12:00, 14:00)", got)
		}
		seen[got] = true
	}

	// 10000 draws over a 120-minute window: seeing only a handful of
	// distinct values would mean the sample is being cached.
	if len(seen) < 60 {
		t.Fatalf("expected a spread of sampled times, got %d distinct values", len(seen))
	}
}

func TestRandomTimeEventCrossesMidnight(t *testing.T) {
	e := scheduling.Event{
		Type:         scheduling.EventRandomTime,
		Time:         scheduling.TimeOfDay{Hour: 23, Minute: 0},
		WindowLength: 120,
	}

	sawSameDay := false
	sawNextDay := false
	for i := 0; i < 10000; i++ {
		got, extraDay, err := e.LocalTime(nil)
		if err != nil {
			t.Fatal(err)
		}
		switch extraDay {
		case 0:
			if got.Hour != 23 {
				t.Fatalf("same-day sample %v should be in hour 23", got)
			}
			sawSameDay = true
		case 1:
			if got.Hour != 0 {
				t.Fatalf("next-day sample %v should have wrapped to hour 0", got)
			}
			sawNextDay = true
		default:
			t.Fatalf("unexpected extra day offset %d", extraDay)
		}
	}

	if !sawSameDay || !sawNextDay {
		t.Fatalf("expected samples on both sides of midnight: sameDay=%v nextDay=%v", sawSameDay, sawNextDay)
	}
}

func TestCasePropertyEventReadsCase(t *testing.T) {
	e := scheduling.Event{
		Type:             scheduling.EventCasePropertyTime,
		CasePropertyName: "preferred_time",
	}
	c := &fakeCase{id: "case-1", props: map[string]string{"preferred_time": "9:45"}}

	got, extraDay, err := e.LocalTime(c)
	if err != nil {
		t.Fatal(err)
	}
	want := scheduling.TimeOfDay{Hour: 9, Minute: 45}
	if got != want || extraDay != 0 {
		t.Fatalf("got (%v, %d), want (%v, 0)", got, extraDay, want)
	}
}

// An unparsable or missing case property is not an error: the event falls
// back to noon, and the fallback hook fires so the condition is observable.
func TestCasePropertyEventFallsBackToNoon(t *testing.T) {
	var hookProperty, hookRaw string
	hookCalls := 0
	scheduling.SetCasePropertyFallbackHook(func(property, raw string) {
		hookCalls++
		hookProperty = property
		hookRaw = raw
	})
	defer scheduling.SetCasePropertyFallbackHook(nil)

	e := scheduling.Event{
		Type:             scheduling.EventCasePropertyTime,
		CasePropertyName: "preferred_time",
	}

	tests := []struct {
		name string
		c    scheduling.Case
	}{
		{"unparsable value", &fakeCase{props: map[string]string{"preferred_time": "sometime in the morning"}}},
		{"missing property", &fakeCase{props: map[string]string{}}},
		{"nil case", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, extraDay, err := e.LocalTime(tc.c)
			if err != nil {
				t.Fatal(err)
			}
			if got != scheduling.DefaultCasePropertyTime || extraDay != 0 {
				t.Fatalf("got (%v, %d), want noon fallback", got, extraDay)
			}
		})
	}

	if hookCalls != 3 {
		t.Fatalf("expected 3 fallback hook calls, got %d", hookCalls)
	}
	if hookProperty != "preferred_time" || hookRaw != "" {
		t.Fatalf("unexpected hook args: property=%q raw=%q", hookProperty, hookRaw)
	}
}

// Copying an event clones its content: editing the copy's content must not
// leak into the original.
func TestEventCopyGetsFreshContent(t *testing.T) {
	original := scheduling.Event{
		Type:    scheduling.EventFixedTime,
		Day:     2,
		Time:    scheduling.TimeOfDay{Hour: 8, Minute: 0},
		Content: smsContent("hello"),
	}

	copied := original.Copy()
	if copied.Day != original.Day || copied.Time != original.Time {
		t.Fatal("copy should preserve scheduling fields")
	}

	copied.Content.Message["en"] = "changed"
	if original.Content.Message["en"] != "hello" {
		t.Fatal("editing the copy's content mutated the original")
	}
}

// The fingerprint of a random event embeds the window, never a sampled
// time, so it is identical across calls.
func TestRandomEventFingerprintIsStable(t *testing.T) {
	e := scheduling.Event{
		Type:         scheduling.EventRandomTime,
		Day:          0,
		Time:         scheduling.TimeOfDay{Hour: 12, Minute: 0},
		WindowLength: 120,
	}

	first := e.SchedulingInfo(nil)
	for i := 0; i < 100; i++ {
		next := e.SchedulingInfo(nil)
		if len(next) != len(first) {
			t.Fatal("fingerprint length changed between calls")
		}
		for j := range next {
			if next[j] != first[j] {
				t.Fatalf("fingerprint changed between calls: %v vs %v", next, first)
			}
		}
	}
}
