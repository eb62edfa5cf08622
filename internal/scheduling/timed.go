package scheduling

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RepeatIndefinitely as TotalIterations means the schedule never terminates
// on its own.
const RepeatIndefinitely = -1

// Day-of-week anchors, Monday-based. AnyDay disables the anchor.
const (
	AnyDay = -1

	Monday = iota - 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// maxMonthlySkips bounds the monthly skip-forward loop. A positive day that
// exists in no candidate month (e.g. day 30 with a 12-month interval
// anchored on February) would otherwise loop forever.
const maxMonthlySkips = 120

// TimedSchedule is a calendar-cadence schedule: daily, weekly (daily with a
// 7-day interval and per-day events) or monthly. It repeats a fixed number
// of iterations or indefinitely, and its events fire at local clock times.
type TimedSchedule struct {
	Schedule

	// RepeatEvery is the cycle length. Positive = days between cycles,
	// negative = months (the persisted sign discriminates the two; use
	// IsMonthly / IntervalDays / IntervalMonths instead of reading the
	// raw value).
	RepeatEvery int

	// TotalIterations is the number of cycles, or RepeatIndefinitely.
	TotalIterations int

	// StartOffset shifts the effective start date by this many days,
	// applied once before day-of-week alignment.
	StartOffset int

	// StartDayOfWeek rolls the effective start date forward to the given
	// Monday-based weekday, or AnyDay for no anchor.
	StartDayOfWeek int

	// EventsType tags what kind of timed events this schedule holds. Used
	// for UI grouping only; the engine dispatches on each event's own type.
	EventsType EventType

	// UseUTCAsDefaultTimezone pins the schedule's local times to UTC
	// instead of the recipient's timezone. The timezone resolver honors
	// this flag when building the Env.
	UseUTCAsDefaultTimezone bool
}

// NewSimpleDailySchedule builds a daily schedule firing the template event
// once per day. The template's content is cloned onto the event.
func NewSimpleDailySchedule(domain string, event Event, content Content,
	totalIterations, startOffset, startDayOfWeek int) (*TimedSchedule, error) {

	event.Order = 1
	event.Day = 0
	event.Content = content.Copy()

	return newTimedSchedule(domain, []Event{event}, 1, totalIterations, startOffset, startDayOfWeek)
}

// NewSimpleWeeklySchedule builds a weekly schedule firing the template event
// on each of the given Monday-based weekdays. Each day gets its own copy of
// the event with a fresh content clone.
func NewSimpleWeeklySchedule(domain string, event Event, content Content,
	daysOfWeek []int, startDayOfWeek, totalIterations int) (*TimedSchedule, error) {

	if startDayOfWeek < Monday || startDayOfWeek > Sunday {
		return nil, fmt.Errorf("weekly schedule needs a concrete start day of week")
	}

	events := make([]Event, 0, len(daysOfWeek))
	for i, dow := range daysOfWeek {
		if dow < Monday || dow > Sunday {
			return nil, fmt.Errorf("invalid day of week %d", dow)
		}
		e := event.Copy()
		e.Order = i + 1
		e.Day = (dow - startDayOfWeek + 7) % 7
		e.Content = content.Copy()
		events = append(events, e)
	}

	return newTimedSchedule(domain, events, 7, totalIterations, 0, startDayOfWeek)
}

// NewSimpleMonthlySchedule builds a monthly schedule firing the template
// event on each of the given days of month. Positive days are literal,
// negative days count backward from month end (-1 = last day).
func NewSimpleMonthlySchedule(domain string, event Event, daysOfMonth []int, content Content,
	totalIterations int) (*TimedSchedule, error) {

	events := make([]Event, 0, len(daysOfMonth))
	for i, day := range daysOfMonth {
		if day == 0 || day > 31 || day < -28 {
			return nil, fmt.Errorf("day %d: %w", day, ErrInvalidMonthlyDay)
		}
		e := event.Copy()
		e.Order = i + 1
		e.Day = day
		e.Content = content.Copy()
		events = append(events, e)
	}

	return newTimedSchedule(domain, events, -1, totalIterations, 0, AnyDay)
}

// NewCustomDailySchedule builds a schedule from an explicit event list, each
// event carrying its own day offset, time rule and content. repeatEvery is
// the cycle length in days.
func NewCustomDailySchedule(domain string, events []Event, repeatEvery,
	totalIterations, startOffset, startDayOfWeek int) (*TimedSchedule, error) {

	if repeatEvery <= 0 {
		return nil, fmt.Errorf("custom daily schedule needs a positive day interval")
	}
	for i := range events {
		events[i].Order = i + 1
	}
	return newTimedSchedule(domain, events, repeatEvery, totalIterations, startOffset, startDayOfWeek)
}

func newTimedSchedule(domain string, events []Event, repeatEvery,
	totalIterations, startOffset, startDayOfWeek int) (*TimedSchedule, error) {

	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	eventsType := events[0].Type
	if !eventsType.IsValid() || eventsType == EventAlert {
		return nil, fmt.Errorf("event type %q: %w", eventsType, ErrUnknownEventType)
	}

	return &TimedSchedule{
		Schedule: Schedule{
			ID:     uuid.New(),
			Domain: domain,
			Active: true,
			Events: events,
		},
		RepeatEvery:     repeatEvery,
		TotalIterations: totalIterations,
		StartOffset:     startOffset,
		StartDayOfWeek:  startDayOfWeek,
		EventsType:      eventsType,
	}, nil
}

// IsMonthly reports whether the cycle advances by months rather than days.
func (s *TimedSchedule) IsMonthly() bool {
	return s.RepeatEvery < 0
}

// IntervalDays returns the cycle length in days for non-monthly schedules.
func (s *TimedSchedule) IntervalDays() int {
	return s.RepeatEvery
}

// IntervalMonths returns the cycle length in months for monthly schedules.
func (s *TimedSchedule) IntervalMonths() int {
	return -s.RepeatEvery
}

func (s *TimedSchedule) ScheduleActive() bool {
	return s.Active
}

func (s *TimedSchedule) EventList() []Event {
	return s.Events
}

// TotalIterationsComplete reports whether the instance has run past the
// final iteration. Indefinite schedules never complete on their own.
func (s *TimedSchedule) TotalIterationsComplete(inst *ScheduleInstance) bool {
	return s.TotalIterations != RepeatIndefinitely &&
		inst.ScheduleIterationNum > s.TotalIterations
}

// SetNextEventDueTimestamp computes the due timestamp for the instance's
// current (iteration, event) cursor in the recipient's local timezone and
// stores it on the instance as UTC.
func (s *TimedSchedule) SetNextEventDueTimestamp(inst *ScheduleInstance, env Env) error {
	if len(s.Events) == 0 {
		return ErrNoEvents
	}

	var localDue time.Time
	var err error
	if s.IsMonthly() {
		localDue, err = s.nextDueMonthly(inst, env)
	} else {
		localDue, err = s.nextDueDaily(inst, env)
	}
	if err != nil {
		return err
	}

	inst.NextEventDue = localDue.UTC()
	return nil
}

// nextDueDaily computes the local due timestamp for daily and weekly
// cadences:
//
//	days since start = (iteration - 1) * interval + event day offset
//
// measured from the start date after applying the start offset and the
// day-of-week roll-forward.
func (s *TimedSchedule) nextDueDaily(inst *ScheduleInstance, env Env) (time.Time, error) {
	event := s.Events[inst.CurrentEventNum]

	localTime, extraDay, err := event.LocalTime(env.Case)
	if err != nil {
		return time.Time{}, err
	}

	start, err := s.startDateWithOffsets(inst)
	if err != nil {
		return time.Time{}, err
	}

	daysSinceStart := (inst.ScheduleIterationNum-1)*s.RepeatEvery + event.Day
	due := start.AddDate(0, 0, daysSinceStart+extraDay)

	return atTime(due, localTime, env.location()), nil
}

// nextDueMonthly computes the local due timestamp for monthly cadences.
// Candidate months advance by the month interval per iteration. A positive
// event day that does not exist in the candidate month (day 30 in February)
// skips the whole iteration forward rather than clamping; negative days
// always resolve, counting backward from month end.
func (s *TimedSchedule) nextDueMonthly(inst *ScheduleInstance, env Env) (time.Time, error) {
	start := dateOnly(inst.StartDate).AddDate(0, 0, s.StartOffset)

	for attempt := 0; attempt < maxMonthlySkips; attempt++ {
		event := s.Events[inst.CurrentEventNum]
		if event.Day == 0 || event.Day > 31 || event.Day < -28 {
			return time.Time{}, fmt.Errorf("day %d: %w", event.Day, ErrInvalidMonthlyDay)
		}

		monthsAhead := (inst.ScheduleIterationNum - 1) * s.IntervalMonths()
		year, month := addMonths(start.Year(), start.Month(), monthsAhead)
		lastDay := daysInMonth(year, month)

		day := event.Day
		if day < 0 {
			day = lastDay + day + 1
		} else if day > lastDay {
			// This month has no such day; move the instance to the
			// next iteration and retry. Iteration numbers strictly
			// increase, so each retry looks at a later month.
			inst.ScheduleIterationNum++
			inst.CurrentEventNum = 0
			continue
		}

		localTime, extraDay, err := event.LocalTime(env.Case)
		if err != nil {
			return time.Time{}, err
		}

		due := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, extraDay)
		return atTime(due, localTime, env.location()), nil
	}

	return time.Time{}, ErrNoValidDueDate
}

// startDateWithOffsets applies the start offset and rolls the date forward
// to the configured start day of week.
func (s *TimedSchedule) startDateWithOffsets(inst *ScheduleInstance) (time.Time, error) {
	date := dateOnly(inst.StartDate).AddDate(0, 0, s.StartOffset)
	if s.StartDayOfWeek == AnyDay {
		return date, nil
	}
	if s.StartDayOfWeek < Monday || s.StartDayOfWeek > Sunday {
		return time.Time{}, fmt.Errorf("invalid start day of week %d", s.StartDayOfWeek)
	}
	for weekdayMondayBased(date) != s.StartDayOfWeek {
		date = date.AddDate(0, 0, 1)
	}
	return date, nil
}

// SetFirstEventDueTimestamp seeds a fresh instance cursor. An explicit start
// date is used as-is; otherwise the start date defaults to today in the
// recipient's local time, and if today's first slot has already passed the
// start is pushed forward by exactly one cycle so the first send is never
// retroactively in the past.
func (s *TimedSchedule) SetFirstEventDueTimestamp(inst *ScheduleInstance, startDate time.Time, env Env) error {
	explicit := !startDate.IsZero()
	if explicit {
		inst.StartDate = dateOnly(startDate)
	} else {
		inst.StartDate = dateOnly(env.now().In(env.location()))
	}

	if err := s.SetNextEventDueTimestamp(inst, env); err != nil {
		return err
	}

	if !explicit && inst.NextEventDue.Before(env.now()) {
		switch {
		case s.IsMonthly():
			inst.StartDate = firstOfNextMonth(inst.StartDate)
		case s.StartDayOfWeek == AnyDay:
			inst.StartDate = inst.StartDate.AddDate(0, 0, 1)
		default:
			inst.StartDate = inst.StartDate.AddDate(0, 0, 7)
		}
		return s.SetNextEventDueTimestamp(inst, env)
	}

	return nil
}

// NewTimedInstance creates the per-recipient run state, fast-forwarded past
// any events already in the past. caseID is empty for instances not driven
// by a case. A zero startDate means "start today".
func (s *TimedSchedule) NewTimedInstance(recipientType RecipientType, recipientID, caseID string,
	startDate time.Time, env Env) (*ScheduleInstance, error) {

	now := env.now()
	inst := &ScheduleInstance{
		ID:                   uuid.New(),
		ScheduleID:           s.ID,
		Domain:               s.Domain,
		ScheduleKind:         KindTimed,
		RecipientType:        recipientType,
		RecipientID:          recipientID,
		CaseID:               caseID,
		CurrentEventNum:      0,
		ScheduleIterationNum: 1,
		Active:               s.Active,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.SetFirstEventDueTimestamp(inst, startDate, env); err != nil {
		return nil, err
	}
	if err := MoveToNextEventNotInThePast(s, inst, env); err != nil {
		return nil, err
	}
	inst.ScheduleRevision = s.Revision(env.Case)
	return inst, nil
}

// RecalculateSchedule recomputes the instance's cursor from scratch: reset
// to iteration 1, event 0, recompute the first due timestamp from the
// (possibly new) start date and fast-forward past events already in the
// past without sending them. Called when the schedule revision or start
// date changes, or when a watched case property resets a timed schedule.
func (s *TimedSchedule) RecalculateSchedule(inst *ScheduleInstance, newStartDate time.Time, env Env) error {
	if newStartDate.IsZero() {
		newStartDate = inst.StartDate
	}

	inst.CurrentEventNum = 0
	inst.ScheduleIterationNum = 1
	inst.Active = true

	if err := s.SetFirstEventDueTimestamp(inst, newStartDate, env); err != nil {
		return err
	}
	if err := MoveToNextEventNotInThePast(s, inst, env); err != nil {
		return err
	}
	inst.ScheduleRevision = s.Revision(env.Case)
	return nil
}

// Revision returns a deterministic hash of every non-content scheduling
// parameter. A running instance whose stored revision differs from the
// schedule's current revision must have its cached due timestamp recomputed
// from scratch rather than merely advanced.
func (s *TimedSchedule) Revision(c Case) string {
	fingerprint := []any{
		s.RepeatEvery,
		s.TotalIterations,
		s.StartOffset,
		s.StartDayOfWeek,
	}

	eventInfo := make([][]any, 0, len(s.Events))
	for _, e := range s.Events {
		eventInfo = append(eventInfo, e.SchedulingInfo(c))
	}
	fingerprint = append(fingerprint, eventInfo)

	if s.UseUTCAsDefaultTimezone {
		fingerprint = append(fingerprint, "UTC_DEFAULT")
	}

	encoded, err := json.Marshal(fingerprint)
	if err != nil {
		// Fingerprint values are ints, strings and nested slices of the
		// same; marshaling cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

var _ InstanceScheduler = (*TimedSchedule)(nil)

// ---- date helpers ----

// dateOnly truncates a timestamp to its date, pinned to UTC midnight.
// Start dates are calendar dates; the timezone only matters once a clock
// time is attached.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// atTime attaches a local clock time to a calendar date in the given zone.
func atTime(date time.Time, tod TimeOfDay, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), tod.Hour, tod.Minute, 0, 0, loc)
}

// weekdayMondayBased converts Go's Sunday-based weekday to Monday=0..Sunday=6.
func weekdayMondayBased(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// addMonths advances a (year, month) pair without day-of-month
// normalization; the caller picks a valid day afterwards.
func addMonths(year int, month time.Month, months int) (int, time.Month) {
	total := year*12 + int(month) - 1 + months
	return total / 12, time.Month(total%12 + 1)
}

// daysInMonth returns the number of days in the given month, leap years
// included.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func firstOfNextMonth(date time.Time) time.Time {
	year, month := addMonths(date.Year(), date.Month(), 1)
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}
