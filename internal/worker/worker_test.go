package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remindhub/messaging-scheduler/internal/queue"
	"github.com/remindhub/messaging-scheduler/internal/ratelimiter"
	"github.com/remindhub/messaging-scheduler/internal/repository"
	"github.com/remindhub/messaging-scheduler/internal/scheduling"
	"github.com/remindhub/messaging-scheduler/internal/sender"
	"github.com/remindhub/messaging-scheduler/internal/service"
)

type mockSender struct {
	mu      sync.Mutex
	sent    []sender.Message
	SendErr error
}

func (m *mockSender) Send(_ context.Context, msg sender.Message) (*sender.SendResponse, error) {
	if m.SendErr != nil {
		return nil, m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return &sender.SendResponse{MessageID: "msg-1", Status: "accepted"}, nil
}

func (m *mockSender) Sent() []sender.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sender.Message(nil), m.sent...)
}

type workerFixture struct {
	worker     *Worker
	schedules  *repository.MockScheduleRepository
	instances  *repository.MockInstanceRepository
	broadcasts *repository.MockBroadcastRepository
	cases      *repository.MockCaseRepository
	sender     *mockSender
	clock      *scheduling.FixedClock
	envs       service.EnvFactory

	failedCount int
	sentCount   int
}

func newWorkerFixture(now time.Time) *workerFixture {
	f := &workerFixture{
		schedules:  repository.NewMockScheduleRepository(),
		instances:  repository.NewMockInstanceRepository(),
		broadcasts: repository.NewMockBroadcastRepository(),
		cases:      repository.NewMockCaseRepository(),
		sender:     &mockSender{},
		clock:      &scheduling.FixedClock{Now: now},
	}
	f.envs = service.NewEnvFactory(f.clock, time.UTC)
	f.worker = NewWorker(1, queue.New(),
		f.schedules, f.instances, f.broadcasts, f.cases,
		f.sender, ratelimiter.New(1000), f.envs, zap.NewNop(),
		func(scheduling.ContentType, time.Duration) { f.sentCount++ },
		func(scheduling.ContentType) { f.failedCount++ },
	)
	return f
}

func smsContent(text string) scheduling.Content {
	return scheduling.Content{
		Type:    scheduling.ContentSMS,
		Message: map[string]string{"en": text},
	}
}

func (f *workerFixture) itemFor(inst *scheduling.ScheduleInstance) queue.Item {
	return queue.Item{
		InstanceID: inst.ID,
		ScheduleID: inst.ScheduleID,
		Kind:       inst.ScheduleKind,
	}
}

func TestWorkerSendsDueAlertEvent(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newWorkerFixture(now)
	ctx := context.Background()

	alert := scheduling.NewCustomAlertSchedule("test-domain", []scheduling.Event{
		{MinutesToWait: 0, Content: smsContent("first")},
		{MinutesToWait: 60, Content: smsContent("second")},
	})
	alert.DefaultLanguageCode = "en"
	stored := scheduling.NewStoredAlert(alert)
	if err := f.schedules.Create(ctx, stored); err != nil {
		t.Fatal(err)
	}

	inst, err := alert.NewAlertInstance(scheduling.RecipientUser, "user-1", f.envs.For(stored, nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.instances.Create(ctx, inst); err != nil {
		t.Fatal(err)
	}

	b := &scheduling.Broadcast{
		ID:         uuid.New(),
		Domain:     "test-domain",
		Name:       "test broadcast",
		Kind:       scheduling.BroadcastImmediate,
		ScheduleID: alert.ID,
		CreatedAt:  now,
	}
	if err := f.broadcasts.Create(ctx, b); err != nil {
		t.Fatal(err)
	}

	f.worker.process(ctx, f.itemFor(inst))

	sent := f.sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message sent, got %d", len(sent))
	}
	if sent[0].Body != "first" {
		t.Errorf("expected body %q, got %q", "first", sent[0].Body)
	}
	if sent[0].Recipient.ID != "user-1" {
		t.Errorf("expected recipient user-1, got %q", sent[0].Recipient.ID)
	}
	if f.sentCount != 1 {
		t.Errorf("expected onSent hook to fire once, got %d", f.sentCount)
	}

	after, err := f.instances.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.CurrentEventNum != 1 || after.ScheduleIterationNum != 1 {
		t.Errorf("expected cursor (1, 1), got (%d, %d)", after.CurrentEventNum, after.ScheduleIterationNum)
	}
	if !after.Active {
		t.Error("instance should still be active with one event remaining")
	}
	wantDue := now.Add(60 * time.Minute)
	if !after.NextEventDue.Equal(wantDue) {
		t.Errorf("expected next due %v, got %v", wantDue, after.NextEventDue)
	}

	stamped, err := f.broadcasts.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stamped.LastSentTimestamp.Equal(now) {
		t.Errorf("expected last sent %v, got %v", now, stamped.LastSentTimestamp)
	}
}

func TestWorkerCompletesAlertChain(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newWorkerFixture(now)
	ctx := context.Background()

	alert := scheduling.NewSimpleAlertSchedule("test-domain", smsContent("only"))
	stored := scheduling.NewStoredAlert(alert)
	if err := f.schedules.Create(ctx, stored); err != nil {
		t.Fatal(err)
	}
	inst, err := alert.NewAlertInstance(scheduling.RecipientUser, "user-1", f.envs.For(stored, nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.instances.Create(ctx, inst); err != nil {
		t.Fatal(err)
	}

	f.worker.process(ctx, f.itemFor(inst))

	if len(f.sender.Sent()) != 1 {
		t.Fatalf("expected 1 message sent, got %d", len(f.sender.Sent()))
	}
	after, err := f.instances.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Active {
		t.Error("instance should be inactive after the single event fires")
	}
	if after.ScheduleIterationNum != 2 {
		t.Errorf("expected iteration 2 after wrap, got %d", after.ScheduleIterationNum)
	}
}

func TestWorkerFailedSendDoesNotAdvance(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newWorkerFixture(now)
	f.sender.SendErr = errors.New("gateway unavailable")
	ctx := context.Background()

	alert := scheduling.NewSimpleAlertSchedule("test-domain", smsContent("hello"))
	stored := scheduling.NewStoredAlert(alert)
	if err := f.schedules.Create(ctx, stored); err != nil {
		t.Fatal(err)
	}
	inst, err := alert.NewAlertInstance(scheduling.RecipientUser, "user-1", f.envs.For(stored, nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.instances.Create(ctx, inst); err != nil {
		t.Fatal(err)
	}

	f.worker.process(ctx, f.itemFor(inst))

	if f.failedCount != 1 {
		t.Errorf("expected onFailed hook to fire once, got %d", f.failedCount)
	}
	after, err := f.instances.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.CurrentEventNum != 0 || !after.Active {
		t.Errorf("cursor must not advance on failure: event=%d active=%v",
			after.CurrentEventNum, after.Active)
	}
	if !after.NextEventDue.Equal(inst.NextEventDue) {
		t.Errorf("due timestamp must not change on failure: %v vs %v",
			after.NextEventDue, inst.NextEventDue)
	}
}

func TestWorkerSkipsInstanceNotYetDue(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newWorkerFixture(now)
	ctx := context.Background()

	alert := scheduling.NewCustomAlertSchedule("test-domain", []scheduling.Event{
		{MinutesToWait: 30, Content: smsContent("later")},
	})
	stored := scheduling.NewStoredAlert(alert)
	if err := f.schedules.Create(ctx, stored); err != nil {
		t.Fatal(err)
	}
	inst, err := alert.NewAlertInstance(scheduling.RecipientUser, "user-1", f.envs.For(stored, nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.instances.Create(ctx, inst); err != nil {
		t.Fatal(err)
	}

	f.worker.process(ctx, f.itemFor(inst))

	if len(f.sender.Sent()) != 0 {
		t.Fatalf("expected no sends for a future due timestamp, got %d", len(f.sender.Sent()))
	}
	after, err := f.instances.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.CurrentEventNum != 0 || !after.Active {
		t.Errorf("cursor must not move: event=%d active=%v", after.CurrentEventNum, after.Active)
	}
}

func TestWorkerRemovesOrphanInstance(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newWorkerFixture(now)
	ctx := context.Background()

	inst := &scheduling.ScheduleInstance{
		ID:                   uuid.New(),
		ScheduleID:           uuid.New(),
		Domain:               "test-domain",
		ScheduleKind:         scheduling.KindAlert,
		RecipientType:        scheduling.RecipientUser,
		RecipientID:          "user-1",
		ScheduleIterationNum: 1,
		NextEventDue:         now,
		Active:               true,
	}
	if err := f.instances.Create(ctx, inst); err != nil {
		t.Fatal(err)
	}

	f.worker.process(ctx, f.itemFor(inst))

	if _, err := f.instances.GetByID(ctx, inst.ID); !errors.Is(err, scheduling.ErrNotFound) {
		t.Errorf("expected orphan instance deleted, got err=%v", err)
	}
	if len(f.sender.Sent()) != 0 {
		t.Error("nothing should be sent for an orphan instance")
	}
}

func TestWorkerRecalculatesOnRevisionMismatch(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newWorkerFixture(now)
	ctx := context.Background()

	event := scheduling.Event{
		Type: scheduling.EventFixedTime,
		Time: scheduling.TimeOfDay{Hour: 16, Minute: 0},
	}
	timed, err := scheduling.NewSimpleDailySchedule("test-domain", event, smsContent("daily"),
		scheduling.RepeatIndefinitely, 0, scheduling.AnyDay)
	if err != nil {
		t.Fatal(err)
	}
	stored := scheduling.NewStoredTimed(timed)
	if err := f.schedules.Create(ctx, stored); err != nil {
		t.Fatal(err)
	}

	inst, err := timed.NewTimedInstance(scheduling.RecipientUser, "user-1", "",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), f.envs.For(stored, nil))
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a schedule edit since the instance was computed: the stored
	// revision is stale and the cached due timestamp claims the event is due.
	inst.ScheduleRevision = "stale"
	inst.NextEventDue = now.Add(-time.Hour)
	if err := f.instances.Create(ctx, inst); err != nil {
		t.Fatal(err)
	}

	f.worker.process(ctx, f.itemFor(inst))

	if len(f.sender.Sent()) != 0 {
		t.Fatalf("recalculated instance is not due yet; expected no sends, got %d", len(f.sender.Sent()))
	}
	after, err := f.instances.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.ScheduleRevision != timed.Revision(nil) {
		t.Errorf("expected revision refreshed to %q, got %q", timed.Revision(nil), after.ScheduleRevision)
	}
	wantDue := time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)
	if !after.NextEventDue.Equal(wantDue) {
		t.Errorf("expected recomputed due %v, got %v", wantDue, after.NextEventDue)
	}
}

func TestWorkerDeactivatedScheduleSilencesInstance(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newWorkerFixture(now)
	ctx := context.Background()

	alert := scheduling.NewSimpleAlertSchedule("test-domain", smsContent("hello"))
	stored := scheduling.NewStoredAlert(alert)
	if err := f.schedules.Create(ctx, stored); err != nil {
		t.Fatal(err)
	}
	inst, err := alert.NewAlertInstance(scheduling.RecipientUser, "user-1", f.envs.For(stored, nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.instances.Create(ctx, inst); err != nil {
		t.Fatal(err)
	}
	if err := f.schedules.SetActive(ctx, alert.ID, false); err != nil {
		t.Fatal(err)
	}

	f.worker.process(ctx, f.itemFor(inst))

	if len(f.sender.Sent()) != 0 {
		t.Fatalf("deactivated schedule must not send, got %d sends", len(f.sender.Sent()))
	}
	after, err := f.instances.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Active {
		t.Error("instance should be deactivated to match the schedule")
	}
}

func TestSweepWorkerEnqueuesDueInstances(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	instances := repository.NewMockInstanceRepository()
	q := queue.New()
	clock := &scheduling.FixedClock{Now: now}
	ctx := context.Background()

	due := &scheduling.ScheduleInstance{
		ID:           uuid.New(),
		ScheduleID:   uuid.New(),
		ScheduleKind: scheduling.KindAlert,
		NextEventDue: now.Add(-time.Minute),
		Active:       true,
	}
	future := &scheduling.ScheduleInstance{
		ID:           uuid.New(),
		ScheduleID:   uuid.New(),
		ScheduleKind: scheduling.KindTimed,
		NextEventDue: now.Add(time.Hour),
		Active:       true,
	}
	for _, inst := range []*scheduling.ScheduleInstance{due, future} {
		if err := instances.Create(ctx, inst); err != nil {
			t.Fatal(err)
		}
	}

	sw := NewSweepWorker(instances, q, clock, time.Second, 100, zap.NewNop())
	sw.poll(ctx)

	alertDepth, timedDepth := q.Depths()
	if alertDepth != 1 || timedDepth != 0 {
		t.Fatalf("expected only the due alert instance enqueued, got alert=%d timed=%d",
			alertDepth, timedDepth)
	}
	item, ok := q.Dequeue(ctx)
	if !ok {
		t.Fatal("expected an item")
	}
	if item.InstanceID != due.ID {
		t.Errorf("expected instance %s, got %s", due.ID, item.InstanceID)
	}
}

func TestPurgeWorkerHardDeletesSoftDeletedBroadcasts(t *testing.T) {
	ctx := context.Background()
	broadcasts := repository.NewMockBroadcastRepository()
	schedules := repository.NewMockScheduleRepository()
	instances := repository.NewMockInstanceRepository()

	alert := scheduling.NewSimpleAlertSchedule("test-domain", smsContent("bye"))
	stored := scheduling.NewStoredAlert(alert)
	if err := schedules.Create(ctx, stored); err != nil {
		t.Fatal(err)
	}
	env := scheduling.Env{Clock: &scheduling.FixedClock{Now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}}
	for _, recipient := range []string{"user-1", "user-2"} {
		inst, err := alert.NewAlertInstance(scheduling.RecipientUser, recipient, env)
		if err != nil {
			t.Fatal(err)
		}
		if err := instances.Create(ctx, inst); err != nil {
			t.Fatal(err)
		}
	}

	b := &scheduling.Broadcast{
		ID:         uuid.New(),
		Domain:     "test-domain",
		Name:       "doomed",
		Kind:       scheduling.BroadcastImmediate,
		ScheduleID: alert.ID,
	}
	if err := broadcasts.Create(ctx, b); err != nil {
		t.Fatal(err)
	}
	if err := broadcasts.SoftDelete(ctx, b.ID); err != nil {
		t.Fatal(err)
	}

	pw := NewPurgeWorker(broadcasts, schedules, instances, time.Second, 100, zap.NewNop())
	pw.poll(ctx)

	if _, err := schedules.GetByID(ctx, alert.ID); !errors.Is(err, scheduling.ErrNotFound) {
		t.Errorf("expected schedule purged, got err=%v", err)
	}
	left, err := instances.ListBySchedule(ctx, alert.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("expected every instance purged, got %d left", len(left))
	}
	remaining, err := broadcasts.FindDeleted(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no soft-deleted broadcasts left, got %d", len(remaining))
	}
}
