package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remindhub/messaging-scheduler/internal/queue"
	"github.com/remindhub/messaging-scheduler/internal/repository"
	"github.com/remindhub/messaging-scheduler/internal/scheduling"
	"github.com/remindhub/messaging-scheduler/internal/service"
)

type broadcastFixture struct {
	svc        *service.BroadcastService
	broadcasts *repository.MockBroadcastRepository
	schedules  *repository.MockScheduleRepository
	instances  *repository.MockInstanceRepository
	q          *queue.DueQueue
	clock      *scheduling.FixedClock
}

func newBroadcastFixture(now time.Time) *broadcastFixture {
	f := &broadcastFixture{
		broadcasts: repository.NewMockBroadcastRepository(),
		schedules:  repository.NewMockScheduleRepository(),
		instances:  repository.NewMockInstanceRepository(),
		q:          queue.New(),
		clock:      &scheduling.FixedClock{Now: now},
	}
	envs := service.NewEnvFactory(f.clock, time.UTC)
	f.svc = service.NewBroadcastService(f.broadcasts, f.schedules, f.instances,
		repository.NewMockCaseRepository(), f.q, envs, zap.NewNop())
	return f
}

func sms(text string) scheduling.Content {
	return scheduling.Content{
		Type:    scheduling.ContentSMS,
		Message: map[string]string{"en": text},
	}
}

func validImmediateReq() service.ImmediateBroadcastRequest {
	return service.ImmediateBroadcastRequest{
		Domain: "test-domain",
		Name:   "flash announcement",
		Recipients: []scheduling.Recipient{
			{Type: scheduling.RecipientUser, ID: "user-1"},
			{Type: scheduling.RecipientUser, ID: "user-2"},
		},
		Content: sms("hello"),
	}
}

func validScheduledReq(startDate time.Time) service.ScheduledBroadcastRequest {
	return service.ScheduledBroadcastRequest{
		Domain: "test-domain",
		Name:   "daily reminder",
		Recipients: []scheduling.Recipient{
			{Type: scheduling.RecipientUser, ID: "user-1"},
			{Type: scheduling.RecipientUser, ID: "user-2"},
		},
		StartDate:           startDate,
		DefaultLanguageCode: "en",
		Schedule: service.TimedScheduleInput{
			Frequency:       service.FrequencyDaily,
			Time:            scheduling.TimeOfDay{Hour: 16, Minute: 0},
			TotalIterations: scheduling.RepeatIndefinitely,
			UseUTC:          true,
		},
		Content: sms("take your medication"),
	}
}

func TestBroadcastService_CreateImmediate(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newBroadcastFixture(now)
	ctx := context.Background()

	b, err := f.svc.CreateImmediate(ctx, validImmediateReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Kind != scheduling.BroadcastImmediate {
		t.Fatalf("expected immediate broadcast, got %s", b.Kind)
	}

	instances, err := f.instances.ListBySchedule(ctx, b.ScheduleID)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expected one instance per recipient, got %d", len(instances))
	}
	for _, inst := range instances {
		if !inst.NextEventDue.Equal(now) {
			t.Errorf("immediate instance should be due now, got %v", inst.NextEventDue)
		}
		if inst.ScheduleKind != scheduling.KindAlert {
			t.Errorf("expected alert kind, got %s", inst.ScheduleKind)
		}
	}

	alertDepth, _ := f.q.Depths()
	if alertDepth != 2 {
		t.Errorf("expected 2 items enqueued on the alert tier, got %d", alertDepth)
	}
}

func TestBroadcastService_CreateImmediate_Invalid(t *testing.T) {
	f := newBroadcastFixture(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	tests := []struct {
		name        string
		mutate      func(*service.ImmediateBroadcastRequest)
		expectedErr error
	}{
		{"empty name", func(r *service.ImmediateBroadcastRequest) { r.Name = "" }, scheduling.ErrEmptyBroadcastName},
		{"no recipients", func(r *service.ImmediateBroadcastRequest) { r.Recipients = nil }, scheduling.ErrNoRecipients},
		{"bad recipient type", func(r *service.ImmediateBroadcastRequest) {
			r.Recipients = []scheduling.Recipient{{Type: "carrier-pigeon", ID: "x"}}
		}, scheduling.ErrInvalidRecipientType},
		{"empty content", func(r *service.ImmediateBroadcastRequest) { r.Content.Message = nil }, scheduling.ErrEmptyContent},
		{"unknown content type", func(r *service.ImmediateBroadcastRequest) { r.Content.Type = "fax" }, scheduling.ErrUnknownContentType},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validImmediateReq()
			tc.mutate(&req)
			_, err := f.svc.CreateImmediate(ctx, req)
			if !errors.Is(err, tc.expectedErr) {
				t.Fatalf("expected %v, got %v", tc.expectedErr, err)
			}
		})
	}
}

func TestBroadcastService_CreateScheduled(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newBroadcastFixture(now)
	ctx := context.Background()

	startDate := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	b, err := f.svc.CreateScheduled(ctx, validScheduledReq(startDate))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Kind != scheduling.BroadcastScheduled {
		t.Fatalf("expected scheduled broadcast, got %s", b.Kind)
	}

	instances, err := f.instances.ListBySchedule(ctx, b.ScheduleID)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(instances))
	}
	wantDue := time.Date(2024, 3, 2, 16, 0, 0, 0, time.UTC)
	for _, inst := range instances {
		if !inst.NextEventDue.Equal(wantDue) {
			t.Errorf("expected due %v, got %v", wantDue, inst.NextEventDue)
		}
		if inst.ScheduleRevision == "" {
			t.Error("timed instance should carry the schedule revision")
		}
	}

	// Scheduled broadcasts wait for the sweep; nothing goes on the queue.
	alertDepth, timedDepth := f.q.Depths()
	if alertDepth+timedDepth != 0 {
		t.Errorf("expected empty queue, got alert=%d timed=%d", alertDepth, timedDepth)
	}
}

func TestBroadcastService_CreateScheduled_MissingStartDate(t *testing.T) {
	f := newBroadcastFixture(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	req := validScheduledReq(time.Time{})
	_, err := f.svc.CreateScheduled(context.Background(), req)
	if !errors.Is(err, scheduling.ErrMissingStartDate) {
		t.Fatalf("expected ErrMissingStartDate, got %v", err)
	}
}

func TestBroadcastService_UpdateImmediate_Rejected(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newBroadcastFixture(now)
	ctx := context.Background()

	b, err := f.svc.CreateImmediate(ctx, validImmediateReq())
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.UpdateScheduled(ctx, b.ID, validScheduledReq(now.AddDate(0, 0, 1)))
	if !errors.Is(err, scheduling.ErrImmediateBroadcastEdit) {
		t.Fatalf("expected ErrImmediateBroadcastEdit, got %v", err)
	}
}

func TestBroadcastService_UpdateScheduled_RefreshesRecipients(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newBroadcastFixture(now)
	ctx := context.Background()

	startDate := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	b, err := f.svc.CreateScheduled(ctx, validScheduledReq(startDate))
	if err != nil {
		t.Fatal(err)
	}

	before, err := f.instances.ListBySchedule(ctx, b.ScheduleID)
	if err != nil {
		t.Fatal(err)
	}
	var survivorID = before[0].ID
	if before[0].RecipientID != "user-1" {
		survivorID = before[1].ID
	}

	req := validScheduledReq(startDate)
	req.Recipients = []scheduling.Recipient{
		{Type: scheduling.RecipientUser, ID: "user-1"},
		{Type: scheduling.RecipientUser, ID: "user-3"},
	}
	if _, err := f.svc.UpdateScheduled(ctx, b.ID, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, err := f.instances.ListBySchedule(ctx, b.ScheduleID)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 2 {
		t.Fatalf("expected 2 instances after refresh, got %d", len(after))
	}
	seen := map[string]bool{}
	for _, inst := range after {
		seen[inst.RecipientID] = true
		if inst.RecipientID == "user-1" && inst.ID != survivorID {
			t.Error("surviving recipient should keep its instance, not get a new one")
		}
	}
	if !seen["user-1"] || !seen["user-3"] || seen["user-2"] {
		t.Errorf("expected instances for user-1 and user-3 only, got %v", seen)
	}
}

func TestBroadcastService_RefreshInstances_AlertNewcomerJoinsMidChain(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newBroadcastFixture(now)
	ctx := context.Background()

	req := validImmediateReq()
	req.Recipients = req.Recipients[:1] // just user-1
	b, err := f.svc.CreateImmediate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	// Advance user-1 partway through the chain.
	running, err := f.instances.ListBySchedule(ctx, b.ScheduleID)
	if err != nil {
		t.Fatal(err)
	}
	running[0].CurrentEventNum = 1
	running[0].NextEventDue = now.Add(30 * time.Minute)
	if err := f.instances.Update(ctx, running[0]); err != nil {
		t.Fatal(err)
	}

	b.Recipients = append(b.Recipients, scheduling.Recipient{Type: scheduling.RecipientUser, ID: "user-2"})
	stored, err := f.schedules.GetByID(ctx, b.ScheduleID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.RefreshInstances(ctx, b, stored); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, err := f.instances.ListBySchedule(ctx, b.ScheduleID)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(after))
	}
	for _, inst := range after {
		if inst.RecipientID != "user-2" {
			continue
		}
		if inst.CurrentEventNum != 1 {
			t.Errorf("newcomer should join mid-chain at event 1, got %d", inst.CurrentEventNum)
		}
		if !inst.NextEventDue.Equal(now.Add(30 * time.Minute)) {
			t.Errorf("newcomer should inherit the running cursor's due timestamp, got %v", inst.NextEventDue)
		}
	}
}

func TestBroadcastService_Delete_SoftDeletesAndDeactivates(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newBroadcastFixture(now)
	ctx := context.Background()

	b, err := f.svc.CreateScheduled(ctx, validScheduledReq(now.AddDate(0, 0, 1)))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Delete(ctx, b.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.svc.GetByID(ctx, b.ID); !errors.Is(err, scheduling.ErrNotFound) {
		t.Errorf("deleted broadcast must be invisible, got err=%v", err)
	}

	stored, err := f.schedules.GetByID(ctx, b.ScheduleID)
	if err != nil {
		t.Fatal(err)
	}
	base, err := stored.Base()
	if err != nil {
		t.Fatal(err)
	}
	if base.Active {
		t.Error("schedule should be deactivated on delete so the sweep stops firing")
	}

	// The row is still discoverable for the purge worker.
	deleted, err := f.broadcasts.FindDeleted(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 {
		t.Errorf("expected 1 purgeable broadcast, got %d", len(deleted))
	}
}

func TestBroadcastService_SetActive(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newBroadcastFixture(now)
	ctx := context.Background()

	b, err := f.svc.CreateScheduled(ctx, validScheduledReq(now.AddDate(0, 0, 1)))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.SetActive(ctx, b.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, err := f.schedules.GetByID(ctx, b.ScheduleID)
	if err != nil {
		t.Fatal(err)
	}
	base, _ := stored.Base()
	if base.Active {
		t.Error("expected schedule deactivated")
	}

	imm, err := f.svc.CreateImmediate(ctx, validImmediateReq())
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.SetActive(ctx, imm.ID, false); !errors.Is(err, scheduling.ErrImmediateBroadcastEdit) {
		t.Fatalf("expected ErrImmediateBroadcastEdit for immediate broadcast, got %v", err)
	}
}

func TestBroadcastService_List(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newBroadcastFixture(now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.clock.Set(now.Add(time.Duration(i) * time.Minute))
		if _, err := f.svc.CreateImmediate(ctx, validImmediateReq()); err != nil {
			t.Fatal(err)
		}
	}

	page, total, err := f.svc.List(ctx, "test-domain", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(page) != 2 {
		t.Errorf("expected page of 2, got %d", len(page))
	}

	none, total, err := f.svc.List(ctx, "other-domain", 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || len(none) != 0 {
		t.Errorf("expected no broadcasts for other-domain, got %d", total)
	}
}

func TestBroadcastService_ListInstances(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newBroadcastFixture(now)
	ctx := context.Background()

	b, err := f.svc.CreateImmediate(ctx, validImmediateReq())
	if err != nil {
		t.Fatal(err)
	}

	instances, content, err := f.svc.ListInstances(ctx, b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("expected one instance per recipient, got %d", len(instances))
	}
	if content.Message["en"] != "hello" {
		t.Errorf("expected schedule content alongside instances, got %q", content.Message["en"])
	}

	if _, _, err := f.svc.ListInstances(ctx, uuid.New()); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown broadcast, got %v", err)
	}
}
