package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

type pgScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewPgScheduleRepository returns a ScheduleRepository backed by PostgreSQL.
func NewPgScheduleRepository(pool *pgxpool.Pool) ScheduleRepository {
	return &pgScheduleRepository{pool: pool}
}

func (r *pgScheduleRepository) Create(ctx context.Context, s *scheduling.StoredSchedule) error {
	base, err := s.Base()
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	filterJSON, err := json.Marshal(base.UserDataFilter)
	if err != nil {
		return fmt.Errorf("marshal user data filter: %w", err)
	}

	repeatEvery, totalIterations, startOffset, startDayOfWeek, eventsType, useUTC := timedColumns(s)

	_, err = tx.Exec(ctx, `
		INSERT INTO schedules
			(id, domain, kind, active, deleted, default_language_code,
			 include_descendant_locations, user_data_filter, reset_case_property_name,
			 repeat_every, total_iterations, start_offset, start_day_of_week,
			 events_type, use_utc_default, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())`,
		base.ID, base.Domain, s.Kind, base.Active, base.Deleted, base.DefaultLanguageCode,
		base.IncludeDescendantLocations, filterJSON, base.ResetCasePropertyName,
		repeatEvery, totalIterations, startOffset, startDayOfWeek, eventsType, useUTC,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}

	if err := insertEvents(ctx, tx, base.ID, base.Events); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schedule: %w", err)
	}
	return nil
}

func (r *pgScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*scheduling.StoredSchedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, domain, kind, active, deleted, default_language_code,
		       include_descendant_locations, user_data_filter, reset_case_property_name,
		       repeat_every, total_iterations, start_offset, start_day_of_week,
		       events_type, use_utc_default
		FROM schedules WHERE id = $1`, id)

	var (
		base       scheduling.Schedule
		kind       scheduling.ScheduleKind
		filterJSON []byte
		timed      scheduling.TimedSchedule
	)
	err := row.Scan(
		&base.ID, &base.Domain, &kind, &base.Active, &base.Deleted, &base.DefaultLanguageCode,
		&base.IncludeDescendantLocations, &filterJSON, &base.ResetCasePropertyName,
		&timed.RepeatEvery, &timed.TotalIterations, &timed.StartOffset, &timed.StartDayOfWeek,
		&timed.EventsType, &timed.UseUTCAsDefaultTimezone,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scheduling.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	if len(filterJSON) > 0 {
		if err := json.Unmarshal(filterJSON, &base.UserDataFilter); err != nil {
			return nil, fmt.Errorf("unmarshal user data filter: %w", err)
		}
	}

	events, err := r.loadEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	base.Events = events

	switch kind {
	case scheduling.KindAlert:
		return scheduling.NewStoredAlert(&scheduling.AlertSchedule{Schedule: base}), nil
	case scheduling.KindTimed:
		timed.Schedule = base
		return scheduling.NewStoredTimed(&timed), nil
	default:
		return nil, fmt.Errorf("schedule kind %q: %w", kind, scheduling.ErrUnsupportedSchedule)
	}
}

// Update rewrites the schedule row and replaces the whole event list in one
// transaction, so readers never observe a half-edited schedule.
func (r *pgScheduleRepository) Update(ctx context.Context, s *scheduling.StoredSchedule) error {
	base, err := s.Base()
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	filterJSON, err := json.Marshal(base.UserDataFilter)
	if err != nil {
		return fmt.Errorf("marshal user data filter: %w", err)
	}

	repeatEvery, totalIterations, startOffset, startDayOfWeek, eventsType, useUTC := timedColumns(s)

	tag, err := tx.Exec(ctx, `
		UPDATE schedules
		SET active = $1, deleted = $2, default_language_code = $3,
		    include_descendant_locations = $4, user_data_filter = $5,
		    reset_case_property_name = $6,
		    repeat_every = $7, total_iterations = $8, start_offset = $9,
		    start_day_of_week = $10, events_type = $11, use_utc_default = $12,
		    updated_at = NOW()
		WHERE id = $13`,
		base.Active, base.Deleted, base.DefaultLanguageCode,
		base.IncludeDescendantLocations, filterJSON, base.ResetCasePropertyName,
		repeatEvery, totalIterations, startOffset, startDayOfWeek, eventsType, useUTC,
		base.ID,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrNotFound
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM schedule_events WHERE schedule_id = $1`, base.ID); err != nil {
		return fmt.Errorf("delete old events: %w", err)
	}
	if err := insertEvents(ctx, tx, base.ID, base.Events); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schedule update: %w", err)
	}
	return nil
}

func (r *pgScheduleRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE schedules SET active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("set schedule active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrNotFound
	}
	return nil
}

// Delete removes the schedule and its events for good. Only the purge worker
// calls this, after the instances are gone.
func (r *pgScheduleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

func (r *pgScheduleRepository) loadEvents(ctx context.Context, scheduleID uuid.UUID) ([]scheduling.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_order, event_type, minutes_to_wait, day,
		       time_hour, time_minute, window_length, case_property_name, content
		FROM schedule_events
		WHERE schedule_id = $1
		ORDER BY event_order ASC`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("load schedule events: %w", err)
	}
	defer rows.Close()

	var events []scheduling.Event
	for rows.Next() {
		var (
			e           scheduling.Event
			contentJSON []byte
		)
		err := rows.Scan(&e.Order, &e.Type, &e.MinutesToWait, &e.Day,
			&e.Time.Hour, &e.Time.Minute, &e.WindowLength, &e.CasePropertyName, &contentJSON)
		if err != nil {
			return nil, fmt.Errorf("scan schedule event: %w", err)
		}
		if err := json.Unmarshal(contentJSON, &e.Content); err != nil {
			return nil, fmt.Errorf("unmarshal event content: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func insertEvents(ctx context.Context, tx pgx.Tx, scheduleID uuid.UUID, events []scheduling.Event) error {
	for _, e := range events {
		contentJSON, err := json.Marshal(e.Content)
		if err != nil {
			return fmt.Errorf("marshal event content: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO schedule_events
				(schedule_id, event_order, event_type, minutes_to_wait, day,
				 time_hour, time_minute, window_length, case_property_name, content)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			scheduleID, e.Order, e.Type, e.MinutesToWait, e.Day,
			e.Time.Hour, e.Time.Minute, e.WindowLength, e.CasePropertyName, contentJSON,
		)
		if err != nil {
			return fmt.Errorf("insert schedule event: %w", err)
		}
	}
	return nil
}

// timedColumns flattens the timed-only fields for storage. Alert schedules
// store zero values; the kind column is the source of truth.
func timedColumns(s *scheduling.StoredSchedule) (repeatEvery, totalIterations, startOffset, startDayOfWeek int, eventsType scheduling.EventType, useUTC bool) {
	if s.Kind != scheduling.KindTimed || s.Timed == nil {
		return 0, 0, 0, scheduling.AnyDay, scheduling.EventAlert, false
	}
	t := s.Timed
	return t.RepeatEvery, t.TotalIterations, t.StartOffset, t.StartDayOfWeek, t.EventsType, t.UseUTCAsDefaultTimezone
}
