package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// staleClaimAfter is how long a claimed instance stays invisible to other
// sweepers. A worker that crashes mid-send loses its claim after this long
// and the instance is retried.
const staleClaimAfter = 5 * time.Minute

type pgInstanceRepository struct {
	pool *pgxpool.Pool
}

// NewPgInstanceRepository returns an InstanceRepository backed by PostgreSQL.
func NewPgInstanceRepository(pool *pgxpool.Pool) InstanceRepository {
	return &pgInstanceRepository{pool: pool}
}

func (r *pgInstanceRepository) Create(ctx context.Context, inst *scheduling.ScheduleInstance) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_instances
			(id, schedule_id, domain, schedule_kind, recipient_type, recipient_id, case_id,
			 current_event_num, schedule_iteration_num, next_event_due, active,
			 start_date, schedule_revision, last_reset_case_property_value,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		inst.ID, inst.ScheduleID, inst.Domain, inst.ScheduleKind,
		inst.RecipientType, inst.RecipientID, inst.CaseID,
		inst.CurrentEventNum, inst.ScheduleIterationNum, inst.NextEventDue, inst.Active,
		nullableDate(inst.StartDate), inst.ScheduleRevision, inst.LastResetCasePropertyValue,
		inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule instance: %w", err)
	}
	return nil
}

func (r *pgInstanceRepository) GetByID(ctx context.Context, id uuid.UUID) (*scheduling.ScheduleInstance, error) {
	row := r.pool.QueryRow(ctx, instanceSelect+` WHERE id = $1`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scheduling.ErrNotFound
	}
	return inst, err
}

// Update persists the cursor and releases any sweep claim on the instance.
func (r *pgInstanceRepository) Update(ctx context.Context, inst *scheduling.ScheduleInstance) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedule_instances
		SET current_event_num = $1, schedule_iteration_num = $2, next_event_due = $3,
		    active = $4, start_date = $5, schedule_revision = $6,
		    last_reset_case_property_value = $7,
		    processing_started_at = NULL, updated_at = NOW()
		WHERE id = $8`,
		inst.CurrentEventNum, inst.ScheduleIterationNum, inst.NextEventDue,
		inst.Active, nullableDate(inst.StartDate), inst.ScheduleRevision,
		inst.LastResetCasePropertyValue, inst.ID,
	)
	if err != nil {
		return fmt.Errorf("update schedule instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrNotFound
	}
	return nil
}

func (r *pgInstanceRepository) ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*scheduling.ScheduleInstance, error) {
	rows, err := r.pool.Query(ctx,
		instanceSelect+` WHERE schedule_id = $1 ORDER BY created_at ASC`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("list schedule instances: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

func (r *pgInstanceRepository) ListByCase(ctx context.Context, caseID string) ([]*scheduling.ScheduleInstance, error) {
	rows, err := r.pool.Query(ctx,
		instanceSelect+` WHERE case_id = $1 ORDER BY created_at ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list instances by case: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

func (r *pgInstanceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM schedule_instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule instance: %w", err)
	}
	return nil
}

func (r *pgInstanceRepository) DeleteBySchedule(ctx context.Context, scheduleID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM schedule_instances WHERE schedule_id = $1`, scheduleID)
	if err != nil {
		return 0, fmt.Errorf("delete instances by schedule: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClaimDue atomically claims a batch of due, active instances. SKIP LOCKED
// keeps concurrent sweepers from blocking on each other's candidate rows,
// and processing_started_at keeps a claimed instance out of later sweeps
// until the claim goes stale.
func (r *pgInstanceRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*scheduling.ScheduleInstance, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE schedule_instances
		SET processing_started_at = NOW()
		WHERE id IN (
			SELECT id FROM schedule_instances
			WHERE active = TRUE
			  AND next_event_due <= $1
			  AND (processing_started_at IS NULL OR processing_started_at < $2)
			ORDER BY next_event_due ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, schedule_id, domain, schedule_kind, recipient_type, recipient_id, case_id,
		          current_event_num, schedule_iteration_num, next_event_due, active,
		          start_date, schedule_revision, last_reset_case_property_value,
		          created_at, updated_at`,
		now, now.Add(-staleClaimAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due instances: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// ---- helpers ----

const instanceSelect = `
	SELECT id, schedule_id, domain, schedule_kind, recipient_type, recipient_id, case_id,
	       current_event_num, schedule_iteration_num, next_event_due, active,
	       start_date, schedule_revision, last_reset_case_property_value,
	       created_at, updated_at
	FROM schedule_instances`

func scanInstance(row pgx.Row) (*scheduling.ScheduleInstance, error) {
	var (
		inst      scheduling.ScheduleInstance
		startDate *time.Time
	)
	err := row.Scan(
		&inst.ID, &inst.ScheduleID, &inst.Domain, &inst.ScheduleKind,
		&inst.RecipientType, &inst.RecipientID, &inst.CaseID,
		&inst.CurrentEventNum, &inst.ScheduleIterationNum, &inst.NextEventDue, &inst.Active,
		&startDate, &inst.ScheduleRevision, &inst.LastResetCasePropertyValue,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if startDate != nil {
		inst.StartDate = startDate.UTC()
	}
	inst.NextEventDue = inst.NextEventDue.UTC()
	return &inst, nil
}

func scanInstances(rows pgx.Rows) ([]*scheduling.ScheduleInstance, error) {
	var result []*scheduling.ScheduleInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule instance: %w", err)
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

// nullableDate maps the zero time to NULL; alert instances carry no start date.
func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
