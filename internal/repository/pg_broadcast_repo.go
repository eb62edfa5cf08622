package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

type pgBroadcastRepository struct {
	pool *pgxpool.Pool
}

// NewPgBroadcastRepository returns a BroadcastRepository backed by PostgreSQL.
func NewPgBroadcastRepository(pool *pgxpool.Pool) BroadcastRepository {
	return &pgBroadcastRepository{pool: pool}
}

func (r *pgBroadcastRepository) Create(ctx context.Context, b *scheduling.Broadcast) error {
	recipientsJSON, err := json.Marshal(b.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO broadcasts
			(id, domain, name, kind, schedule_id, recipients, start_date,
			 last_sent_timestamp, deleted, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.ID, b.Domain, b.Name, b.Kind, b.ScheduleID, recipientsJSON,
		nullableDate(b.StartDate), nullableDate(b.LastSentTimestamp), b.Deleted, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert broadcast: %w", err)
	}
	return nil
}

func (r *pgBroadcastRepository) GetByID(ctx context.Context, id uuid.UUID) (*scheduling.Broadcast, error) {
	row := r.pool.QueryRow(ctx, broadcastSelect+` WHERE id = $1 AND deleted = FALSE`, id)
	b, err := scanBroadcast(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scheduling.ErrNotFound
	}
	return b, err
}

func (r *pgBroadcastRepository) GetByScheduleID(ctx context.Context, scheduleID uuid.UUID) (*scheduling.Broadcast, error) {
	row := r.pool.QueryRow(ctx, broadcastSelect+` WHERE schedule_id = $1 AND deleted = FALSE`, scheduleID)
	b, err := scanBroadcast(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scheduling.ErrNotFound
	}
	return b, err
}

func (r *pgBroadcastRepository) List(ctx context.Context, domain string, page, limit int) ([]*scheduling.Broadcast, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM broadcasts WHERE domain = $1 AND deleted = FALSE`,
		domain).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count broadcasts: %w", err)
	}

	offset := (page - 1) * limit
	rows, err := r.pool.Query(ctx, broadcastSelect+`
		WHERE domain = $1 AND deleted = FALSE
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, domain, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list broadcasts: %w", err)
	}
	defer rows.Close()

	broadcasts, err := scanBroadcasts(rows)
	return broadcasts, total, err
}

func (r *pgBroadcastRepository) Update(ctx context.Context, b *scheduling.Broadcast) error {
	recipientsJSON, err := json.Marshal(b.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE broadcasts
		SET name = $1, recipients = $2, start_date = $3
		WHERE id = $4 AND deleted = FALSE`,
		b.Name, recipientsJSON, nullableDate(b.StartDate), b.ID,
	)
	if err != nil {
		return fmt.Errorf("update broadcast: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrNotFound
	}
	return nil
}

func (r *pgBroadcastRepository) SetLastSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE broadcasts SET last_sent_timestamp = $1 WHERE id = $2`, sentAt, id)
	if err != nil {
		return fmt.Errorf("set broadcast last sent: %w", err)
	}
	return nil
}

func (r *pgBroadcastRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE broadcasts SET deleted = TRUE WHERE id = $1 AND deleted = FALSE`, id)
	if err != nil {
		return fmt.Errorf("soft delete broadcast: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrNotFound
	}
	return nil
}

// FindDeleted lists soft-deleted broadcasts awaiting purge.
func (r *pgBroadcastRepository) FindDeleted(ctx context.Context, limit int) ([]*scheduling.Broadcast, error) {
	rows, err := r.pool.Query(ctx, broadcastSelect+`
		WHERE deleted = TRUE
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("find deleted broadcasts: %w", err)
	}
	defer rows.Close()
	return scanBroadcasts(rows)
}

func (r *pgBroadcastRepository) HardDelete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM broadcasts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("hard delete broadcast: %w", err)
	}
	return nil
}

// ---- helpers ----

const broadcastSelect = `
	SELECT id, domain, name, kind, schedule_id, recipients, start_date,
	       last_sent_timestamp, deleted, created_at
	FROM broadcasts`

func scanBroadcast(row pgx.Row) (*scheduling.Broadcast, error) {
	var (
		b              scheduling.Broadcast
		recipientsJSON []byte
		startDate      *time.Time
		lastSent       *time.Time
	)
	err := row.Scan(&b.ID, &b.Domain, &b.Name, &b.Kind, &b.ScheduleID,
		&recipientsJSON, &startDate, &lastSent, &b.Deleted, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(recipientsJSON) > 0 {
		if err := json.Unmarshal(recipientsJSON, &b.Recipients); err != nil {
			return nil, fmt.Errorf("unmarshal recipients: %w", err)
		}
	}
	if startDate != nil {
		b.StartDate = startDate.UTC()
	}
	if lastSent != nil {
		b.LastSentTimestamp = lastSent.UTC()
	}
	return &b, nil
}

func scanBroadcasts(rows pgx.Rows) ([]*scheduling.Broadcast, error) {
	var result []*scheduling.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan broadcast: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}
