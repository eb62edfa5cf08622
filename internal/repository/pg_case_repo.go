package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// caseRecord is a mirrored platform case: an id plus a flat bag of dynamic
// properties. It satisfies scheduling.Case.
type caseRecord struct {
	id         string
	properties map[string]string
}

func (c *caseRecord) CaseID() string                       { return c.id }
func (c *caseRecord) DynamicProperties() map[string]string { return c.properties }

var _ scheduling.Case = (*caseRecord)(nil)

type pgCaseRepository struct {
	pool *pgxpool.Pool
}

// NewPgCaseRepository returns a CaseRepository backed by PostgreSQL.
func NewPgCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &pgCaseRepository{pool: pool}
}

func (r *pgCaseRepository) GetByID(ctx context.Context, caseID string) (scheduling.Case, error) {
	var propertiesJSON []byte
	err := r.pool.QueryRow(ctx,
		`SELECT properties FROM cases WHERE case_id = $1`, caseID).Scan(&propertiesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scheduling.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}

	properties := make(map[string]string)
	if len(propertiesJSON) > 0 {
		if err := json.Unmarshal(propertiesJSON, &properties); err != nil {
			return nil, fmt.Errorf("unmarshal case properties: %w", err)
		}
	}
	return &caseRecord{id: caseID, properties: properties}, nil
}

func (r *pgCaseRepository) Upsert(ctx context.Context, domain, caseID string, properties map[string]string) error {
	propertiesJSON, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("marshal case properties: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO cases (case_id, domain, properties, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (case_id)
		DO UPDATE SET properties = EXCLUDED.properties, updated_at = NOW()`,
		caseID, domain, propertiesJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert case: %w", err)
	}
	return nil
}
