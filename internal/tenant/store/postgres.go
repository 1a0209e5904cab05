package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"arbiter/internal/tenant/models"
)

// Postgres is the PostgreSQL tenant store.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed tenant store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const tenantColumns = `id, key, name, is_active, escalation_policy_json, created_at_utc`

func (s *Postgres) Create(ctx context.Context, t *models.Tenant) error {
	query := `
		INSERT INTO tenants (id, key, name, is_active, escalation_policy_json, created_at_utc)
		VALUES ($1, LOWER($2), $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, t.ID, t.Key, t.Name, t.Active, t.EscalationPolicyJSON, t.CreatedAtUTC)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrKeyTaken
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

func (s *Postgres) FindByKey(ctx context.Context, key string) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE key = LOWER($1)`, key)
	return scanTenant(row)
}

func (s *Postgres) ListActive(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE is_active = TRUE ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var out []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return out, nil
}

func (s *Postgres) Update(ctx context.Context, t *models.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $2, is_active = $3, escalation_policy_json = $4
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, t.ID, t.Name, t.Active, t.EscalationPolicyJSON)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (*models.Tenant, error) {
	var (
		t      models.Tenant
		policy sql.NullString
	)
	err := row.Scan(&t.ID, &t.Key, &t.Name, &t.Active, &policy, &t.CreatedAtUTC)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	t.EscalationPolicyJSON = policy.String
	return &t, nil
}

var _ Store = (*Postgres)(nil)
