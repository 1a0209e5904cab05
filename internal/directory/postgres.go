package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres is the PostgreSQL user directory.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed directory.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const userColumns = `id, tenant_id, full_name, email, role, is_active`

func (s *Postgres) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, tenant_id, full_name, email, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, u.ID, u.TenantID, u.FullName, u.Email, u.Role, u.Active)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND id = $2 AND is_active = TRUE`
	row := s.db.QueryRowContext(ctx, query, tenantID, id)
	u, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (s *Postgres) UsersByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND id = ANY($2) AND is_active = TRUE`
	rows, err := s.db.QueryContext(ctx, query, tenantID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query users by ids: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *Postgres) UsersByRole(ctx context.Context, tenantID uuid.UUID, role string) ([]*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE tenant_id = $1 AND LOWER(role) = LOWER($2) AND is_active = TRUE
		ORDER BY full_name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID, role)
	if err != nil {
		return nil, fmt.Errorf("query users by role: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]*User, error) {
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

func scanUser(scan func(dest ...any) error) (*User, error) {
	var (
		u     User
		email sql.NullString
		role  sql.NullString
	)
	if err := scan(&u.ID, &u.TenantID, &u.FullName, &email, &role, &u.Active); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Role = role.String
	return &u, nil
}

var _ Store = (*Postgres)(nil)
