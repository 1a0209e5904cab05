package legacy

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Postgres is the PostgreSQL legacy approval store.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed legacy store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const approvalColumns = `
	id, tenant_id, chain_id, deal_id, deal_name, step_order, total_steps,
	approver_role, status, approver_user_id, approver_name, purpose, amount,
	currency, requested_by_user_id, requested_by_name, requested_on_utc,
	decided_on_utc, notes
`

func (s *Postgres) Create(ctx context.Context, a *Approval) error {
	query := `
		INSERT INTO legacy_approvals (
			id, tenant_id, chain_id, deal_id, deal_name, step_order, total_steps,
			approver_role, status, approver_user_id, approver_name, purpose, amount,
			currency, requested_by_user_id, requested_by_name, requested_on_utc,
			decided_on_utc, notes, is_deleted
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, FALSE)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.TenantID, a.ChainID, a.DealID, a.DealName, a.StepOrder, a.TotalSteps,
		a.ApproverRole, a.Status, a.ApproverUserID, a.ApproverName, a.Purpose, a.Amount,
		a.Currency, a.RequestedByUserID, a.RequestedByName, a.RequestedOnUTC,
		a.DecidedOnUTC, a.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert legacy approval: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, tenantID, id uuid.UUID) (*Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM legacy_approvals WHERE tenant_id = $1 AND id = $2 AND is_deleted = FALSE`
	row := s.db.QueryRowContext(ctx, query, tenantID, id)
	a, err := scanApproval(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query legacy approval: %w", err)
	}
	return a, nil
}

func (s *Postgres) ListChain(ctx context.Context, tenantID, chainID uuid.UUID) ([]*Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM legacy_approvals
		WHERE tenant_id = $1 AND chain_id = $2 AND is_deleted = FALSE
		ORDER BY step_order ASC
	`
	return s.queryApprovals(ctx, query, tenantID, chainID)
}

func (s *Postgres) List(ctx context.Context, tenantID uuid.UUID) ([]*Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM legacy_approvals
		WHERE tenant_id = $1 AND is_deleted = FALSE
		ORDER BY requested_on_utc DESC
	`
	return s.queryApprovals(ctx, query, tenantID)
}

func (s *Postgres) Save(ctx context.Context, tenantID uuid.UUID, rows ...*Approval) error {
	query := `
		UPDATE legacy_approvals
		SET status = $3, approver_user_id = $4, approver_name = $5, decided_on_utc = $6, notes = $7
		WHERE tenant_id = $1 AND id = $2 AND is_deleted = FALSE
	`
	for _, a := range rows {
		res, err := s.db.ExecContext(ctx, query,
			tenantID, a.ID, a.Status, a.ApproverUserID, a.ApproverName, a.DecidedOnUTC, a.Notes)
		if err != nil {
			return fmt.Errorf("update legacy approval: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (s *Postgres) queryApprovals(ctx context.Context, query string, args ...any) ([]*Approval, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query legacy approvals: %w", err)
	}
	defer rows.Close()

	var out []*Approval
	for rows.Next() {
		a, err := scanApproval(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan legacy approval: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy approvals: %w", err)
	}
	return out, nil
}

func scanApproval(scan func(dest ...any) error) (*Approval, error) {
	var (
		a            Approval
		dealName     sql.NullString
		approverRole sql.NullString
		approverName sql.NullString
		purpose      sql.NullString
		requestedBy  sql.NullString
		notes        sql.NullString
	)
	err := scan(
		&a.ID, &a.TenantID, &a.ChainID, &a.DealID, &dealName, &a.StepOrder, &a.TotalSteps,
		&approverRole, &a.Status, &a.ApproverUserID, &approverName, &purpose, &a.Amount,
		&a.Currency, &a.RequestedByUserID, &requestedBy, &a.RequestedOnUTC,
		&a.DecidedOnUTC, &notes,
	)
	if err != nil {
		return nil, err
	}
	a.DealName = dealName.String
	a.ApproverRole = approverRole.String
	a.ApproverName = approverName.String
	a.Purpose = purpose.String
	a.RequestedByName = requestedBy.String
	a.Notes = notes.String
	return &a, nil
}

var _ Store = (*Postgres)(nil)
