package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"arbiter/internal/decision/models"
	txcontext "arbiter/pkg/platform/tx"
)

// PostgresStore implements Store on PostgreSQL. Requests, steps, and action
// logs live in three tables; every mutating method writes them inside one
// transaction so a request is never observable half-updated.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed decision store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// withTx runs fn inside the ambient transaction when one is present,
// otherwise inside a transaction of its own.
func (s *PostgresStore) withTx(ctx context.Context, fn func(q querier) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateDecision(ctx context.Context, tenantID uuid.UUID, req *models.Request, logs []models.ActionLog) error {
	return s.withTx(ctx, func(q querier) error {
		if err := insertRequest(ctx, q, tenantID, req); err != nil {
			return err
		}
		for _, step := range req.Steps {
			if err := upsertStep(ctx, q, step); err != nil {
				return err
			}
		}
		return insertLogs(ctx, q, logs)
	})
}

func (s *PostgresStore) GetDecision(ctx context.Context, tenantID, id uuid.UUID) (*models.Request, error) {
	q := s.querier(ctx)
	req, err := scanOneRequest(ctx, q, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, q, tenantID, []*models.Request{req}); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *PostgresStore) SaveDecision(ctx context.Context, tenantID uuid.UUID, req *models.Request, newLogs []models.ActionLog) error {
	return s.withTx(ctx, func(q querier) error {
		if err := updateRequest(ctx, q, tenantID, req); err != nil {
			return err
		}
		for _, step := range req.Steps {
			if err := upsertStep(ctx, q, step); err != nil {
				return err
			}
		}
		return insertLogs(ctx, q, newLogs)
	})
}

func (s *PostgresStore) ListDecisions(ctx context.Context, tenantID uuid.UUID) ([]*models.Request, error) {
	q := s.querier(ctx)
	query := requestColumns + `
		FROM decision_requests
		WHERE tenant_id = $1 AND is_deleted = FALSE
		ORDER BY requested_on_utc DESC
	`
	rows, err := q.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	requests, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, q, tenantID, requests); err != nil {
		return nil, err
	}
	return requests, nil
}

func (s *PostgresStore) ListOverdue(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]*models.Request, error) {
	q := s.querier(ctx)
	query := requestColumns + `
		FROM decision_requests
		WHERE tenant_id = $1
		  AND is_deleted = FALSE
		  AND due_at_utc IS NOT NULL
		  AND due_at_utc < $2
		  AND status NOT IN ('Approved', 'Rejected', 'Cancelled', 'Expired')
		ORDER BY due_at_utc ASC
	`
	rows, err := q.QueryContext(ctx, query, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("query overdue decisions: %w", err)
	}
	defer rows.Close()

	requests, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, q, tenantID, requests); err != nil {
		return nil, err
	}
	return requests, nil
}

func (s *PostgresStore) EscalatedIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	out := make(map[uuid.UUID]struct{})
	if len(ids) == 0 {
		return out, nil
	}
	query := `
		SELECT DISTINCT l.request_id
		FROM decision_action_logs l
		JOIN decision_requests r ON r.id = l.request_id
		WHERE r.tenant_id = $1
		  AND l.request_id = ANY($2)
		  AND LOWER(l.action) = LOWER($3)
		  AND l.is_deleted = FALSE
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, tenantID, pq.Array(ids), string(models.ActionSlaEscalated))
	if err != nil {
		return nil, fmt.Errorf("query escalated ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan escalated id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalated ids: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CommitEscalations(ctx context.Context, tenantID uuid.UUID, requests []*models.Request, logs []models.ActionLog) error {
	return s.withTx(ctx, func(q querier) error {
		for _, req := range requests {
			if err := updateRequest(ctx, q, tenantID, req); err != nil {
				return err
			}
		}
		return insertLogs(ctx, q, logs)
	})
}

func (s *PostgresStore) History(ctx context.Context, tenantID uuid.UUID, filter HistoryFilter) ([]models.HistoryRow, error) {
	query := `
		SELECT l.id, l.request_id, l.action, l.action_at_utc, l.actor_name, l.actor_user_id, l.notes,
		       r.type, r.entity_type, r.entity_id, r.status, r.priority, r.risk_level,
		       r.policy_reason, r.legacy_approval_id
		FROM decision_action_logs l
		JOIN decision_requests r ON r.id = l.request_id
		WHERE r.tenant_id = $1 AND r.is_deleted = FALSE AND l.is_deleted = FALSE
	`
	args := []any{tenantID}

	appendCond := func(cond string, arg any) {
		args = append(args, arg)
		query += fmt.Sprintf(" AND %s", strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}
	if filter.Action != "" {
		appendCond("LOWER(l.action) = LOWER(?)", strings.TrimSpace(filter.Action))
	}
	if filter.Status != "" {
		appendCond("LOWER(r.status) = LOWER(?)", strings.TrimSpace(filter.Status))
	}
	if filter.DecisionType != "" {
		appendCond("r.type ILIKE ?", "%"+strings.TrimSpace(filter.DecisionType)+"%")
	}
	if filter.Search != "" {
		term := "%" + strings.TrimSpace(filter.Search) + "%"
		args = append(args, term)
		p := fmt.Sprintf("$%d", len(args))
		query += fmt.Sprintf(` AND (r.type ILIKE %[1]s OR r.entity_type ILIKE %[1]s OR r.policy_reason ILIKE %[1]s OR l.actor_name ILIKE %[1]s OR l.notes ILIKE %[1]s)`, p)
	}

	query += " ORDER BY l.action_at_utc DESC"
	if filter.Take > 0 {
		args = append(args, filter.Take)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decision history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryRow
	for rows.Next() {
		var (
			row          models.HistoryRow
			action       string
			status       string
			priority     string
			notes        sql.NullString
			actorName    sql.NullString
			riskLevel    sql.NullString
			policyReason sql.NullString
			legacyID     *uuid.UUID
		)
		err := rows.Scan(
			&row.LogID, &row.RequestID, &action, &row.ActionAtUTC, &actorName, &row.ActorUserID, &notes,
			&row.DecisionType, &row.EntityType, &row.EntityID, &status, &priority, &riskLevel,
			&policyReason, &legacyID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		row.Action = action
		row.ActorName = actorName.String
		row.Notes = notes.String
		row.Status = status
		row.Priority = priority
		row.RiskLevel = riskLevel.String
		row.PolicyReason = policyReason.String
		row.WorkflowType = models.WorkflowGeneric
		if legacyID != nil && *legacyID != uuid.Nil {
			row.WorkflowType = models.WorkflowLegacy
		}
		row.EntityLabel = row.EntityType + " " + row.EntityID.String()
		row.IsEscalationEvent = models.Action(action).Is(models.ActionSlaEscalated)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}

const requestColumns = `
	SELECT id, tenant_id, type, entity_type, entity_id, status, priority, risk_level,
	       requested_by_user_id, requested_on_utc, due_at_utc, policy_reason,
	       payload_json, policy_snapshot_json, legacy_approval_id, completed_at_utc
`

func scanOneRequest(ctx context.Context, q querier, tenantID, id uuid.UUID) (*models.Request, error) {
	query := requestColumns + `
		FROM decision_requests
		WHERE tenant_id = $1 AND id = $2 AND is_deleted = FALSE
	`
	row := q.QueryRowContext(ctx, query, tenantID, id)
	req, err := scanRequest(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query decision: %w", err)
	}
	return req, nil
}

func scanRequests(rows *sql.Rows) ([]*models.Request, error) {
	var out []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}

func scanRequest(scan func(dest ...any) error) (*models.Request, error) {
	var (
		req          models.Request
		status       string
		priority     string
		riskLevel    sql.NullString
		policyReason sql.NullString
		payload      sql.NullString
		snapshot     sql.NullString
	)
	err := scan(
		&req.ID, &req.TenantID, &req.Type, &req.EntityType, &req.EntityID, &status, &priority, &riskLevel,
		&req.RequestedByUserID, &req.RequestedOnUTC, &req.DueAtUTC, &policyReason,
		&payload, &snapshot, &req.LegacyApprovalID, &req.CompletedAtUTC,
	)
	if err != nil {
		return nil, err
	}
	req.Status = models.Status(status)
	req.Priority = models.Priority(priority)
	req.RiskLevel = riskLevel.String
	req.PolicyReason = policyReason.String
	req.PayloadJSON = payload.String
	req.PolicySnapshotJSON = snapshot.String
	return &req, nil
}

// loadChildren attaches steps and action logs to the given requests with one
// query per table.
func loadChildren(ctx context.Context, q querier, tenantID uuid.UUID, requests []*models.Request) error {
	if len(requests) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Request, len(requests))
	ids := make([]uuid.UUID, 0, len(requests))
	for _, r := range requests {
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	stepQuery := `
		SELECT s.id, s.request_id, s.step_order, s.step_type, s.status, s.approver_role,
		       s.assignee_user_id, s.assignee_name, s.due_at_utc, s.completed_at_utc, s.notes
		FROM decision_steps s
		JOIN decision_requests r ON r.id = s.request_id
		WHERE r.tenant_id = $1 AND s.request_id = ANY($2) AND s.is_deleted = FALSE
		ORDER BY s.step_order ASC
	`
	stepRows, err := q.QueryContext(ctx, stepQuery, tenantID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query decision steps: %w", err)
	}
	defer stepRows.Close()
	for stepRows.Next() {
		var (
			step         models.Step
			status       string
			stepType     sql.NullString
			approverRole sql.NullString
			assigneeName sql.NullString
			notes        sql.NullString
		)
		err := stepRows.Scan(
			&step.ID, &step.RequestID, &step.StepOrder, &stepType, &status, &approverRole,
			&step.AssigneeUserID, &assigneeName, &step.DueAtUTC, &step.CompletedAtUTC, &notes,
		)
		if err != nil {
			return fmt.Errorf("scan decision step: %w", err)
		}
		step.Status = models.StepStatus(status)
		step.StepType = stepType.String
		step.ApproverRole = approverRole.String
		step.AssigneeName = assigneeName.String
		step.Notes = notes.String
		if r, ok := byID[step.RequestID]; ok {
			r.Steps = append(r.Steps, &step)
		}
	}
	if err := stepRows.Err(); err != nil {
		return fmt.Errorf("iterate decision steps: %w", err)
	}

	logQuery := `
		SELECT l.id, l.request_id, l.action, l.actor_user_id, l.actor_name, l.notes,
		       l.field, l.old_value, l.new_value, l.action_at_utc
		FROM decision_action_logs l
		JOIN decision_requests r ON r.id = l.request_id
		WHERE r.tenant_id = $1 AND l.request_id = ANY($2) AND l.is_deleted = FALSE
		ORDER BY l.action_at_utc ASC
	`
	logRows, err := q.QueryContext(ctx, logQuery, tenantID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query decision logs: %w", err)
	}
	defer logRows.Close()
	for logRows.Next() {
		var (
			log       models.ActionLog
			action    string
			actorName sql.NullString
			notes     sql.NullString
			field     sql.NullString
			oldValue  sql.NullString
			newValue  sql.NullString
		)
		err := logRows.Scan(
			&log.ID, &log.RequestID, &action, &log.ActorUserID, &actorName, &notes,
			&field, &oldValue, &newValue, &log.ActionAtUTC,
		)
		if err != nil {
			return fmt.Errorf("scan decision log: %w", err)
		}
		log.Action = models.Action(action)
		log.ActorName = actorName.String
		log.Notes = notes.String
		log.Field = field.String
		log.OldValue = oldValue.String
		log.NewValue = newValue.String
		if r, ok := byID[log.RequestID]; ok {
			r.Logs = append(r.Logs, log)
		}
	}
	if err := logRows.Err(); err != nil {
		return fmt.Errorf("iterate decision logs: %w", err)
	}
	return nil
}

func insertRequest(ctx context.Context, q querier, tenantID uuid.UUID, req *models.Request) error {
	query := `
		INSERT INTO decision_requests (
			id, tenant_id, type, entity_type, entity_id, status, priority, risk_level,
			requested_by_user_id, requested_on_utc, due_at_utc, policy_reason,
			payload_json, policy_snapshot_json, legacy_approval_id, completed_at_utc, is_deleted
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, FALSE)
	`
	_, err := q.ExecContext(ctx, query,
		req.ID, tenantID, req.Type, req.EntityType, req.EntityID,
		string(req.Status), string(req.Priority), req.RiskLevel,
		req.RequestedByUserID, req.RequestedOnUTC, req.DueAtUTC, req.PolicyReason,
		req.PayloadJSON, req.PolicySnapshotJSON, req.LegacyApprovalID, req.CompletedAtUTC,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func updateRequest(ctx context.Context, q querier, tenantID uuid.UUID, req *models.Request) error {
	query := `
		UPDATE decision_requests
		SET status = $3, priority = $4, completed_at_utc = $5
		WHERE tenant_id = $1 AND id = $2 AND is_deleted = FALSE
	`
	res, err := q.ExecContext(ctx, query, tenantID, req.ID, string(req.Status), string(req.Priority), req.CompletedAtUTC)
	if err != nil {
		return fmt.Errorf("update decision: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func upsertStep(ctx context.Context, q querier, step *models.Step) error {
	query := `
		INSERT INTO decision_steps (
			id, request_id, step_order, step_type, status, approver_role,
			assignee_user_id, assignee_name, due_at_utc, completed_at_utc, notes, is_deleted
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    assignee_user_id = EXCLUDED.assignee_user_id,
		    assignee_name = EXCLUDED.assignee_name,
		    completed_at_utc = EXCLUDED.completed_at_utc,
		    notes = EXCLUDED.notes
	`
	_, err := q.ExecContext(ctx, query,
		step.ID, step.RequestID, step.StepOrder, step.StepType, string(step.Status), step.ApproverRole,
		step.AssigneeUserID, step.AssigneeName, step.DueAtUTC, step.CompletedAtUTC, step.Notes,
	)
	if err != nil {
		return fmt.Errorf("upsert decision step: %w", err)
	}
	return nil
}

func insertLogs(ctx context.Context, q querier, logs []models.ActionLog) error {
	query := `
		INSERT INTO decision_action_logs (
			id, request_id, action, actor_user_id, actor_name, notes,
			field, old_value, new_value, action_at_utc, is_deleted
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE)
	`
	for _, log := range logs {
		id := log.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := q.ExecContext(ctx, query,
			id, log.RequestID, string(log.Action), log.ActorUserID, log.ActorName, log.Notes,
			log.Field, log.OldValue, log.NewValue, log.ActionAtUTC,
		)
		if err != nil {
			return fmt.Errorf("insert decision log: %w", err)
		}
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
