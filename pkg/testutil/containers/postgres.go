//go:build integration

// Package containers manages shared testcontainers instances for integration
// tests. Containers are started once per test binary and reused across
// suites; Ryuk reaps them when the run ends.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance with the
// arbiter schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// Manager hands out shared containers to test suites.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
}

var manager = &Manager{}

// GetManager returns the process-wide container manager.
func GetManager() *Manager {
	return manager
}

// GetPostgres returns the shared PostgreSQL container, starting it on first
// use.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postgres == nil {
		m.postgres = newPostgresContainer(t)
	}
	return m.postgres
}

func newPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("arbiter_test"),
		tcpostgres.WithUsername("arbiter"),
		tcpostgres.WithPassword("arbiter"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn, DB: db}
}

// TruncateTables empties the given tables. Call between tests for isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	query := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", "))
	if _, err := p.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id                     UUID PRIMARY KEY,
	key                    TEXT NOT NULL UNIQUE,
	name                   TEXT NOT NULL,
	is_active              BOOLEAN NOT NULL DEFAULT TRUE,
	escalation_policy_json TEXT NOT NULL DEFAULT '',
	created_at_utc         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS users (
	id        UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants(id),
	full_name TEXT NOT NULL,
	email     TEXT NOT NULL,
	role      TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS decision_requests (
	id                   UUID PRIMARY KEY,
	tenant_id            UUID NOT NULL REFERENCES tenants(id),
	type                 TEXT NOT NULL,
	entity_type          TEXT NOT NULL,
	entity_id            UUID NOT NULL,
	status               TEXT NOT NULL,
	priority             TEXT NOT NULL,
	risk_level           TEXT,
	requested_by_user_id UUID,
	requested_on_utc     TIMESTAMPTZ NOT NULL,
	due_at_utc           TIMESTAMPTZ,
	policy_reason        TEXT,
	payload_json         TEXT,
	policy_snapshot_json TEXT,
	legacy_approval_id   UUID,
	completed_at_utc     TIMESTAMPTZ,
	is_deleted           BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at_utc       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_decision_requests_tenant_due
	ON decision_requests (tenant_id, due_at_utc)
	WHERE is_deleted = FALSE;

CREATE TABLE IF NOT EXISTS decision_steps (
	id               UUID PRIMARY KEY,
	request_id       UUID NOT NULL REFERENCES decision_requests(id),
	step_order       INT NOT NULL,
	step_type        TEXT,
	status           TEXT NOT NULL,
	approver_role    TEXT,
	assignee_user_id UUID,
	assignee_name    TEXT,
	due_at_utc       TIMESTAMPTZ,
	completed_at_utc TIMESTAMPTZ,
	notes            TEXT,
	is_deleted       BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_decision_steps_request
	ON decision_steps (request_id, step_order);

CREATE TABLE IF NOT EXISTS decision_action_logs (
	id            UUID PRIMARY KEY,
	request_id    UUID NOT NULL REFERENCES decision_requests(id),
	action        TEXT NOT NULL,
	actor_user_id UUID,
	actor_name    TEXT,
	notes         TEXT,
	field         TEXT,
	old_value     TEXT,
	new_value     TEXT,
	action_at_utc TIMESTAMPTZ NOT NULL,
	is_deleted    BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_decision_action_logs_request
	ON decision_action_logs (request_id, action_at_utc);

CREATE TABLE IF NOT EXISTS legacy_approvals (
	id                   UUID PRIMARY KEY,
	tenant_id            UUID NOT NULL REFERENCES tenants(id),
	chain_id             UUID,
	deal_id              UUID NOT NULL,
	deal_name            TEXT NOT NULL DEFAULT '',
	step_order           INT NOT NULL DEFAULT 1,
	total_steps          INT NOT NULL DEFAULT 1,
	approver_role        TEXT,
	status               TEXT NOT NULL,
	approver_user_id     UUID,
	approver_name        TEXT,
	purpose              TEXT,
	amount               DOUBLE PRECISION NOT NULL DEFAULT 0,
	currency             TEXT NOT NULL DEFAULT 'USD',
	requested_by_user_id UUID,
	requested_by_name    TEXT,
	requested_on_utc     TIMESTAMPTZ NOT NULL,
	decided_on_utc       TIMESTAMPTZ,
	notes                TEXT,
	is_deleted           BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_legacy_approvals_chain
	ON legacy_approvals (tenant_id, chain_id, step_order);
`
