package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"arbiter/internal/platform/redis"
)

// CooldownStore tracks when a request was last escalated, so the cooldown
// de-dup strategy can suppress repeat notifications inside the window.
type CooldownStore interface {
	// LastEscalated returns the last escalation time for the request, or a
	// zero time when none is recorded.
	LastEscalated(ctx context.Context, tenantID, requestID uuid.UUID) (time.Time, error)

	// MarkEscalated records an escalation at the given time. The record may
	// expire once window has elapsed.
	MarkEscalated(ctx context.Context, tenantID, requestID uuid.UUID, at time.Time, window time.Duration) error
}

// MemoryCooldown is the in-process cooldown store used in tests and in
// deployments without Redis.
type MemoryCooldown struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryCooldown creates an empty in-memory cooldown store.
func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{entries: make(map[string]time.Time)}
}

func (m *MemoryCooldown) LastEscalated(_ context.Context, tenantID, requestID uuid.UUID) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[cooldownKey(tenantID, requestID)], nil
}

func (m *MemoryCooldown) MarkEscalated(_ context.Context, tenantID, requestID uuid.UUID, at time.Time, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cooldownKey(tenantID, requestID)] = at
	return nil
}

// RedisCooldown stores escalation timestamps in Redis with the cooldown
// window as TTL, so state is shared across worker replicas.
type RedisCooldown struct {
	client *redis.Client
}

// NewRedisCooldown creates a cooldown store backed by the given client.
func NewRedisCooldown(client *redis.Client) *RedisCooldown {
	return &RedisCooldown{client: client}
}

func (r *RedisCooldown) LastEscalated(ctx context.Context, tenantID, requestID uuid.UUID) (time.Time, error) {
	val, err := r.client.Get(ctx, cooldownKey(tenantID, requestID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("get escalation marker: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse escalation marker: %w", err)
	}
	return at, nil
}

func (r *RedisCooldown) MarkEscalated(ctx context.Context, tenantID, requestID uuid.UUID, at time.Time, window time.Duration) error {
	key := cooldownKey(tenantID, requestID)
	if err := r.client.Set(ctx, key, at.UTC().Format(time.RFC3339Nano), window).Err(); err != nil {
		return fmt.Errorf("set escalation marker: %w", err)
	}
	return nil
}

func cooldownKey(tenantID, requestID uuid.UUID) string {
	return fmt.Sprintf("arbiter:escalation:%s:%s", tenantID, requestID)
}

var (
	_ CooldownStore = (*MemoryCooldown)(nil)
	_ CooldownStore = (*RedisCooldown)(nil)
)
