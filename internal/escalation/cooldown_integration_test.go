//go:build integration

package escalation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/escalation"
	platformredis "arbiter/internal/platform/redis"
	"arbiter/pkg/testutil/containers"
)

func TestRedisCooldownRoundTrip(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	cs := escalation.NewRedisCooldown(&platformredis.Client{Client: rc.Client})
	tenantID, requestID := uuid.New(), uuid.New()

	last, err := cs.LastEscalated(ctx, tenantID, requestID)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, cs.MarkEscalated(ctx, tenantID, requestID, at, time.Hour))

	got, err := cs.LastEscalated(ctx, tenantID, requestID)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	// Other requests are unaffected.
	other, err := cs.LastEscalated(ctx, tenantID, uuid.New())
	require.NoError(t, err)
	assert.True(t, other.IsZero())
}

func TestRedisCooldownMarkerExpires(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	cs := escalation.NewRedisCooldown(&platformredis.Client{Client: rc.Client})
	tenantID, requestID := uuid.New(), uuid.New()

	require.NoError(t, cs.MarkEscalated(ctx, tenantID, requestID, time.Now().UTC(), 100*time.Millisecond))
	time.Sleep(300 * time.Millisecond)

	got, err := cs.LastEscalated(ctx, tenantID, requestID)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
