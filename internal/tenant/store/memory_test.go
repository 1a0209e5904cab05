package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/tenant/models"
	"arbiter/internal/tenant/store"
)

func newTenant(t *testing.T, key string) *models.Tenant {
	t.Helper()
	tenant, err := models.NewTenant(key, "Tenant "+key, time.Now().UTC())
	require.NoError(t, err)
	return tenant
}

func TestCreateRejectsDuplicateKeyCaseInsensitively(t *testing.T) {
	s := store.NewInMemory()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTenant(t, "acme")))
	err := s.Create(ctx, newTenant(t, "ACME"))
	assert.ErrorIs(t, err, store.ErrKeyTaken)
}

func TestFindByKeyIsCaseInsensitive(t *testing.T) {
	s := store.NewInMemory()
	ctx := context.Background()
	tenant := newTenant(t, "acme")
	require.NoError(t, s.Create(ctx, tenant))

	got, err := s.FindByKey(ctx, "AcMe")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)

	_, err = s.FindByKey(ctx, "globex")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListActiveExcludesInactiveAndSortsByKey(t *testing.T) {
	s := store.NewInMemory()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTenant(t, "globex")))
	require.NoError(t, s.Create(ctx, newTenant(t, "acme")))
	inactive := newTenant(t, "initech")
	inactive.Active = false
	require.NoError(t, s.Create(ctx, inactive))

	got, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "acme", got[0].Key)
	assert.Equal(t, "globex", got[1].Key)
}

func TestUpdatePersistsPolicyChanges(t *testing.T) {
	s := store.NewInMemory()
	ctx := context.Background()
	tenant := newTenant(t, "acme")
	require.NoError(t, s.Create(ctx, tenant))

	tenant.EscalationPolicyJSON = `{"enabled":false}`
	require.NoError(t, s.Update(ctx, tenant))

	got, err := s.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"enabled":false}`, got.EscalationPolicyJSON)

	missing := newTenant(t, "ghost")
	assert.ErrorIs(t, s.Update(ctx, missing), store.ErrNotFound)
}

func TestNewTenantValidation(t *testing.T) {
	_, err := models.NewTenant("", "Acme", time.Now().UTC())
	assert.Error(t, err)

	_, err = models.NewTenant("acme", "", time.Now().UTC())
	assert.Error(t, err)

	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	_, err = models.NewTenant("acme", string(long), time.Now().UTC())
	assert.Error(t, err)
}
