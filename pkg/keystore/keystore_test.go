package keystore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/dispatch-core/pkg/cache"
)

func setupStore(t *testing.T) *Store {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := cache.NewRedisCache(cache.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	return New(c)
}

func TestStore_GetMiss(t *testing.T) {
	s := setupStore(t)

	_, ok, err := s.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_PutThenGet(t *testing.T) {
	s := setupStore(t)
	tenantID := uuid.New()
	key := []byte("0123456789abcdef0123456789abcdef")

	require.NoError(t, s.Put(context.Background(), tenantID, key))

	got, ok, err := s.Get(context.Background(), tenantID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, key, got)
}

func TestStore_KeysAreTenantScoped(t *testing.T) {
	s := setupStore(t)
	a, b := uuid.New(), uuid.New()

	require.NoError(t, s.Put(context.Background(), a, []byte("key-a")))

	_, ok, err := s.Get(context.Background(), b)
	require.NoError(t, err)
	require.False(t, ok)
}
