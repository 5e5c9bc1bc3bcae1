// Package keystore caches per-tenant encryption keys so the Encryption
// collaborator doesn't re-run PBKDF2 on every title it needs to decrypt.
package keystore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/developer-mesh/dispatch-core/pkg/cache"
)

// defaultTTL bounds how long a derived key survives in the cache. A key
// re-derives to the same bytes on a miss, so expiry only costs a PBKDF2 run,
// never a correctness issue.
const defaultTTL = 15 * time.Minute

// Store is a Redis-backed cache of derived per-tenant encryption keys.
type Store struct {
	cache cache.Cache
	ttl   time.Duration
}

// New wraps c as a key cache using the default TTL.
func New(c cache.Cache) *Store {
	return &Store{cache: c, ttl: defaultTTL}
}

func cacheKey(tenantID uuid.UUID) string {
	return "enckey:" + tenantID.String()
}

// Get returns the cached key for tenantID. ok is false on a cache miss.
func (s *Store) Get(ctx context.Context, tenantID uuid.UUID) ([]byte, bool, error) {
	var key []byte
	err := s.cache.Get(ctx, cacheKey(tenantID), &key)
	if err != nil {
		if err == cache.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("keystore: get tenant %s: %w", tenantID, err)
	}
	return key, true, nil
}

// Put caches key for tenantID until it expires.
func (s *Store) Put(ctx context.Context, tenantID uuid.UUID, key []byte) error {
	if err := s.cache.Set(ctx, cacheKey(tenantID), key, s.ttl); err != nil {
		return fmt.Errorf("keystore: put tenant %s: %w", tenantID, err)
	}
	return nil
}
