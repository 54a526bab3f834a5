// Package revoke records blacklisted tokens in Redis for exactly their
// remaining lifetime. A token present here must be rejected even if its
// signature and expiry are otherwise valid.
package revoke

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps Redis transport failures. Callers resolve
// it through the auth failure policy table rather than propagating it.
var ErrStoreUnavailable = errors.New("revocation store unavailable")

const defaultPrefix = "revoked:"

// Store is the Redis-backed revocation list.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Store around the given client. An empty prefix selects
// the default "revoked:" namespace.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

// Blacklist records the token as revoked for ttl. Entries self-expire;
// storing a token beyond its lifetime would be wasted memory since the
// expiry check rejects it anyway.
func (s *Store) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.key(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether the token has been revoked.
func (s *Store) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Tokens are fingerprinted before use as keys: raw JWTs are long and
// would land verbatim in Redis logs and SCAN output.
func (s *Store) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + hex.EncodeToString(sum[:])
}
