package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// NonceStore implements domain.NonceStore with SET NX so every server
// instance sees the same used request signatures.
type NonceStore struct {
	c *Client
}

// NewNonceStore creates a NonceStore backed by c.
func NewNonceStore(c *Client) *NonceStore {
	return &NonceStore{c: c}
}

// MarkUsed records key for ttl and reports whether it was unused.
func (s *NonceStore) MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.c.rdb.SetNX(ctx, s.c.key("nonce:"+key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: mark nonce used: %w", err)
	}
	return ok, nil
}

var _ domain.NonceStore = (*NonceStore)(nil)
