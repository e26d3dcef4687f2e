package auth

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// MemoryNonceStore is a process-local domain.NonceStore. It is the verifier's
// default when no shared store is configured.
type MemoryNonceStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryNonceStore creates an empty MemoryNonceStore.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{seen: make(map[string]time.Time), now: time.Now}
}

// MarkUsed records key until ttl elapses. It returns false when key is
// already recorded and not yet expired.
func (m *MemoryNonceStore) MarkUsed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= ttl {
		for k, exp := range m.seen {
			if !now.Before(exp) {
				delete(m.seen, k)
			}
		}
		m.lastSweep = now
	}

	if exp, ok := m.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.seen[key] = now.Add(ttl)
	return true, nil
}

var _ domain.NonceStore = (*MemoryNonceStore)(nil)
