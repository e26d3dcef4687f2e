package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketFilter narrows ListMarkets. Status is one of "", "open", "resolved",
// "cancelled" or "terminal".
type MarketFilter struct {
	Authority string
	Status    string
	ListOpts
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// LedgerReader serves read-only lookups outside of a transaction.
type LedgerReader interface {
	GetMarket(ctx context.Context, id string) (Market, error)
	ListMarkets(ctx context.Context, f MarketFilter) ([]Market, error)
	GetPosition(ctx context.Context, marketID, user string) (Position, error)
	ListPositions(ctx context.Context, user string, opts ListOpts) ([]Position, error)
	ListMarketPositions(ctx context.Context, marketID string) ([]Position, error)
	GetCounter(ctx context.Context, authority string) (Counter, error)
	GetBalance(ctx context.Context, account string) (uint64, error)
	ListAudit(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// LedgerTx is the unit of work every ledger request runs in. Lock* methods
// take the store's per-record write lock and return ErrNotFound for absent
// records. Nothing written through a LedgerTx is visible until InTx commits.
type LedgerTx interface {
	LockMarket(ctx context.Context, id string) (Market, error)
	InsertMarket(ctx context.Context, m Market) error
	UpdateMarket(ctx context.Context, m Market) error

	LockPosition(ctx context.Context, marketID, user string) (Position, error)
	SavePosition(ctx context.Context, p Position) error

	// Save methods insert when created is true and fail with ErrAlreadyExists
	// if a concurrent request inserted the same key first.
	LockCounter(ctx context.Context, authority string) (Counter, error)
	SaveCounter(ctx context.Context, c Counter, created bool) error

	LockClaimState(ctx context.Context, user string) (ClaimState, error)
	SaveClaimState(ctx context.Context, c ClaimState, created bool) error

	// Custodian moves tokens inside the same transaction.
	Custodian() Custodian

	Audit(ctx context.Context, event string, detail map[string]any) error
}

// LedgerStore persists markets, positions, counters, claim states, balances
// and the audit log. InTx commits when fn returns nil and rolls back
// otherwise, returning fn's error unchanged.
type LedgerStore interface {
	LedgerReader
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
	Close()
}
