package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/marketledger/internal/custody"
	"github.com/alanyoungcy/marketledger/internal/domain"
)

// LedgerStore implements domain.LedgerStore. Each InTx call is one
// PostgreSQL transaction; Lock* methods use SELECT ... FOR UPDATE.
type LedgerStore struct {
	client  *Client
	custody custody.Config
}

// NewLedgerStore creates a LedgerStore on client.
func NewLedgerStore(client *Client, cfg custody.Config) *LedgerStore {
	return &LedgerStore{client: client, custody: cfg}
}

// InTx runs fn in a transaction, committing only when fn returns nil.
func (s *LedgerStore) InTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	return pgx.BeginFunc(ctx, s.client.pool, func(tx pgx.Tx) error {
		return fn(&ledgerTx{q: tx, custodian: custody.New(accounts{q: tx}, s.custody)})
	})
}

func (s *LedgerStore) Close() { s.client.Close() }

func (s *LedgerStore) Ping(ctx context.Context) error { return s.client.Ping(ctx) }

func (s *LedgerStore) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	return getMarket(ctx, s.client.pool, id, false)
}

func (s *LedgerStore) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	return listMarkets(ctx, s.client.pool, f)
}

func (s *LedgerStore) GetPosition(ctx context.Context, marketID, user string) (domain.Position, error) {
	return getPosition(ctx, s.client.pool, marketID, user, false)
}

func (s *LedgerStore) ListPositions(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Position, error) {
	return listPositionsByUser(ctx, s.client.pool, user, opts)
}

func (s *LedgerStore) ListMarketPositions(ctx context.Context, marketID string) ([]domain.Position, error) {
	return listPositionsByMarket(ctx, s.client.pool, marketID)
}

func (s *LedgerStore) GetCounter(ctx context.Context, authority string) (domain.Counter, error) {
	return getCounter(ctx, s.client.pool, authority, false)
}

func (s *LedgerStore) GetBalance(ctx context.Context, account string) (uint64, error) {
	return getBalance(ctx, s.client.pool, account)
}

func (s *LedgerStore) ListAudit(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return listAudit(ctx, s.client.pool, opts)
}

type ledgerTx struct {
	q         pgx.Tx
	custodian *custody.Ledger
}

func (t *ledgerTx) LockMarket(ctx context.Context, id string) (domain.Market, error) {
	return getMarket(ctx, t.q, id, true)
}

func (t *ledgerTx) InsertMarket(ctx context.Context, m domain.Market) error {
	return insertMarket(ctx, t.q, m)
}

func (t *ledgerTx) UpdateMarket(ctx context.Context, m domain.Market) error {
	return updateMarket(ctx, t.q, m)
}

func (t *ledgerTx) LockPosition(ctx context.Context, marketID, user string) (domain.Position, error) {
	return getPosition(ctx, t.q, marketID, user, true)
}

func (t *ledgerTx) SavePosition(ctx context.Context, p domain.Position) error {
	return savePosition(ctx, t.q, p)
}

func (t *ledgerTx) LockCounter(ctx context.Context, authority string) (domain.Counter, error) {
	return getCounter(ctx, t.q, authority, true)
}

func (t *ledgerTx) SaveCounter(ctx context.Context, c domain.Counter, created bool) error {
	return saveCounter(ctx, t.q, c, created)
}

func (t *ledgerTx) LockClaimState(ctx context.Context, user string) (domain.ClaimState, error) {
	return getClaimState(ctx, t.q, user)
}

func (t *ledgerTx) SaveClaimState(ctx context.Context, c domain.ClaimState, created bool) error {
	return saveClaimState(ctx, t.q, c, created)
}

func (t *ledgerTx) Custodian() domain.Custodian { return t.custodian }

func (t *ledgerTx) Audit(ctx context.Context, event string, detail map[string]any) error {
	return logAudit(ctx, t.q, event, detail)
}
