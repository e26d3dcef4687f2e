// Package sqlite implements the ledger store on SQLite through gorm. It backs
// local development and tests; a single connection serializes every
// transaction.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/alanyoungcy/marketledger/internal/custody"
	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Store implements domain.LedgerStore.
type Store struct {
	db      *gorm.DB
	custody custody.Config
}

// Open connects to the database at dsn (":memory:" for a throwaway one) and
// migrates the schema.
func Open(dsn string, cfg custody.Config) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite: underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&marketRow{}, &positionRow{}, &counterRow{},
		&claimStateRow{}, &balanceRow{}, &auditRow{},
	); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Store{db: db, custody: cfg}, nil
}

// InTx runs fn in a gorm transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ledgerTx{db: tx, custodian: custody.New(accounts{db: tx}, s.custody)})
	})
}

// Ping checks the database handle is usable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite: underlying db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *Store) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	return getMarket(s.db.WithContext(ctx), id)
}

func (s *Store) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	q := s.db.WithContext(ctx).Model(&marketRow{})
	if f.Authority != "" {
		q = q.Where("authority = ?", f.Authority)
	}
	switch f.Status {
	case "open":
		q = q.Where("outcome = 0")
	case "cancelled":
		q = q.Where("outcome = 1")
	case "resolved":
		q = q.Where("outcome >= 2")
	case "terminal":
		q = q.Where("outcome <> 0")
	}
	q = paginate(q.Order("created_at DESC").Order("id"), f.ListOpts)

	var rows []marketRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list markets: %w", err)
	}
	markets := make([]domain.Market, len(rows))
	for i, r := range rows {
		markets[i] = r.toDomain()
	}
	return markets, nil
}

func (s *Store) GetPosition(ctx context.Context, marketID, user string) (domain.Position, error) {
	return getPosition(s.db.WithContext(ctx), marketID, user)
}

func (s *Store) ListPositions(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Position, error) {
	q := paginate(s.db.WithContext(ctx).Where("user_id = ?", user).Order("updated_at DESC"), opts)
	return findPositions(q)
}

func (s *Store) ListMarketPositions(ctx context.Context, marketID string) ([]domain.Position, error) {
	return findPositions(s.db.WithContext(ctx).Where("market_id = ?", marketID).Order("created_at").Order("user_id"))
}

func (s *Store) GetCounter(ctx context.Context, authority string) (domain.Counter, error) {
	return getCounter(s.db.WithContext(ctx), authority)
}

func (s *Store) GetBalance(ctx context.Context, account string) (uint64, error) {
	var row balanceRow
	err := s.db.WithContext(ctx).Where("account = ?", account).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: get balance %s: %w", account, err)
	}
	return row.Amount, nil
}

func (s *Store) ListAudit(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var rows []auditRow
	if err := paginate(s.db.WithContext(ctx).Order("id DESC"), opts).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list audit: %w", err)
	}
	entries := make([]domain.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e := domain.AuditEntry{ID: r.ID, Event: r.Event, CreatedAt: r.CreatedAt}
		if strings.TrimSpace(r.Detail) != "" {
			if err := json.Unmarshal([]byte(r.Detail), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: decode audit detail %d: %w", r.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

type ledgerTx struct {
	db        *gorm.DB
	custodian *custody.Ledger
}

func (t *ledgerTx) LockMarket(_ context.Context, id string) (domain.Market, error) {
	return getMarket(t.db, id)
}

func (t *ledgerTx) InsertMarket(_ context.Context, m domain.Market) error {
	row := marketFromDomain(m)
	if err := t.db.Create(&row).Error; err != nil {
		return fmt.Errorf("sqlite: insert market %s: %w", m.ID, mapErr(err))
	}
	return nil
}

func (t *ledgerTx) UpdateMarket(_ context.Context, m domain.Market) error {
	res := t.db.Model(&marketRow{}).Where("id = ?", m.ID).Updates(map[string]any{
		"options":            m.Options,
		"outcome":            uint8(m.Outcome),
		"collateral_balance": m.CollateralBalance,
		"updated_at":         m.UpdatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("sqlite: update market %s: %w", m.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("sqlite: update market %s: %w", m.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *ledgerTx) LockPosition(_ context.Context, marketID, user string) (domain.Position, error) {
	return getPosition(t.db, marketID, user)
}

func (t *ledgerTx) SavePosition(_ context.Context, p domain.Position) error {
	row := positionRow{
		MarketID:    p.MarketID,
		UserID:      p.User,
		OptionIndex: p.OptionIndex,
		Shares:      p.Shares,
		Claimed:     p.Claimed,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"shares", "claimed", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sqlite: save position %s/%s: %w", p.MarketID, p.User, err)
	}
	return nil
}

func (t *ledgerTx) LockCounter(_ context.Context, authority string) (domain.Counter, error) {
	return getCounter(t.db, authority)
}

func (t *ledgerTx) SaveCounter(_ context.Context, c domain.Counter, created bool) error {
	row := counterRow{Authority: c.Authority, Count: c.Count}
	var err error
	if created {
		err = t.db.Create(&row).Error
	} else {
		err = t.db.Model(&counterRow{}).Where("authority = ?", c.Authority).Update("count", c.Count).Error
	}
	if err != nil {
		return fmt.Errorf("sqlite: save counter %s: %w", c.Authority, mapErr(err))
	}
	return nil
}

func (t *ledgerTx) LockClaimState(_ context.Context, user string) (domain.ClaimState, error) {
	var row claimStateRow
	if err := t.db.Where("user_id = ?", user).Take(&row).Error; err != nil {
		return domain.ClaimState{}, fmt.Errorf("sqlite: get claim state %s: %w", user, mapErr(err))
	}
	return domain.ClaimState{User: row.UserID, LastClaim: row.LastClaim}, nil
}

func (t *ledgerTx) SaveClaimState(_ context.Context, c domain.ClaimState, created bool) error {
	row := claimStateRow{UserID: c.User, LastClaim: c.LastClaim}
	var err error
	if created {
		err = t.db.Create(&row).Error
	} else {
		err = t.db.Model(&claimStateRow{}).Where("user_id = ?", c.User).Update("last_claim", c.LastClaim).Error
	}
	if err != nil {
		return fmt.Errorf("sqlite: save claim state %s: %w", c.User, mapErr(err))
	}
	return nil
}

func (t *ledgerTx) Custodian() domain.Custodian { return t.custodian }

func (t *ledgerTx) Audit(_ context.Context, event string, detail map[string]any) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	if err := t.db.Create(&auditRow{Event: event, Detail: string(data)}).Error; err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// accounts implements custody.Accounts on a transaction.
type accounts struct {
	db *gorm.DB
}

func (a accounts) LockAccount(_ context.Context, id, owner string) (domain.Account, error) {
	var row balanceRow
	err := a.db.Where(balanceRow{Account: id}).Attrs(balanceRow{Owner: owner}).FirstOrCreate(&row).Error
	if err != nil {
		return domain.Account{}, fmt.Errorf("sqlite: lock account %s: %w", id, err)
	}
	return domain.Account{ID: row.Account, Owner: row.Owner, Amount: row.Amount}, nil
}

func (a accounts) SaveAccount(_ context.Context, acct domain.Account) error {
	err := a.db.Model(&balanceRow{}).Where("account = ?", acct.ID).Update("amount", acct.Amount).Error
	if err != nil {
		return fmt.Errorf("sqlite: save account %s: %w", acct.ID, err)
	}
	return nil
}

func getMarket(db *gorm.DB, id string) (domain.Market, error) {
	var row marketRow
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.Market{}, fmt.Errorf("sqlite: get market %s: %w", id, mapErr(err))
	}
	return row.toDomain(), nil
}

func getPosition(db *gorm.DB, marketID, user string) (domain.Position, error) {
	var row positionRow
	if err := db.Where("market_id = ? AND user_id = ?", marketID, user).Take(&row).Error; err != nil {
		return domain.Position{}, fmt.Errorf("sqlite: get position %s/%s: %w", marketID, user, mapErr(err))
	}
	return row.toDomain(), nil
}

func getCounter(db *gorm.DB, authority string) (domain.Counter, error) {
	var row counterRow
	if err := db.Where("authority = ?", authority).Take(&row).Error; err != nil {
		return domain.Counter{}, fmt.Errorf("sqlite: get counter %s: %w", authority, mapErr(err))
	}
	return domain.Counter{Authority: row.Authority, Count: row.Count}, nil
}

func findPositions(q *gorm.DB) ([]domain.Position, error) {
	var rows []positionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list positions: %w", err)
	}
	positions := make([]domain.Position, len(rows))
	for i, r := range rows {
		positions[i] = r.toDomain()
	}
	return positions, nil
}

func paginate(q *gorm.DB, opts domain.ListOpts) *gorm.DB {
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return domain.ErrAlreadyExists
	default:
		return err
	}
}
