package sqlite

import (
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Row models. Unsigned amounts are stored in INTEGER columns, which limits
// them to the signed 64-bit range on this backend.

type marketRow struct {
	ID                string           `gorm:"primaryKey"`
	Authority         string           `gorm:"not null;uniqueIndex:idx_markets_authority_index;index"`
	MarketIndex       uint16           `gorm:"not null;uniqueIndex:idx_markets_authority_index"`
	Question          string           `gorm:"not null"`
	Description       string           `gorm:"not null"`
	Options           domain.OptionSet `gorm:"type:text;not null"`
	Outcome           uint8            `gorm:"not null;index"`
	CollateralBalance uint64           `gorm:"not null"`
	VirtualLiquidity  uint64           `gorm:"not null"`
	CreatedAt         time.Time        `gorm:"autoCreateTime:false"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime:false"`
}

func (marketRow) TableName() string { return "markets" }

func (r marketRow) toDomain() domain.Market {
	return domain.Market{
		ID:                r.ID,
		Authority:         r.Authority,
		Index:             r.MarketIndex,
		Question:          r.Question,
		Description:       r.Description,
		Options:           r.Options,
		Outcome:           domain.Outcome(r.Outcome),
		CollateralBalance: r.CollateralBalance,
		VirtualLiquidity:  r.VirtualLiquidity,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func marketFromDomain(m domain.Market) marketRow {
	return marketRow{
		ID:                m.ID,
		Authority:         m.Authority,
		MarketIndex:       m.Index,
		Question:          m.Question,
		Description:       m.Description,
		Options:           m.Options,
		Outcome:           uint8(m.Outcome),
		CollateralBalance: m.CollateralBalance,
		VirtualLiquidity:  m.VirtualLiquidity,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

type positionRow struct {
	MarketID    string    `gorm:"primaryKey"`
	UserID      string    `gorm:"primaryKey;index"`
	OptionIndex uint8     `gorm:"not null"`
	Shares      uint64    `gorm:"not null"`
	Claimed     bool      `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (positionRow) TableName() string { return "positions" }

func (r positionRow) toDomain() domain.Position {
	return domain.Position{
		MarketID:    r.MarketID,
		User:        r.UserID,
		OptionIndex: r.OptionIndex,
		Shares:      r.Shares,
		Claimed:     r.Claimed,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type counterRow struct {
	Authority string `gorm:"primaryKey"`
	Count     uint16 `gorm:"not null"`
}

func (counterRow) TableName() string { return "counters" }

type claimStateRow struct {
	UserID    string `gorm:"primaryKey"`
	LastClaim int64  `gorm:"not null"`
}

func (claimStateRow) TableName() string { return "claim_states" }

type balanceRow struct {
	Account   string `gorm:"primaryKey"`
	Owner     string `gorm:"not null"`
	Amount    uint64 `gorm:"not null"`
	UpdatedAt time.Time
}

func (balanceRow) TableName() string { return "balances" }

type auditRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Event     string `gorm:"not null"`
	Detail    string
	CreatedAt time.Time `gorm:"index"`
}

func (auditRow) TableName() string { return "audit_log" }
