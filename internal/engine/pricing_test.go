package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// buyFor runs a buy the way the service does: price, then credit the position.
func buyFor(t *testing.T, m *domain.Market, pos *domain.Position, index int, shares uint64) BuyQuote {
	t.Helper()
	if pos.Shares > 0 || pos.Claimed {
		if err := CheckTrade(pos, index); err != nil {
			t.Fatalf("CheckTrade: %v", err)
		}
	}
	q, err := Buy(m, index, shares)
	if err != nil {
		t.Fatalf("Buy(%d, %d): %v", index, shares, err)
	}
	pos.OptionIndex = uint8(index)
	if err := Credit(pos, shares, t0); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	return q
}

func TestBuy_EmptyPoolUsesVirtualLiquidity(t *testing.T) {
	m := newTestMarket(t, "Yes", "No")
	a := OpenPosition(m.ID, "alice", 0, t0)

	q := buyFor(t, m, &a, 0, 10)

	if q.CollateralNeeded != 500 || q.TokensNeeded != 50 {
		t.Fatalf("quote = %+v, want 500 collateral / 50 tokens", q)
	}
	if got := m.Options.Get(0).Shares; got != 60 {
		t.Errorf("option0 shares = %d, want 60", got)
	}
	if m.CollateralBalance != 50 {
		t.Errorf("collateral = %d, want 50", m.CollateralBalance)
	}
	if total, _ := TradedShares(m); total != 10 {
		t.Errorf("traded shares = %d, want 10", total)
	}
}

func TestBuy_UsesPoolRatio(t *testing.T) {
	m := newTestMarket(t, "Yes", "No")
	a := OpenPosition(m.ID, "alice", 0, t0)
	b := OpenPosition(m.ID, "bob", 1, t0)
	buyFor(t, m, &a, 0, 10)

	// C=50, T=10: 50*20/30 = 33 collateral, 3 tokens.
	q := buyFor(t, m, &b, 1, 20)

	if q.CollateralNeeded != 33 || q.TokensNeeded != 3 {
		t.Fatalf("quote = %+v", q)
	}
	if m.CollateralBalance != 53 {
		t.Errorf("collateral = %d, want 53", m.CollateralBalance)
	}
	if got := m.Options.Get(1).Shares; got != 70 {
		t.Errorf("option1 shares = %d, want 70", got)
	}
}

func TestBuy_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*domain.Market)
		index   int
		shares  uint64
		wantErr error
	}{
		{"zero shares", nil, 0, 0, domain.ErrZeroShares},
		{"bad index", nil, 7, 10, domain.ErrInvalidOption},
		{"negative index", nil, -1, 10, domain.ErrInvalidOption},
		{"dust", func(m *domain.Market) { m.Options.Get(0).Shares = 60; m.CollateralBalance = 50 }, 0, 1, domain.ErrInsufficientAmount},
		{"overflow", nil, 0, math.MaxUint64, domain.ErrOverflow},
		{"resolved", func(m *domain.Market) { m.Outcome = domain.ResolvedWith(0) }, 0, 10, domain.ErrMarketResolved},
		{"cancelled", func(m *domain.Market) { m.Outcome = domain.OutcomeCancelled }, 0, 10, domain.ErrMarketResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMarket(t, "Yes", "No")
			if tt.setup != nil {
				tt.setup(m)
			}
			before := *m
			_, err := Buy(m, tt.index, tt.shares)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if *m != before {
				t.Errorf("market mutated on failed buy")
			}
		})
	}
}

func TestSell(t *testing.T) {
	m := newTestMarket(t, "Yes", "No")
	a := OpenPosition(m.ID, "alice", 0, t0)
	b := OpenPosition(m.ID, "bob", 1, t0)
	buyFor(t, m, &a, 0, 10)
	buyFor(t, m, &b, 1, 20)

	// C=53, T=30: 53*5/30 = 8, which rounds down to zero tokens.
	q, err := Sell(m, &a, 5)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if q.Payout != 8 || q.TokensToReturn != 0 {
		t.Fatalf("quote = %+v", q)
	}
	if m.CollateralBalance != 53 || a.Shares != 5 || m.Options.Get(0).Shares != 55 {
		t.Fatalf("after dust sell: C=%d pos=%d opt=%d", m.CollateralBalance, a.Shares, m.Options.Get(0).Shares)
	}

	// C=53, T=25: 53*5/25 = 10 -> 1 token.
	q, err = Sell(m, &a, 5)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if q.TokensToReturn != 1 || m.CollateralBalance != 52 || a.Shares != 0 {
		t.Fatalf("quote = %+v, C=%d pos=%d", q, m.CollateralBalance, a.Shares)
	}

	// T=20 <= 20: the whole collateral is the payout.
	q, err = Sell(m, &b, 20)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if q.Payout != 52 || q.TokensToReturn != 5 || m.CollateralBalance != 47 {
		t.Fatalf("quote = %+v, C=%d", q, m.CollateralBalance)
	}
}

func TestSell_MoreThanHeldLeavesStateUnchanged(t *testing.T) {
	m := newTestMarket(t, "Yes", "No")
	a := OpenPosition(m.ID, "alice", 0, t0)
	buyFor(t, m, &a, 0, 10)

	beforeMarket, beforePos := *m, a
	_, err := Sell(m, &a, 11)
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("err = %v, want ErrInsufficientShares", err)
	}
	if *m != beforeMarket || a != beforePos {
		t.Errorf("state changed on rejected sell")
	}

	if _, err := Sell(m, nil, 1); !errors.Is(err, domain.ErrInsufficientShares) {
		t.Errorf("no position: err = %v", err)
	}
	if _, err := Sell(m, &a, 0); !errors.Is(err, domain.ErrZeroShares) {
		t.Errorf("zero: err = %v", err)
	}
}

func TestCheckTrade(t *testing.T) {
	pos := domain.Position{OptionIndex: 1, Shares: 5}

	if err := CheckTrade(&pos, 1); err != nil {
		t.Fatalf("same option: %v", err)
	}
	if err := CheckTrade(&pos, 0); !errors.Is(err, domain.ErrDifferentOptionBet) {
		t.Fatalf("other option: err = %v", err)
	}
	pos.Claimed = true
	if err := CheckTrade(&pos, 1); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("claimed: err = %v", err)
	}
}

func TestMulDiv(t *testing.T) {
	got, err := mulDiv(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	if err != nil || got != math.MaxUint64 {
		t.Fatalf("mulDiv = %d, %v", got, err)
	}
	if _, err := mulDiv(1, 1, 0); !errors.Is(err, domain.ErrDivisionByZero) {
		t.Fatalf("zero divisor: err = %v", err)
	}
	if _, err := mulDiv(math.MaxUint64, 2, 1); !errors.Is(err, domain.ErrOverflow) {
		t.Fatalf("overflow: err = %v", err)
	}
}
