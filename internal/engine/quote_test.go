package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

func TestImpliedPrices(t *testing.T) {
	m := newTestMarket(t, "Yes", "No")
	half := decimal.RequireFromString("0.5")
	for i, p := range ImpliedPrices(m) {
		if !p.Equal(half) {
			t.Errorf("fresh price[%d] = %s, want 0.5", i, p)
		}
	}

	a := OpenPosition(m.ID, "alice", 0, t0)
	buyFor(t, m, &a, 0, 10)
	prices := ImpliedPrices(m)
	want := []string{"0.54", "0.45"}
	for i, w := range want {
		if !prices[i].Equal(decimal.RequireFromString(w)) {
			t.Errorf("price[%d] = %s, want %s", i, prices[i], w)
		}
	}
}

func TestImpliedPrices_EmptyPoolIsUniform(t *testing.T) {
	opts, _ := domain.NewOptionSet(domain.Option{Name: "a"}, domain.Option{Name: "b"}, domain.Option{Name: "c"}, domain.Option{Name: "d"})
	m := &domain.Market{Options: opts}

	for i, p := range ImpliedPrices(m) {
		if !p.Equal(decimal.RequireFromString("0.25")) {
			t.Errorf("price[%d] = %s, want 0.25", i, p)
		}
	}
}

func TestPotentialPayout(t *testing.T) {
	if got := PotentialPayout(109); got != 10 {
		t.Errorf("PotentialPayout(109) = %d", got)
	}
}
