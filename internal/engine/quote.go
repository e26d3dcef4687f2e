package engine

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// ImpliedPrices returns each option's share of the total pool, truncated to
// whole percentage points. An empty pool prices every option at 1/n.
func ImpliedPrices(m *domain.Market) []decimal.Decimal {
	opts := m.Options.Slice()
	prices := make([]decimal.Decimal, len(opts))
	if len(opts) == 0 {
		return prices
	}

	total := decimal.Zero
	for _, o := range opts {
		total = total.Add(decU64(o.Shares))
	}
	if total.IsZero() {
		uniform := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(opts))))
		for i := range prices {
			prices[i] = uniform
		}
		return prices
	}

	for i, o := range opts {
		prices[i] = decU64(o.Shares).Div(total).Truncate(2)
	}
	return prices
}

// PotentialPayout is what shares of the winning option redeem for.
func PotentialPayout(shares uint64) uint64 {
	return shares / PaymentUnitDivisor
}

func decU64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
