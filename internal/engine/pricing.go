package engine

import (
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// PaymentUnitDivisor converts collateral amounts into token amounts.
const PaymentUnitDivisor uint64 = 10

// BuyQuote is the cost of acquiring shares at the current pool state.
type BuyQuote struct {
	OptionIndex      int    `json:"option_index"`
	Shares           uint64 `json:"shares"`
	CollateralNeeded uint64 `json:"collateral_needed"`
	TokensNeeded     uint64 `json:"tokens_needed"`
}

// SellQuote is what liquidating shares returns at the current pool state.
type SellQuote struct {
	OptionIndex    int    `json:"option_index"`
	Shares         uint64 `json:"shares"`
	Payout         uint64 `json:"payout"`
	TokensToReturn uint64 `json:"tokens_to_return"`
}

// TradedShares is the pool total T: every option's shares minus the
// bootstrap seed each option started with.
func TradedShares(m *domain.Market) (uint64, error) {
	total, err := m.Options.TotalShares()
	if err != nil {
		return 0, err
	}
	seeded := uint64(m.Options.Len()) * BootstrapShares
	if total < seeded {
		return 0, nil
	}
	return total - seeded, nil
}

// QuoteBuy prices shares of option index without mutating m.
func QuoteBuy(m *domain.Market, index int, shares uint64) (BuyQuote, error) {
	if m.Resolved() {
		return BuyQuote{}, domain.ErrMarketResolved
	}
	opt := m.Options.Get(index)
	if opt == nil {
		return BuyQuote{}, domain.ErrInvalidOption
	}
	if !opt.Active {
		return BuyQuote{}, domain.ErrOptionInactive
	}
	if shares == 0 {
		return BuyQuote{}, domain.ErrZeroShares
	}

	total, err := TradedShares(m)
	if err != nil {
		return BuyQuote{}, err
	}

	var needed *uint256.Int
	if total == 0 {
		needed = new(uint256.Int).Mul(u256(shares), u256(m.VirtualLiquidity))
	} else {
		denom := new(uint256.Int).Add(u256(total), u256(shares))
		needed = new(uint256.Int).Mul(u256(m.CollateralBalance), u256(shares))
		needed.Div(needed, denom)
	}
	if !needed.IsUint64() {
		return BuyQuote{}, domain.ErrOverflow
	}

	q := BuyQuote{
		OptionIndex:      index,
		Shares:           shares,
		CollateralNeeded: needed.Uint64(),
		TokensNeeded:     needed.Uint64() / PaymentUnitDivisor,
	}
	if q.TokensNeeded == 0 {
		return BuyQuote{}, domain.ErrInsufficientAmount
	}
	return q, nil
}

// Buy prices the trade and applies it to m. m is left untouched on error.
func Buy(m *domain.Market, index int, shares uint64) (BuyQuote, error) {
	q, err := QuoteBuy(m, index, shares)
	if err != nil {
		return BuyQuote{}, err
	}
	opt := m.Options.Get(index)
	newShares, ok := addU64(opt.Shares, shares)
	if !ok {
		return BuyQuote{}, domain.ErrOverflow
	}
	newCollateral, ok := addU64(m.CollateralBalance, q.TokensNeeded)
	if !ok {
		return BuyQuote{}, domain.ErrOverflow
	}
	opt.Shares = newShares
	m.CollateralBalance = newCollateral
	return q, nil
}

// QuoteSell prices liquidating shares of pos without mutating anything.
func QuoteSell(m *domain.Market, pos *domain.Position, shares uint64) (SellQuote, error) {
	if m.Resolved() {
		return SellQuote{}, domain.ErrMarketResolved
	}
	if shares == 0 {
		return SellQuote{}, domain.ErrZeroShares
	}
	if pos == nil || pos.Shares < shares {
		return SellQuote{}, domain.ErrInsufficientShares
	}
	if m.Options.Get(int(pos.OptionIndex)) == nil {
		return SellQuote{}, domain.ErrInvalidOption
	}

	total, err := TradedShares(m)
	if err != nil {
		return SellQuote{}, err
	}

	var payout uint64
	if total <= shares {
		payout = m.CollateralBalance
	} else {
		payout, err = mulDiv(m.CollateralBalance, shares, total)
		if err != nil {
			return SellQuote{}, err
		}
	}
	return SellQuote{
		OptionIndex:    int(pos.OptionIndex),
		Shares:         shares,
		Payout:         payout,
		TokensToReturn: payout / PaymentUnitDivisor,
	}, nil
}

// Sell prices the trade and applies it to m and pos. Neither is modified on
// error.
func Sell(m *domain.Market, pos *domain.Position, shares uint64) (SellQuote, error) {
	if pos != nil && pos.Claimed {
		return SellQuote{}, domain.ErrAlreadyClaimed
	}
	q, err := QuoteSell(m, pos, shares)
	if err != nil {
		return SellQuote{}, err
	}
	opt := m.Options.Get(q.OptionIndex)
	if opt.Shares < shares {
		return SellQuote{}, domain.ErrOverflow
	}
	if m.CollateralBalance < q.TokensToReturn {
		return SellQuote{}, domain.ErrCollateralShortfall
	}
	opt.Shares -= shares
	m.CollateralBalance -= q.TokensToReturn
	pos.Shares -= shares
	return q, nil
}

func u256(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// mulDiv returns a*b/d computed without intermediate overflow.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, domain.ErrDivisionByZero
	}
	x := new(uint256.Int).Mul(u256(a), u256(b))
	x.Div(x, u256(d))
	if !x.IsUint64() {
		return 0, domain.ErrOverflow
	}
	return x.Uint64(), nil
}

func addU64(a, b uint64) (uint64, bool) {
	s := a + b
	return s, s >= a
}
