// Package engine holds the market state machine together with the pricing,
// position and settlement rules. Functions here are pure: they validate and
// mutate the records they are given and never touch storage or custody.
package engine

import (
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const (
	MaxQuestionLen    = 200
	MaxDescriptionLen = 500
	MaxOptionNameLen  = 50

	// BootstrapShares seeds every option at creation.
	BootstrapShares uint64 = 50
	// DefaultVirtualLiquidity prices the first trade of a market.
	DefaultVirtualLiquidity uint64 = 50
)

// CreateParams describes a new market. VirtualLiquidity defaults to
// DefaultVirtualLiquidity when zero.
type CreateParams struct {
	Authority        string
	Index            uint16
	Question         string
	Description      string
	Options          []string
	VirtualLiquidity uint64
}

// NewMarket validates p and returns an open market keyed by id.
func NewMarket(id string, p CreateParams, now time.Time) (domain.Market, error) {
	if len(p.Question) > MaxQuestionLen {
		return domain.Market{}, domain.ErrQuestionTooLong
	}
	if len(p.Description) > MaxDescriptionLen {
		return domain.Market{}, domain.ErrDescriptionTooLong
	}
	if len(p.Options) < domain.MinOptions || len(p.Options) > domain.MaxOptions {
		return domain.Market{}, domain.ErrInvalidOptionCount
	}

	var opts domain.OptionSet
	for _, name := range p.Options {
		if len(name) > MaxOptionNameLen {
			return domain.Market{}, domain.ErrOptionNameTooLong
		}
		if err := opts.Append(seededOption(name)); err != nil {
			return domain.Market{}, err
		}
	}

	vl := p.VirtualLiquidity
	if vl == 0 {
		vl = DefaultVirtualLiquidity
	}
	return domain.Market{
		ID:               id,
		Authority:        p.Authority,
		Index:            p.Index,
		Question:         p.Question,
		Description:      p.Description,
		Options:          opts,
		Outcome:          domain.OutcomeOpen,
		VirtualLiquidity: vl,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// AddOption appends a freshly seeded option to an open market.
func AddOption(m *domain.Market, caller, name string, now time.Time) error {
	if err := authorize(m, caller); err != nil {
		return err
	}
	if m.Resolved() {
		return domain.ErrMarketResolved
	}
	if len(name) > MaxOptionNameLen {
		return domain.ErrOptionNameTooLong
	}
	if err := m.Options.Append(seededOption(name)); err != nil {
		return err
	}
	m.UpdatedAt = now
	return nil
}

// SetOptionActive toggles whether option index accepts buys. At least one
// option must stay active.
func SetOptionActive(m *domain.Market, caller string, index int, active bool, now time.Time) error {
	if err := authorize(m, caller); err != nil {
		return err
	}
	if m.Resolved() {
		return domain.ErrMarketResolved
	}
	opt := m.Options.Get(index)
	if opt == nil {
		return domain.ErrInvalidOption
	}
	if opt.Active == active {
		return nil
	}
	if !active && m.Options.ActiveCount() == 1 {
		return domain.ErrLastActiveOption
	}
	opt.Active = active
	m.UpdatedAt = now
	return nil
}

// Resolve fixes the winning option. Terminal states never change again.
func Resolve(m *domain.Market, caller string, winner int, now time.Time) error {
	if err := authorize(m, caller); err != nil {
		return err
	}
	if m.Resolved() {
		return domain.ErrMarketResolved
	}
	if winner < 0 || winner >= m.Options.Len() {
		return domain.ErrInvalidOption
	}
	m.Outcome = domain.ResolvedWith(winner)
	m.UpdatedAt = now
	return nil
}

// Cancel moves an open market to Cancelled.
func Cancel(m *domain.Market, caller string, now time.Time) error {
	if err := authorize(m, caller); err != nil {
		return err
	}
	if m.Resolved() {
		return domain.ErrMarketResolved
	}
	m.Outcome = domain.OutcomeCancelled
	m.UpdatedAt = now
	return nil
}

func authorize(m *domain.Market, caller string) error {
	if caller != m.Authority {
		return domain.ErrUnauthorized
	}
	return nil
}

func seededOption(name string) domain.Option {
	return domain.Option{Name: name, Shares: BootstrapShares, Active: true}
}
