package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MinOptions and MaxOptions bound the option set of every market.
	MinOptions = 2
	MaxOptions = 16
)

// MarketType is derived from the option count; binary markets are the
// two-option case of the general engine.
type MarketType string

const (
	MarketTypeBinary MarketType = "binary"
	MarketTypeMulti  MarketType = "multi"
)

// Option is one mutually exclusive outcome of a market.
type Option struct {
	Name   string `json:"name"`
	Shares uint64 `json:"shares"`
	Active bool   `json:"active"`
}

// OptionSet is a fixed-capacity option list with an explicit length.
// Appends past MaxOptions are rejected.
type OptionSet struct {
	items [MaxOptions]Option
	n     int
}

// NewOptionSet builds a set from opts, failing when more than MaxOptions are
// given.
func NewOptionSet(opts ...Option) (OptionSet, error) {
	var s OptionSet
	for _, o := range opts {
		if err := s.Append(o); err != nil {
			return OptionSet{}, err
		}
	}
	return s, nil
}

// Len returns the number of options in the set.
func (s *OptionSet) Len() int { return s.n }

// Get returns a pointer to option i, or nil when i is out of range.
func (s *OptionSet) Get(i int) *Option {
	if i < 0 || i >= s.n {
		return nil
	}
	return &s.items[i]
}

// Append adds o at the end of the set.
func (s *OptionSet) Append(o Option) error {
	if s.n >= MaxOptions {
		return ErrMaxOptionsReached
	}
	s.items[s.n] = o
	s.n++
	return nil
}

// Slice returns a copy of the options in order.
func (s OptionSet) Slice() []Option {
	out := make([]Option, s.n)
	copy(out, s.items[:s.n])
	return out
}

// TotalShares sums the share counts of every option.
func (s OptionSet) TotalShares() (uint64, error) {
	var total uint64
	for i := 0; i < s.n; i++ {
		next := total + s.items[i].Shares
		if next < total {
			return 0, ErrOverflow
		}
		total = next
	}
	return total, nil
}

// ActiveCount returns how many options are currently active.
func (s OptionSet) ActiveCount() int {
	n := 0
	for i := 0; i < s.n; i++ {
		if s.items[i].Active {
			n++
		}
	}
	return n
}

func (s OptionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *OptionSet) UnmarshalJSON(data []byte) error {
	var opts []Option
	if err := json.Unmarshal(data, &opts); err != nil {
		return err
	}
	set, err := NewOptionSet(opts...)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// Value stores the set as a JSON document column.
func (s OptionSet) Value() (driver.Value, error) {
	data, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan reads a set previously written by Value.
func (s *OptionSet) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	case nil:
		*s = OptionSet{}
		return nil
	default:
		return fmt.Errorf("domain: cannot scan %T into OptionSet", src)
	}
}

// Outcome encodes a market's status in a single value: zero is Open, one is
// Cancelled and 2+w is Resolved with winner w.
type Outcome uint8

const (
	OutcomeOpen      Outcome = 0
	OutcomeCancelled Outcome = 1

	outcomeResolvedBase = 2
)

// ResolvedWith returns the Resolved outcome for the given winner index.
func ResolvedWith(winner int) Outcome {
	return Outcome(outcomeResolvedBase + winner)
}

// IsOpen reports whether trading is still allowed.
func (o Outcome) IsOpen() bool { return o == OutcomeOpen }

// IsCancelled reports whether the market was cancelled.
func (o Outcome) IsCancelled() bool { return o == OutcomeCancelled }

// Terminal is true for both Resolved and Cancelled.
func (o Outcome) Terminal() bool { return o != OutcomeOpen }

// Winner returns the winning option index when the outcome is Resolved.
func (o Outcome) Winner() (int, bool) {
	if o < outcomeResolvedBase {
		return 0, false
	}
	return int(o - outcomeResolvedBase), true
}

// Status names the lifecycle state: open, resolved or cancelled.
func (o Outcome) Status() string {
	switch {
	case o.IsOpen():
		return "open"
	case o.IsCancelled():
		return "cancelled"
	default:
		return "resolved"
	}
}

func (o Outcome) String() string {
	if w, ok := o.Winner(); ok {
		return "resolved:" + strconv.Itoa(w)
	}
	return o.Status()
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	s := string(text)
	switch s {
	case "open":
		*o = OutcomeOpen
		return nil
	case "cancelled":
		*o = OutcomeCancelled
		return nil
	}
	w, ok := strings.CutPrefix(s, "resolved:")
	if !ok {
		return fmt.Errorf("domain: unknown outcome %q", s)
	}
	n, err := strconv.Atoi(w)
	if err != nil || n < 0 || n >= MaxOptions {
		return fmt.Errorf("domain: bad winner in outcome %q", s)
	}
	*o = ResolvedWith(n)
	return nil
}

// Market is a prediction market keyed by (Authority, Index). ID is the
// deterministic key derived from that pair.
type Market struct {
	ID                string    `json:"id"`
	Authority         string    `json:"authority"`
	Index             uint16    `json:"index"`
	Question          string    `json:"question"`
	Description       string    `json:"description"`
	Options           OptionSet `json:"options"`
	Outcome           Outcome   `json:"outcome"`
	CollateralBalance uint64    `json:"collateral_balance"`
	VirtualLiquidity  uint64    `json:"virtual_liquidity"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Resolved is true once the market reached either terminal state.
func (m *Market) Resolved() bool { return m.Outcome.Terminal() }

// Type reports binary for two-option markets and multi otherwise.
func (m *Market) Type() MarketType {
	if m.Options.Len() == 2 {
		return MarketTypeBinary
	}
	return MarketTypeMulti
}

// EscrowAccount is the custodian account holding the market's collateral.
func (m *Market) EscrowAccount() string { return EscrowAccount(m.ID) }

// EscrowAccount names the escrow account of the given market.
func EscrowAccount(marketID string) string { return "escrow:" + marketID }

// Counter tracks how many markets an authority has created.
type Counter struct {
	Authority string `json:"authority"`
	Count     uint16 `json:"count"`
}

// ClaimState remembers the last daily reward claim of a user, in unix seconds.
type ClaimState struct {
	User      string `json:"user"`
	LastClaim int64  `json:"last_claim"`
}
