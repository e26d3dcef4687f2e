package domain

import "time"

// Position is a user's holding in exactly one option of one market. The
// option is fixed by the first trade; Claimed only ever moves false to true.
type Position struct {
	MarketID    string    `json:"market_id"`
	User        string    `json:"user"`
	OptionIndex uint8     `json:"option_index"`
	Shares      uint64    `json:"shares"`
	Claimed     bool      `json:"claimed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
