package domain

import "time"

// Bus channels carrying ledger events.
const (
	ChannelMarkets = "ledger:markets"
	ChannelTrades  = "ledger:trades"
	ChannelClaims  = "ledger:claims"
	ChannelRewards = "ledger:rewards"

	// EventStream keeps a bounded history of every ledger event.
	EventStream = "ledger:events"
)

// EventType names a committed ledger operation.
type EventType string

const (
	EventMarketCreated  EventType = "market.created"
	EventOptionAdded    EventType = "market.option_added"
	EventOptionToggled  EventType = "market.option_toggled"
	EventMarketResolved EventType = "market.resolved"
	EventMarketCanceled EventType = "market.cancelled"
	EventBuy            EventType = "trade.buy"
	EventSell           EventType = "trade.sell"
	EventPayoutClaimed  EventType = "claim.payout"
	EventRewardClaimed  EventType = "reward.claimed"
)

// Channel returns the bus channel the event is published on.
func (t EventType) Channel() string {
	switch t {
	case EventBuy, EventSell:
		return ChannelTrades
	case EventPayoutClaimed:
		return ChannelClaims
	case EventRewardClaimed:
		return ChannelRewards
	default:
		return ChannelMarkets
	}
}

// LedgerEvent is published after a ledger transaction commits. Amount is in
// token base units; Shares is set for trades and claims.
type LedgerEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	MarketID    string    `json:"market_id,omitempty"`
	User        string    `json:"user,omitempty"`
	OptionIndex int       `json:"option_index"`
	Shares      uint64    `json:"shares,omitempty"`
	Amount      uint64    `json:"amount,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	At          time.Time `json:"at"`
}
