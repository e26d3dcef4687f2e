package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Notifier forwards operator alerts. notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// publisher fans committed ledger events out to the signal bus, the event
// stream, the market cache and the operator notifier. Every step is best
// effort: the ledger state has already committed when it runs.
type publisher struct {
	bus      domain.SignalBus
	cache    domain.MarketCache
	notifier Notifier
	logger   *slog.Logger
}

func newEvent(t domain.EventType, marketID string, at time.Time) domain.LedgerEvent {
	return domain.LedgerEvent{
		ID:       uuid.NewString(),
		Type:     t,
		MarketID: marketID,
		At:       at,
	}
}

func (p *publisher) publish(ctx context.Context, events ...domain.LedgerEvent) {
	for _, ev := range events {
		if ev.MarketID != "" && p.cache != nil {
			if err := p.cache.Invalidate(ctx, ev.MarketID); err != nil {
				p.logger.WarnContext(ctx, "service: cache invalidate failed",
					slog.String("market_id", ev.MarketID),
					slog.String("error", err.Error()),
				)
			}
		}

		if p.bus != nil {
			payload, err := json.Marshal(ev)
			if err != nil {
				p.logger.ErrorContext(ctx, "service: marshal event", slog.String("error", err.Error()))
				continue
			}
			if err := p.bus.Publish(ctx, ev.Type.Channel(), payload); err != nil {
				p.logger.WarnContext(ctx, "service: publish event failed",
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
			if err := p.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
				p.logger.WarnContext(ctx, "service: stream append failed",
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}

		p.notify(ctx, ev)
	}
}

func (p *publisher) notify(ctx context.Context, ev domain.LedgerEvent) {
	if p.notifier == nil {
		return
	}
	var title string
	switch ev.Type {
	case domain.EventMarketResolved:
		title = "Market resolved"
	case domain.EventMarketCanceled:
		title = "Market cancelled"
	default:
		return
	}
	msg := fmt.Sprintf("market %s by %s: %s", ev.MarketID, ev.User, ev.Outcome)
	if err := p.notifier.Notify(ctx, string(ev.Type), title, msg); err != nil {
		p.logger.WarnContext(ctx, "service: notify failed",
			slog.String("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
}
