// Package ws pushes committed ledger events to WebSocket subscribers.
//
// A subscriber starts out watching every ledger channel and every market. It
// narrows or widens that with control frames:
//
//	{"op":"watch","channels":["ledger:trades"],"markets":["0xabc..."]}
//	{"op":"unwatch","markets":["0xabc..."]}
//	{"op":"replay","after":"1700000000000-0","limit":100}
//
// Watching a market restricts delivery to the watched markets; unwatching the
// last one goes back to every market.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/metrics"
)

const (
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
	heartbeat       = idleTimeout * 9 / 10
	maxControlFrame = 4096
	outboxSize      = 256
	maxReplay       = 500
)

// Control operations accepted from subscribers.
const (
	opWatch   = "watch"
	opUnwatch = "unwatch"
	opReplay  = "replay"
)

// Frame types sent to subscribers.
const (
	frameWelcome  = "welcome"
	frameWatching = "watching"
	frameEvent    = "event"
	frameReplay   = "replay"
	frameError    = "error"
)

// ledgerChannels are the bus channels bridged to subscribers.
var ledgerChannels = []string{
	domain.ChannelMarkets,
	domain.ChannelTrades,
	domain.ChannelClaims,
	domain.ChannelRewards,
}

type control struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels,omitempty"`
	Markets  []string `json:"markets,omitempty"`
	After    string   `json:"after,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type frame struct {
	Type     string              `json:"type"`
	Channel  string              `json:"channel,omitempty"`
	StreamID string              `json:"stream_id,omitempty"`
	Event    *domain.LedgerEvent `json:"event,omitempty"`
	Channels []string            `json:"channels,omitempty"`
	Markets  []string            `json:"markets,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Config holds the hub's connection settings.
type Config struct {
	// AllowedOrigins restricts the Origin header of upgrade requests. Empty
	// allows every origin.
	AllowedOrigins []string
}

// Hub bridges the signal bus to WebSocket subscribers.
type Hub struct {
	bus      domain.SignalBus
	logger   *slog.Logger
	upgrader websocket.Upgrader
	events   chan busEvent

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

type busEvent struct {
	channel string
	event   domain.LedgerEvent
}

// NewHub creates a hub bridging bus to connected subscribers.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	return &Hub{
		bus:    bus,
		logger: logger.With(slog.String("component", "ws_hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originAllowed(cfg.AllowedOrigins),
		},
		events: make(chan busEvent, outboxSize),
		subs:   make(map[*subscriber]struct{}),
	}
}

func originAllowed(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run forwards ledger events to subscribers until ctx is cancelled, then
// disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range ledgerChannels {
		go h.follow(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case be := <-h.events:
			h.fanOut(be)
		}
	}
}

// follow decodes ledger events from one bus channel into h.events.
func (h *Hub) follow(ctx context.Context, channel string) {
	payloads, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.ErrorContext(ctx, "ws: subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-payloads:
			if !ok {
				h.logger.WarnContext(ctx, "ws: bus subscription ended", slog.String("channel", channel))
				return
			}
			var ev domain.LedgerEvent
			if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
				continue
			}
			select {
			case h.events <- busEvent{channel: channel, event: ev}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) fanOut(be busEvent) {
	data, err := json.Marshal(frame{Type: frameEvent, Channel: be.channel, Event: &be.event})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(be.channel, be.event.MarketID) {
			continue
		}
		if !s.deliver(data) {
			h.logger.Warn("ws: subscriber outbox full, event dropped",
				slog.String("event_id", be.event.ID),
				slog.String("market_id", be.event.MarketID),
			)
		}
	}
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[s] = struct{}{}
	metrics.WSClients.Inc()
	return true
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		metrics.WSClients.Dec()
		h.logger.Info("ws: subscriber left", slog.Int("subscribers", n))
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		s.disconnect()
		delete(h.subs, s)
	}
	metrics.WSClients.Set(0)
}

// HandleWS upgrades the request and registers a subscriber watching every
// ledger channel.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := newSubscriber(h, conn)
	if !h.add(s) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "ledger shutting down"),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}
	s.send(frame{Type: frameWelcome, Channels: ledgerChannels})

	go s.writeLoop()
	go s.readLoop()
}

// subscriber is one WebSocket connection. outbox is never closed; done
// signals the write loop to hang up.
type subscriber struct {
	hub    *Hub
	conn   *websocket.Conn
	outbox chan []byte
	done   chan struct{}
	once   sync.Once

	mu       sync.RWMutex
	channels map[string]bool
	markets  map[string]bool
}

func newSubscriber(h *Hub, conn *websocket.Conn) *subscriber {
	s := &subscriber{
		hub:      h,
		conn:     conn,
		outbox:   make(chan []byte, outboxSize),
		done:     make(chan struct{}),
		channels: make(map[string]bool, len(ledgerChannels)),
		markets:  make(map[string]bool),
	}
	for _, ch := range ledgerChannels {
		s.channels[ch] = true
	}
	return s
}

// wants reports whether an event on channel about marketID should reach s.
// A trailing "*" in a watched channel matches by prefix.
func (s *subscriber) wants(channel, marketID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.markets) > 0 && !s.markets[marketID] {
		return false
	}
	if s.channels[channel] {
		return true
	}
	for watched := range s.channels {
		if prefix, ok := strings.CutSuffix(watched, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// deliver queues data without blocking. It reports false when the outbox is
// full or the subscriber is gone.
func (s *subscriber) deliver(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outbox <- data:
		return true
	default:
		return false
	}
}

func (s *subscriber) send(f frame) bool {
	data, err := json.Marshal(f)
	if err != nil {
		return false
	}
	return s.deliver(data)
}

func (s *subscriber) disconnect() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) watch(req control) frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range req.Channels {
		if req.Op == opWatch {
			s.channels[ch] = true
		} else {
			delete(s.channels, ch)
		}
	}
	for _, id := range req.Markets {
		if req.Op == opWatch {
			s.markets[id] = true
		} else {
			delete(s.markets, id)
		}
	}

	f := frame{Type: frameWatching}
	for ch := range s.channels {
		f.Channels = append(f.Channels, ch)
	}
	for id := range s.markets {
		f.Markets = append(f.Markets, id)
	}
	return f
}

// replay sends retained events after req.After that s is watching.
func (s *subscriber) replay(req control) {
	after := req.After
	if after == "" {
		after = "0"
	}
	limit := req.Limit
	if limit <= 0 || limit > maxReplay {
		limit = maxReplay
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	entries, err := s.hub.bus.StreamRead(ctx, domain.EventStream, after, limit)
	if err != nil {
		s.hub.logger.Warn("ws: replay failed", slog.String("error", err.Error()))
		s.send(frame{Type: frameError, Error: "replay unavailable"})
		return
	}
	for _, e := range entries {
		var ev domain.LedgerEvent
		if json.Unmarshal(e.Payload, &ev) != nil {
			continue
		}
		channel := ev.Type.Channel()
		if !s.wants(channel, ev.MarketID) {
			continue
		}
		if !s.send(frame{Type: frameReplay, Channel: channel, StreamID: e.ID, Event: &ev}) {
			return
		}
	}
}

// readLoop applies control frames until the connection fails.
func (s *subscriber) readLoop() {
	defer func() {
		s.hub.remove(s)
		s.disconnect()
	}()

	s.conn.SetReadLimit(maxControlFrame)
	s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("ws: subscriber connection lost", slog.String("error", err.Error()))
			}
			return
		}

		var req control
		if json.Unmarshal(data, &req) != nil {
			s.send(frame{Type: frameError, Error: "malformed control frame"})
			continue
		}
		switch req.Op {
		case opWatch, opUnwatch:
			s.send(s.watch(req))
		case opReplay:
			s.replay(req)
		default:
			s.send(frame{Type: frameError, Error: "unknown op " + req.Op})
		}
	}
}

// writeLoop drains the outbox and keeps the connection alive. It owns every
// write to conn except the close sent on a refused upgrade.
func (s *subscriber) writeLoop() {
	ticker := time.NewTicker(heartbeat)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "closing"))
			return

		case data := <-s.outbox:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.disconnect()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.disconnect()
				return
			}
		}
	}
}
