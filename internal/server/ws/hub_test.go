package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

type chanBus struct {
	channels map[string]chan []byte
	stream   []domain.StreamMessage
}

func newChanBus() *chanBus {
	b := &chanBus{channels: map[string]chan []byte{}}
	for _, ch := range ledgerChannels {
		b.channels[ch] = make(chan []byte, 16)
	}
	return b
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.channels[channel] <- payload
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.channels[channel], nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return b.stream, nil
}

func eventJSON(t *testing.T, ev domain.LedgerEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func startHub(t *testing.T, bus *chanBus) (*websocket.Conn, context.CancelFunc) {
	t.Helper()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, cancel
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestHub_WatchMarketFiltersEvents(t *testing.T) {
	bus := newChanBus()
	conn, _ := startHub(t, bus)

	if f := readFrame(t, conn); f.Type != frameWelcome || len(f.Channels) != len(ledgerChannels) {
		t.Fatalf("welcome = %+v", f)
	}

	if err := conn.WriteJSON(control{Op: opWatch, Markets: []string{"m1"}}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != frameWatching || len(f.Markets) != 1 || f.Markets[0] != "m1" {
		t.Fatalf("watching = %+v", f)
	}

	ctx := context.Background()
	bus.Publish(ctx, domain.ChannelTrades, eventJSON(t, domain.LedgerEvent{ID: "e1", Type: domain.EventBuy, MarketID: "m2"}))
	bus.Publish(ctx, domain.ChannelTrades, []byte("not json"))
	bus.Publish(ctx, domain.ChannelTrades, eventJSON(t, domain.LedgerEvent{ID: "e2", Type: domain.EventBuy, MarketID: "m1", Shares: 10}))

	f := readFrame(t, conn)
	if f.Type != frameEvent || f.Channel != domain.ChannelTrades || f.Event == nil || f.Event.ID != "e2" || f.Event.Shares != 10 {
		t.Fatalf("event = %+v", f)
	}

	if err := conn.WriteJSON(control{Op: "shout"}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != frameError {
		t.Fatalf("unknown op reply = %+v", f)
	}
}

func TestHub_ReplayHonoursWatchList(t *testing.T) {
	bus := newChanBus()
	bus.stream = []domain.StreamMessage{
		{ID: "1-0", Payload: eventJSON(t, domain.LedgerEvent{ID: "r1", Type: domain.EventRewardClaimed, User: "0x01"})},
		{ID: "2-0", Payload: eventJSON(t, domain.LedgerEvent{ID: "r2", Type: domain.EventMarketResolved, MarketID: "m1"})},
	}
	conn, _ := startHub(t, bus)
	readFrame(t, conn)

	if err := conn.WriteJSON(control{Op: opUnwatch, Channels: []string{domain.ChannelRewards}}); err != nil {
		t.Fatal(err)
	}
	readFrame(t, conn)
	if err := conn.WriteJSON(control{Op: opReplay, After: "0"}); err != nil {
		t.Fatal(err)
	}

	f := readFrame(t, conn)
	if f.Type != frameReplay || f.StreamID != "2-0" || f.Channel != domain.ChannelMarkets || f.Event.ID != "r2" {
		t.Fatalf("replay = %+v", f)
	}
}

func TestHub_ShutdownClosesSubscribers(t *testing.T) {
	conn, cancel := startHub(t, newChanBus())
	readFrame(t, conn)

	cancel()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("err = %v, want going-away close", err)
	}
}
