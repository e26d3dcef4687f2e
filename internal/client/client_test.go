package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/auth"
	"github.com/alanyoungcy/marketledger/internal/custody"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/server"
	"github.com/alanyoungcy/marketledger/internal/server/handler"
	"github.com/alanyoungcy/marketledger/internal/service"
	"github.com/alanyoungcy/marketledger/internal/store/sqlite"
)

const (
	authorityKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	traderKey    = "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
)

func newLedgerServer(t *testing.T, verifier *auth.Verifier) *httptest.Server {
	t.Helper()
	store, err := sqlite.Open(":memory:", custody.Config{ProgramOwner: "program", MintAuthority: auth.MintAuthority()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := service.NewLedgerService(store, nil, nil, logger)
	h := server.NewHandler(server.Config{Verifier: verifier}, server.Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Markets:   handler.NewMarketHandler(ledger, logger),
		Trades:    handler.NewTradeHandler(ledger, logger),
		Positions: handler.NewPositionHandler(ledger, logger),
		Accounts:  handler.NewAccountHandler(ledger, service.NewRewardService(ledger, 100), logger),
		Events:    handler.NewEventHandler(ledger, logger),
	}, nil, logger)

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func signer(t *testing.T, key string) *auth.Signer {
	t.Helper()
	s, err := auth.NewSigner(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestClient_SignedFlow(t *testing.T) {
	ts := newLedgerServer(t, auth.NewVerifier(time.Minute))
	ctx := context.Background()

	owner := New(ts.URL, signer(t, authorityKey))
	trader := New(ts.URL, signer(t, traderKey))

	m, err := owner.CreateMarket(ctx, service.CreateMarketRequest{Question: "Rain?", Options: []string{"Yes", "No"}})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	if m.Authority != owner.Address() || m.Status != "open" {
		t.Fatalf("market = %+v", m)
	}

	_, err = trader.Buy(ctx, m.ID, 0, 10)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("unfunded buy: %v", err)
	}

	reward, err := trader.ClaimReward(ctx)
	if err != nil || reward.Amount != 100 {
		t.Fatalf("ClaimReward = %+v, %v", reward, err)
	}
	if _, err := trader.ClaimReward(ctx); !errors.Is(err, domain.ErrClaimTooSoon) {
		t.Fatalf("second reward: %v", err)
	}

	buy, err := trader.Buy(ctx, m.ID, 0, 10)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if buy.Quote.TokensNeeded != 50 || buy.Position.Shares != 10 {
		t.Fatalf("buy = %+v", buy)
	}

	if _, err := trader.Resolve(ctx, m.ID, 0); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stranger resolve: %v", err)
	}
	if _, err := owner.Resolve(ctx, m.ID, 0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	claim, err := trader.Claim(ctx, m.ID)
	if err != nil || claim.Amount != 1 {
		t.Fatalf("Claim = %+v, %v", claim, err)
	}
	bal, err := trader.Balance(ctx, trader.Address())
	if err != nil || bal != 51 {
		t.Fatalf("Balance = %d, %v", bal, err)
	}

	markets, err := owner.ListMarkets(ctx, "resolved", 10)
	if err != nil || len(markets) != 1 || markets[0].ID != m.ID {
		t.Fatalf("ListMarkets = %+v, %v", markets, err)
	}

	var apiErr *APIError
	_, err = owner.GetMarket(ctx, "missing")
	if !errors.As(err, &apiErr) || apiErr.Status != 404 || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetMarket missing: %v", err)
	}
}

func TestClient_UnsignedDevMode(t *testing.T) {
	ts := newLedgerServer(t, nil)
	ctx := context.Background()

	anon := New(ts.URL, nil)
	if _, err := anon.ClaimReward(ctx); err == nil {
		t.Fatal("anonymous reward accepted")
	}

	dev := New(ts.URL, nil).WithAddress("0x3333333333333333333333333333333333333333")
	if _, err := dev.ClaimReward(ctx); err != nil {
		t.Fatalf("dev reward: %v", err)
	}
}

func TestClient_RejectsWrongKeyForAddress(t *testing.T) {
	ts := newLedgerServer(t, auth.NewVerifier(time.Minute))
	c := New(ts.URL, signer(t, traderKey)).WithAddress(signer(t, authorityKey).Address())

	var apiErr *APIError
	_, err := c.ClaimReward(context.Background())
	if !errors.As(err, &apiErr) || apiErr.Status != 401 || !errors.Is(err, domain.ErrInvalidSigner) {
		t.Fatalf("err = %v", err)
	}
}

func TestClient_TimestampsIncrease(t *testing.T) {
	c := New("http://unused", nil)
	fixed := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return fixed }

	first, second := c.nextTimestamp(), c.nextTimestamp()
	if first != fixed.Unix() || second != first+1 {
		t.Fatalf("timestamps = %d, %d", first, second)
	}

	fixed = fixed.Add(time.Minute)
	if got := c.nextTimestamp(); got != fixed.Unix() {
		t.Errorf("after clock advance = %d, want %d", got, fixed.Unix())
	}
}
