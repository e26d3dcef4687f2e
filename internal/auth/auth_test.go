package auth

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestVerifier_RoundTrip(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	v := NewVerifier(time.Minute)
	v.now = func() time.Time { return now }

	body := []byte(`{"option_index":0,"shares":10}`)
	sig, err := s.SignRequest("POST", "/api/markets/x/buy", now.Unix(), body)
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}
	ts := strconv.FormatInt(now.Unix(), 10)

	got, err := v.Verify(context.Background(), "POST", "/api/markets/x/buy", s.Address(), ts, sig, body)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != s.Address() {
		t.Errorf("identity = %s, want %s", got, s.Address())
	}

	tests := []struct {
		name    string
		path    string
		claimed string
		ts      string
		body    []byte
	}{
		{"tampered body", "/api/markets/x/buy", s.Address(), ts, []byte(`{"shares":1000}`)},
		{"other path", "/api/markets/x/sell", s.Address(), ts, body},
		{"other address", "/api/markets/x/buy", "0x000000000000000000000000000000000000dEaD", ts, body},
		{"stale", "/api/markets/x/buy", s.Address(), strconv.FormatInt(now.Add(-2*time.Minute).Unix(), 10), body},
		{"not an address", "/api/markets/x/buy", "alice", ts, body},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), "POST", tt.path, tt.claimed, tt.ts, sig, tt.body)
			if !errors.Is(err, domain.ErrInvalidSigner) {
				t.Fatalf("err = %v, want ErrInvalidSigner", err)
			}
		})
	}
}

func TestMarketID(t *testing.T) {
	a := MarketID("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1", 0)
	if a != MarketID("0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1", 0) {
		t.Error("market id depends on address case")
	}
	if a == MarketID("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1", 1) {
		t.Error("different indexes share an id")
	}
	if len(a) != 66 {
		t.Errorf("id %q is not a 32-byte hex hash", a)
	}
	if MintAuthority() == a {
		t.Error("mint authority collides with market id")
	}
}

type failingNonces struct{}

func (failingNonces) MarkUsed(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("store down")
}

func TestVerifier_RejectsReplay(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)
	nonces := NewMemoryNonceStore()
	nonces.now = func() time.Time { return now }
	v := NewVerifier(time.Minute).WithNonceStore(nonces)
	v.now = func() time.Time { return now }

	body := []byte(`{"option_index":0,"shares":10}`)
	sign := func(at time.Time) (string, string) {
		sig, err := s.SignRequest("POST", "/api/markets/x/buy", at.Unix(), body)
		if err != nil {
			t.Fatal(err)
		}
		return strconv.FormatInt(at.Unix(), 10), sig
	}
	ctx := context.Background()

	ts, sig := sign(now)
	if _, err := v.Verify(ctx, "POST", "/api/markets/x/buy", s.Address(), ts, sig, body); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if _, err := v.Verify(ctx, "POST", "/api/markets/x/buy", s.Address(), ts, sig, body); !errors.Is(err, domain.ErrInvalidSigner) {
		t.Fatalf("replay: err = %v, want ErrInvalidSigner", err)
	}

	ts2, sig2 := sign(now.Add(time.Second))
	if _, err := v.Verify(ctx, "POST", "/api/markets/x/buy", s.Address(), ts2, sig2, body); err != nil {
		t.Fatalf("same body, new timestamp: %v", err)
	}

	// Past the window the timestamp itself is stale, so expiry never reopens it.
	now = now.Add(3 * time.Minute)
	if _, err := v.Verify(ctx, "POST", "/api/markets/x/buy", s.Address(), ts, sig, body); !errors.Is(err, domain.ErrInvalidSigner) {
		t.Fatalf("stale replay: err = %v", err)
	}
	ts3, sig3 := sign(now)
	if _, err := v.Verify(ctx, "POST", "/api/markets/x/buy", s.Address(), ts3, sig3, body); err != nil {
		t.Fatalf("fresh request: %v", err)
	}
	if len(nonces.seen) != 1 {
		t.Errorf("nonces kept = %d, want only the fresh one", len(nonces.seen))
	}
}

func TestVerifier_NonceStoreFailure(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatal(err)
	}
	v := NewVerifier(time.Minute).WithNonceStore(failingNonces{})
	now := time.Now()
	sig, err := s.SignRequest("GET", "/api/positions", now.Unix(), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = v.Verify(context.Background(), "GET", "/api/positions", s.Address(), strconv.FormatInt(now.Unix(), 10), sig, nil)
	if err == nil || errors.Is(err, domain.ErrInvalidSigner) {
		t.Fatalf("err = %v, want a store error", err)
	}
}
