package engine

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMarket(t *testing.T, names ...string) *domain.Market {
	t.Helper()
	m, err := NewMarket("m1", CreateParams{
		Authority: "auth",
		Index:     0,
		Question:  "Will it rain tomorrow?",
		Options:   names,
	}, t0)
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}
	return &m
}

func TestNewMarket_Validation(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateParams
		wantErr error
	}{
		{"one option", CreateParams{Question: "q", Options: []string{"a"}}, domain.ErrInvalidOptionCount},
		{"seventeen options", CreateParams{Question: "q", Options: make([]string, 17)}, domain.ErrInvalidOptionCount},
		{"question too long", CreateParams{Question: strings.Repeat("q", 201), Options: []string{"a", "b"}}, domain.ErrQuestionTooLong},
		{"description too long", CreateParams{Question: "q", Description: strings.Repeat("d", 501), Options: []string{"a", "b"}}, domain.ErrDescriptionTooLong},
		{"option name too long", CreateParams{Question: "q", Options: []string{"a", strings.Repeat("n", 51)}}, domain.ErrOptionNameTooLong},
		{"bounds inclusive", CreateParams{Question: strings.Repeat("q", 200), Description: strings.Repeat("d", 500), Options: []string{strings.Repeat("n", 50), "b"}}, nil},
		{"sixteen options", CreateParams{Question: "q", Options: make([]string, 16)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMarket("m", tt.params, t0)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && domain.KindOf(err) != domain.KindValidation {
				t.Errorf("kind = %s, want validation", domain.KindOf(err))
			}
		})
	}
}

func TestNewMarket_Seeding(t *testing.T) {
	m := newTestMarket(t, "Yes", "No", "Maybe")

	if m.Options.Len() != 3 {
		t.Fatalf("options = %d, want 3", m.Options.Len())
	}
	for i, o := range m.Options.Slice() {
		if o.Shares != BootstrapShares || !o.Active {
			t.Errorf("option %d = %+v, want seeded and active", i, o)
		}
	}
	if m.CollateralBalance != 0 || m.VirtualLiquidity != 50 {
		t.Errorf("collateral=%d vl=%d", m.CollateralBalance, m.VirtualLiquidity)
	}
	if !m.Outcome.IsOpen() || m.Resolved() {
		t.Errorf("outcome = %s, want open", m.Outcome)
	}
	if m.Type() != domain.MarketTypeMulti {
		t.Errorf("type = %s, want multi", m.Type())
	}
	if bin := newTestMarket(t, "Yes", "No"); bin.Type() != domain.MarketTypeBinary {
		t.Errorf("type = %s, want binary", bin.Type())
	}
}

func TestAddOption(t *testing.T) {
	m := newTestMarket(t, "a", "b")

	if err := AddOption(m, "someone", "c", t0); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("foreign caller: err = %v", err)
	}
	if err := AddOption(m, "auth", strings.Repeat("x", 51), t0); !errors.Is(err, domain.ErrOptionNameTooLong) {
		t.Fatalf("long name: err = %v", err)
	}
	for m.Options.Len() < domain.MaxOptions {
		if err := AddOption(m, "auth", "more", t0); err != nil {
			t.Fatalf("AddOption at %d: %v", m.Options.Len(), err)
		}
	}
	if err := AddOption(m, "auth", "overflow", t0); !errors.Is(err, domain.ErrMaxOptionsReached) {
		t.Fatalf("cap: err = %v", err)
	}
	last := m.Options.Get(domain.MaxOptions - 1)
	if last.Shares != BootstrapShares || !last.Active {
		t.Errorf("appended option = %+v", *last)
	}

	closed := newTestMarket(t, "a", "b")
	if err := Cancel(closed, "auth", t0); err != nil {
		t.Fatal(err)
	}
	if err := AddOption(closed, "auth", "c", t0); !errors.Is(err, domain.ErrMarketResolved) {
		t.Fatalf("terminal: err = %v", err)
	}
}

func TestSetOptionActive(t *testing.T) {
	m := newTestMarket(t, "a", "b")

	if err := SetOptionActive(m, "auth", 1, false, t0); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := Buy(m, 1, 10); !errors.Is(err, domain.ErrOptionInactive) {
		t.Fatalf("buy inactive: err = %v", err)
	}
	if err := SetOptionActive(m, "auth", 0, false, t0); !errors.Is(err, domain.ErrLastActiveOption) {
		t.Fatalf("last active: err = %v", err)
	}
	if err := SetOptionActive(m, "auth", 5, true, t0); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("bad index: err = %v", err)
	}
	if err := SetOptionActive(m, "auth", 1, true, t0); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
}

func TestTerminalTransitions(t *testing.T) {
	tests := []struct {
		name   string
		first  func(*domain.Market) error
		second func(*domain.Market) error
	}{
		{"resolve twice", resolveTo(0), resolveTo(1)},
		{"cancel twice", cancel, cancel},
		{"cancel after resolve", resolveTo(1), cancel},
		{"resolve after cancel", cancel, resolveTo(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMarket(t, "a", "b")
			if err := tt.first(m); err != nil {
				t.Fatalf("first: %v", err)
			}
			outcome := m.Outcome
			err := tt.second(m)
			if !errors.Is(err, domain.ErrMarketResolved) {
				t.Fatalf("second: err = %v, want ErrMarketResolved", err)
			}
			if domain.KindOf(err) != domain.KindState {
				t.Errorf("kind = %s, want state", domain.KindOf(err))
			}
			if m.Outcome != outcome {
				t.Errorf("outcome changed from %s to %s", outcome, m.Outcome)
			}
		})
	}
}

func TestResolve_Checks(t *testing.T) {
	m := newTestMarket(t, "a", "b")

	if err := Resolve(m, "auth", 2, t0); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("winner out of range: err = %v", err)
	}
	if err := Resolve(m, "intruder", 0, t0); domain.KindOf(err) != domain.KindAuthorization {
		t.Fatalf("intruder: err = %v", err)
	}
	if !m.Outcome.IsOpen() {
		t.Fatalf("outcome = %s after failed resolves", m.Outcome)
	}
	if err := Resolve(m, "auth", 1, t0); err != nil {
		t.Fatal(err)
	}
	if w, ok := m.Outcome.Winner(); !ok || w != 1 {
		t.Errorf("winner = %d, %v", w, ok)
	}
	if !m.Resolved() {
		t.Error("Resolved() = false after resolve")
	}
}

func TestIncrementCounter(t *testing.T) {
	var c domain.Counter
	if err := IncrementCounter(&c, false, "auth"); err != nil {
		t.Fatal(err)
	}
	if c.Count != 1 || c.Authority != "auth" {
		t.Fatalf("counter = %+v", c)
	}
	if err := IncrementCounter(&c, true, "auth"); err != nil || c.Count != 2 {
		t.Fatalf("count = %d, err = %v", c.Count, err)
	}

	full := domain.Counter{Authority: "auth", Count: 65535}
	if err := IncrementCounter(&full, true, "auth"); !errors.Is(err, domain.ErrOverflow) {
		t.Fatalf("overflow: err = %v", err)
	}
}

func resolveTo(w int) func(*domain.Market) error {
	return func(m *domain.Market) error { return Resolve(m, "auth", w, t0) }
}

func cancel(m *domain.Market) error { return Cancel(m, "auth", t0) }
