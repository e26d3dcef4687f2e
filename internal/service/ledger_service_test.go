package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/auth"
	"github.com/alanyoungcy/marketledger/internal/custody"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/store/sqlite"
)

const (
	authority = "0x1111111111111111111111111111111111111111"
	alice     = "0x2222222222222222222222222222222222222222"
	bob       = "0x3333333333333333333333333333333333333333"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	stream    [][]byte
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream = append(b.stream, payload)
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, _ string, _ string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for i, p := range b.stream {
		if count > 0 && len(out) == count {
			break
		}
		out = append(out, domain.StreamMessage{ID: string(rune('a' + i)), Payload: p})
	}
	return out, nil
}

func (b *fakeBus) events(t *testing.T) []domain.LedgerEvent {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.LedgerEvent, 0, len(b.stream))
	for _, p := range b.stream {
		var ev domain.LedgerEvent
		if err := json.Unmarshal(p, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

type fakeCache struct {
	markets     map[string]domain.Market
	invalidated []string
}

func (c *fakeCache) Set(_ context.Context, m domain.Market) error {
	if c.markets == nil {
		c.markets = map[string]domain.Market{}
	}
	c.markets[m.ID] = m
	return nil
}

func (c *fakeCache) Get(_ context.Context, id string) (domain.Market, error) {
	m, ok := c.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *fakeCache) Invalidate(_ context.Context, id string) error {
	delete(c.markets, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type fakeNotifier struct{ titles []string }

func (n *fakeNotifier) Notify(_ context.Context, _, title, _ string) error {
	n.titles = append(n.titles, title)
	return nil
}

type harness struct {
	store   *sqlite.Store
	bus     *fakeBus
	cache   *fakeCache
	notes   *fakeNotifier
	svc     *LedgerService
	rewards *RewardService
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.Open(":memory:", custody.Config{ProgramOwner: "program", MintAuthority: auth.MintAuthority()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	h := &harness{store: store, bus: &fakeBus{}, cache: &fakeCache{}, notes: &fakeNotifier{}, now: t0}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.svc = NewLedgerService(store, h.bus, h.cache, logger).
		WithClock(func() time.Time { return h.now }).
		WithNotifier(h.notes)
	h.rewards = NewRewardService(h.svc, 0)
	return h
}

func (h *harness) fund(t *testing.T, users ...string) {
	t.Helper()
	for _, u := range users {
		if _, err := h.rewards.Claim(context.Background(), u); err != nil {
			t.Fatalf("fund %s: %v", u, err)
		}
	}
}

func (h *harness) balance(t *testing.T, account string) uint64 {
	t.Helper()
	b, err := h.svc.Balance(context.Background(), account)
	if err != nil {
		t.Fatalf("balance %s: %v", account, err)
	}
	return b
}

func (h *harness) createMarket(t *testing.T, options ...string) domain.Market {
	t.Helper()
	m, err := h.svc.CreateMarket(context.Background(), authority, CreateMarketRequest{
		Question: "Will it rain tomorrow?",
		Options:  options,
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return m
}

func TestCreateMarket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m := h.createMarket(t, "Yes", "No")
	if m.Index != 0 || m.ID != auth.MarketID(authority, 0) {
		t.Errorf("first market index=%d id=%s", m.Index, m.ID)
	}
	if m.Options.Len() != 2 || m.Options.Get(1).Shares != 50 || !m.Options.Get(1).Active {
		t.Errorf("options = %+v", m.Options.Slice())
	}

	second := h.createMarket(t, "A", "B", "C")
	if second.Index != 1 {
		t.Errorf("second market index = %d, want 1", second.Index)
	}

	c, err := h.svc.Counter(ctx, authority)
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}
	if c.Count != 2 {
		t.Errorf("counter = %d, want 2", c.Count)
	}

	idx := uint16(0)
	_, err = h.svc.CreateMarket(ctx, authority, CreateMarketRequest{Index: &idx, Question: "dup", Options: []string{"x", "y"}})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate index: err = %v, want ErrAlreadyExists", err)
	}
	if c, _ := h.svc.Counter(ctx, authority); c.Count != 2 {
		t.Errorf("counter moved on failed create: %d", c.Count)
	}

	_, err = h.svc.CreateMarket(ctx, authority, CreateMarketRequest{Question: "one", Options: []string{"only"}})
	if !errors.Is(err, domain.ErrInvalidOptionCount) {
		t.Fatalf("one option: err = %v", err)
	}

	if got := h.bus.published[domain.ChannelMarkets]; len(got) != 2 {
		t.Errorf("market events = %d, want 2", len(got))
	}
	if c, _ := h.svc.Counter(ctx, "0xnobody"); c.Count != 0 {
		t.Errorf("unknown authority counter = %d", c.Count)
	}
}

func TestCreateMarket_DefaultIndexSkipsExplicit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	one := uint16(1)
	explicit, err := h.svc.CreateMarket(ctx, authority, CreateMarketRequest{Index: &one, Question: "explicit", Options: []string{"x", "y"}})
	if err != nil {
		t.Fatalf("explicit index: %v", err)
	}
	if explicit.Index != 1 {
		t.Fatalf("explicit index = %d", explicit.Index)
	}

	var got []uint16
	for range 2 {
		m := h.createMarket(t, "Yes", "No")
		got = append(got, m.Index)
	}
	if got[0] != 2 || got[1] != 3 {
		t.Errorf("default indexes = %v, want [2 3]", got)
	}

	zero := uint16(0)
	if _, err := h.svc.CreateMarket(ctx, authority, CreateMarketRequest{Index: &zero, Question: "gap", Options: []string{"x", "y"}}); err != nil {
		t.Fatalf("fill gap at index 0: %v", err)
	}
	next := h.createMarket(t, "Yes", "No")
	if next.Index != 4 {
		t.Errorf("index after filling gap = %d, want 4", next.Index)
	}
	if c, _ := h.svc.Counter(ctx, authority); c.Count != 5 {
		t.Errorf("counter = %d, want 5", c.Count)
	}
}

func TestAdminOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "Yes", "No")

	if _, err := h.svc.AddOption(ctx, alice, m.ID, "Maybe"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("AddOption by stranger: err = %v", err)
	}
	m, err := h.svc.AddOption(ctx, authority, m.ID, "Maybe")
	if err != nil {
		t.Fatalf("AddOption: %v", err)
	}
	if m.Options.Len() != 3 || m.Type() != domain.MarketTypeMulti {
		t.Errorf("after add: len=%d type=%s", m.Options.Len(), m.Type())
	}

	m, err = h.svc.SetOptionActive(ctx, authority, m.ID, 2, false)
	if err != nil {
		t.Fatalf("SetOptionActive: %v", err)
	}
	if m.Options.Get(2).Active {
		t.Error("option 2 still active")
	}

	h.fund(t, alice)
	if _, err := h.svc.Buy(ctx, alice, m.ID, 2, 10); !errors.Is(err, domain.ErrOptionInactive) {
		t.Fatalf("buy inactive: err = %v", err)
	}

	if _, err := h.svc.Resolve(ctx, alice, m.ID, 0); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Resolve by stranger: err = %v", err)
	}
	if _, err := h.svc.Resolve(ctx, authority, m.ID, 5); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("Resolve bad winner: err = %v", err)
	}
	if _, err := h.svc.Resolve(ctx, authority, m.ID, 1); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := h.svc.Cancel(ctx, authority, m.ID); !errors.Is(err, domain.ErrMarketResolved) {
		t.Fatalf("Cancel after resolve: err = %v", err)
	}
	if _, err := h.svc.AddOption(ctx, authority, m.ID, "Late"); !errors.Is(err, domain.ErrMarketResolved) {
		t.Fatalf("AddOption after resolve: err = %v", err)
	}
	if _, err := h.svc.Resolve(ctx, authority, "missing", 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Resolve missing market: err = %v", err)
	}

	if len(h.notes.titles) != 1 || h.notes.titles[0] != "Market resolved" {
		t.Errorf("notifications = %v", h.notes.titles)
	}
}

func TestResolvedScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, alice)
	start := h.balance(t, alice)
	m := h.createMarket(t, "Yes", "No")

	res, err := h.svc.Buy(ctx, alice, m.ID, 0, 10)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if res.Quote.TokensNeeded != 50 || res.Market.CollateralBalance != 50 || res.Position.Shares != 10 {
		t.Fatalf("buy result = %+v", res)
	}
	if got := h.balance(t, domain.EscrowAccount(m.ID)); got != 50 {
		t.Errorf("escrow = %d, want 50", got)
	}
	if got := h.balance(t, alice); got != start-50 {
		t.Errorf("alice = %d, want %d", got, start-50)
	}

	if _, err := h.svc.ClaimPayout(ctx, alice, m.ID); !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("claim while open: err = %v", err)
	}

	if _, err := h.svc.Resolve(ctx, authority, m.ID, 0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := h.svc.Buy(ctx, alice, m.ID, 0, 10); !errors.Is(err, domain.ErrMarketResolved) {
		t.Fatalf("buy after resolve: err = %v", err)
	}

	claim, err := h.svc.ClaimPayout(ctx, alice, m.ID)
	if err != nil {
		t.Fatalf("ClaimPayout: %v", err)
	}
	if claim.Amount != 1 || !claim.Position.Claimed || claim.Market.CollateralBalance != 49 {
		t.Fatalf("claim = %+v", claim)
	}
	if got := h.balance(t, alice); got != start-49 {
		t.Errorf("alice after claim = %d, want %d", got, start-49)
	}
	if got := h.balance(t, domain.EscrowAccount(m.ID)); got != 49 {
		t.Errorf("escrow after claim = %d, want 49", got)
	}

	if _, err := h.svc.ClaimPayout(ctx, alice, m.ID); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("second claim: err = %v", err)
	}
	if got := h.balance(t, alice); got != start-49 {
		t.Errorf("alice changed on second claim: %d", got)
	}

	var types []domain.EventType
	for _, ev := range h.bus.events(t) {
		types = append(types, ev.Type)
	}
	want := []domain.EventType{
		domain.EventRewardClaimed, domain.EventMarketCreated, domain.EventBuy,
		domain.EventMarketResolved, domain.EventPayoutClaimed,
	}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestCancelledScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, alice, bob)
	start := h.balance(t, alice)
	m := h.createMarket(t, "Yes", "No")

	if _, err := h.svc.Buy(ctx, alice, m.ID, 0, 10); err != nil {
		t.Fatalf("alice buy: %v", err)
	}
	res, err := h.svc.Buy(ctx, bob, m.ID, 1, 20)
	if err != nil {
		t.Fatalf("bob buy: %v", err)
	}
	if res.Quote.TokensNeeded != 3 || res.Market.CollateralBalance != 53 {
		t.Fatalf("bob buy = %+v", res)
	}
	if _, err := h.svc.Buy(ctx, bob, m.ID, 0, 20); !errors.Is(err, domain.ErrDifferentOptionBet) {
		t.Fatalf("bob buys other option: err = %v", err)
	}

	if _, err := h.svc.Cancel(ctx, authority, m.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	a, err := h.svc.ClaimPayout(ctx, alice, m.ID)
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	b, err := h.svc.ClaimPayout(ctx, bob, m.ID)
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	if a.Amount != 17 || b.Amount != 36 {
		t.Fatalf("refunds = %d, %d want 17, 36", a.Amount, b.Amount)
	}
	if got := h.balance(t, domain.EscrowAccount(m.ID)); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
	if got := h.balance(t, alice); got != start-50+17 {
		t.Errorf("alice = %d", got)
	}
	if got := h.balance(t, bob); got != start-3+36 {
		t.Errorf("bob = %d", got)
	}
	if len(h.notes.titles) != 1 || h.notes.titles[0] != "Market cancelled" {
		t.Errorf("notifications = %v", h.notes.titles)
	}
}

func TestSell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, alice, bob)
	m := h.createMarket(t, "Yes", "No")

	if _, err := h.svc.Sell(ctx, alice, m.ID, 5); !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("sell without position: err = %v", err)
	}

	if _, err := h.svc.Buy(ctx, alice, m.ID, 0, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.Buy(ctx, bob, m.ID, 1, 20); err != nil {
		t.Fatal(err)
	}
	before := h.balance(t, alice)

	// C=53, T=30: 53*5/30 = 8 collateral, zero tokens. The shares still leave.
	res, err := h.svc.Sell(ctx, alice, m.ID, 5)
	if err != nil {
		t.Fatalf("dust sell: %v", err)
	}
	if res.Quote.TokensToReturn != 0 || res.Position.Shares != 5 || res.Market.Options.Get(0).Shares != 55 {
		t.Fatalf("dust sell = %+v", res)
	}
	if got := h.balance(t, alice); got != before {
		t.Errorf("alice balance moved on dust sell: %d", got)
	}

	if _, err := h.svc.Sell(ctx, alice, m.ID, 6); !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("oversell: err = %v", err)
	}
	if _, err := h.svc.Sell(ctx, alice, m.ID, 0); !errors.Is(err, domain.ErrZeroShares) {
		t.Fatalf("zero sell: err = %v", err)
	}

	// C=53, T=25: bob's 20 return 53*20/25 = 42 collateral, 4 tokens.
	before = h.balance(t, bob)
	res, err = h.svc.Sell(ctx, bob, m.ID, 20)
	if err != nil {
		t.Fatalf("bob sell: %v", err)
	}
	if res.Quote.TokensToReturn != 4 || res.Market.CollateralBalance != 49 {
		t.Fatalf("bob sell = %+v", res)
	}
	if got := h.balance(t, bob); got != before+4 {
		t.Errorf("bob = %d, want %d", got, before+4)
	}
	if got := h.balance(t, domain.EscrowAccount(m.ID)); got != 49 {
		t.Errorf("escrow = %d, want 49", got)
	}
}

func TestBuy_InsufficientBalanceRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "Yes", "No")

	_, err := h.svc.Buy(ctx, alice, m.ID, 0, 10)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if domain.KindOf(err) != domain.KindCustody {
		t.Errorf("kind = %s", domain.KindOf(err))
	}

	got, err := h.svc.GetMarket(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CollateralBalance != 0 || got.Options.Get(0).Shares != 50 {
		t.Errorf("market mutated: %+v", got)
	}
	if _, err := h.svc.GetPosition(ctx, m.ID, alice); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("position created on failed buy: err = %v", err)
	}
}

// rejectingStore runs every transaction against the real store but hands
// out a custodian whose transfers fail.
type rejectingStore struct{ domain.LedgerStore }

func (s rejectingStore) InTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	return s.LedgerStore.InTx(ctx, func(tx domain.LedgerTx) error {
		return fn(rejectingTx{tx})
	})
}

type rejectingTx struct{ domain.LedgerTx }

func (t rejectingTx) Custodian() domain.Custodian {
	return rejectingCustodian{t.LedgerTx.Custodian()}
}

type rejectingCustodian struct{ domain.Custodian }

func (rejectingCustodian) Transfer(context.Context, string, string, uint64) error {
	return domain.ErrOwnerMismatch
}

func TestClaimPayout_TransferFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, alice)
	m := h.createMarket(t, "Yes", "No")
	if _, err := h.svc.Buy(ctx, alice, m.ID, 0, 10); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if _, err := h.svc.Resolve(ctx, authority, m.ID, 0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	before := h.balance(t, alice)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	failing := NewLedgerService(rejectingStore{h.store}, nil, nil, logger).
		WithClock(func() time.Time { return h.now })

	_, err := failing.ClaimPayout(ctx, alice, m.ID)
	if !errors.Is(err, domain.ErrOwnerMismatch) {
		t.Fatalf("err = %v, want ErrOwnerMismatch", err)
	}

	pos, err := h.svc.GetPosition(ctx, m.ID, alice)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Claimed {
		t.Error("position marked claimed after failed transfer")
	}
	got, err := failing.GetMarket(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CollateralBalance != 50 {
		t.Errorf("collateral = %d, want 50", got.CollateralBalance)
	}
	if b := h.balance(t, alice); b != before {
		t.Errorf("alice = %d, want %d", b, before)
	}

	claim, err := h.svc.ClaimPayout(ctx, alice, m.ID)
	if err != nil || claim.Amount != 1 {
		t.Fatalf("claim after rollback = %+v, %v", claim, err)
	}
}

func TestRewardCooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.rewards.Claim(ctx, alice)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if res.Amount != 100_000_000_000 || res.Balance != res.Amount {
		t.Errorf("first claim = %+v", res)
	}
	if !res.NextClaimAt.Equal(t0.Add(24 * time.Hour)) {
		t.Errorf("next claim at %v", res.NextClaimAt)
	}

	h.now = t0.Add(23*time.Hour + 59*time.Minute)
	if _, err := h.rewards.Claim(ctx, alice); !errors.Is(err, domain.ErrClaimTooSoon) {
		t.Fatalf("early claim: err = %v", err)
	}

	h.now = t0.Add(24 * time.Hour)
	res, err = h.rewards.Claim(ctx, alice)
	if err != nil {
		t.Fatalf("claim after cooldown: %v", err)
	}
	if res.Balance != 2*res.Amount {
		t.Errorf("balance = %d", res.Balance)
	}
}

func TestQuoteAndReads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, alice)
	m := h.createMarket(t, "Yes", "No")

	q, err := h.svc.Quote(ctx, m.ID, QuoteRequest{Side: "buy", OptionIndex: 0, Shares: 10})
	if err != nil {
		t.Fatalf("Quote buy: %v", err)
	}
	if q.Buy == nil || q.Buy.TokensNeeded != 50 || q.PotentialPayout != 1 {
		t.Fatalf("buy quote = %+v", q)
	}
	if got, _ := h.svc.GetMarket(ctx, m.ID); got.CollateralBalance != 0 {
		t.Error("quote mutated the market")
	}

	if _, err := h.svc.Buy(ctx, alice, m.ID, 0, 10); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.cache.markets[m.ID]; ok {
		t.Error("cache entry survived a trade")
	}

	q, err = h.svc.Quote(ctx, m.ID, QuoteRequest{Side: "sell", Shares: 10, User: alice})
	if err != nil {
		t.Fatalf("Quote sell: %v", err)
	}
	if q.Sell == nil || q.Sell.Payout != 50 || q.Sell.TokensToReturn != 5 {
		t.Fatalf("sell quote = %+v", q.Sell)
	}
	if _, err := h.svc.Quote(ctx, m.ID, QuoteRequest{Side: "hold"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("bad side: err = %v", err)
	}

	v := View(q2market(t, h, m.ID))
	if v.Status != "open" || v.Type != domain.MarketTypeBinary || v.TradedShares != 10 {
		t.Errorf("view = %+v", v)
	}
	if v.ImpliedPrices[0].String() != "0.54" {
		t.Errorf("implied price = %s", v.ImpliedPrices[0])
	}

	ps, err := h.svc.ListPositions(ctx, alice, domain.ListOpts{})
	if err != nil || len(ps) != 1 {
		t.Fatalf("ListPositions = %v, %v", ps, err)
	}
	open, err := h.svc.ListMarkets(ctx, domain.MarketFilter{Status: "open"})
	if err != nil || len(open) != 1 {
		t.Fatalf("ListMarkets = %v, %v", open, err)
	}
	entries, err := h.svc.ListAudit(ctx, domain.ListOpts{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[0].Event != string(domain.EventBuy) {
		t.Errorf("audit = %+v", entries)
	}
	msgs, err := h.svc.RecentEvents(ctx, "0", 2)
	if err != nil || len(msgs) != 2 {
		t.Errorf("RecentEvents = %d, %v", len(msgs), err)
	}
}

func q2market(t *testing.T, h *harness, id string) domain.Market {
	t.Helper()
	m, err := h.svc.GetMarket(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := h.cache.markets[id]; !ok {
		t.Error("GetMarket did not back-fill the cache")
	}
	return m
}
