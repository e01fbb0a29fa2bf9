package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/cart"
	"github.com/storefront-labs/orchestrator/internal/clock"
	"github.com/storefront-labs/orchestrator/internal/ledger"
	"github.com/storefront-labs/orchestrator/internal/scheduler"
	"github.com/storefront-labs/orchestrator/internal/store"
	"github.com/storefront-labs/orchestrator/pkg/eventbus"
	"github.com/storefront-labs/orchestrator/pkg/model"
	"github.com/storefront-labs/orchestrator/storefront/internal/dialog"
)

var epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeListings struct {
	mu      sync.Mutex
	last    map[string]model.Listing // product -> last pushed
	pushes  map[string]int
	removed []string
	failFor map[string]bool
}

func newFakeListings() *fakeListings {
	return &fakeListings{
		last:    make(map[string]model.Listing),
		pushes:  make(map[string]int),
		failFor: make(map[string]bool),
	}
}

func (f *fakeListings) Publish(_ context.Context, l model.Listing) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[l.ProductID] {
		return "", model.ErrPublisherUnavailable
	}
	l.Ref = "ref-" + uuid.NewString()
	f.last[l.ProductID] = l
	f.pushes[l.ProductID]++
	return l.Ref, nil
}

func (f *fakeListings) Update(_ context.Context, l model.Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[l.ProductID] {
		return model.ErrPublisherUnavailable
	}
	f.last[l.ProductID] = l
	f.pushes[l.ProductID]++
	return nil
}

func (f *fakeListings) Remove(_ context.Context, ref, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[productID] {
		return model.ErrPublisherUnavailable
	}
	f.removed = append(f.removed, productID)
	return nil
}

func (f *fakeListings) shown(productID string) model.Sizes {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last[productID].Sizes
}

func (f *fakeListings) count(productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes[productID]
}

func (f *fakeListings) fail(productID string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor[productID] = on
}

type eventLog struct {
	mu     sync.Mutex
	events []model.BatchEvent
}

func (l *eventLog) handle(e eventbus.Event) {
	if ev, ok := e.(model.BatchEvent); ok {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
	}
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

// switchableTokens fails every claim while down, the way a Redis outage does.
type switchableTokens struct {
	store.Tokens
	mu   sync.Mutex
	down bool
}

func (s *switchableTokens) Claim(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return false, errors.New("redis: connection refused")
	}
	return s.Tokens.Claim(ctx, token)
}

func (s *switchableTokens) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// hookedCatalog runs afterCommit once CommitSale has written, while the
// caller still holds its locks.
type hookedCatalog struct {
	*store.MemoryCatalog
	afterCommit func()
}

func (h *hookedCatalog) CommitSale(ctx context.Context, items []model.Item) error {
	if err := h.MemoryCatalog.CommitSale(ctx, items); err != nil {
		return err
	}
	if h.afterCommit != nil {
		h.afterCommit()
	}
	return nil
}

type fixture struct {
	o        *Orchestrator
	catalog  *store.MemoryCatalog
	hooks    *hookedCatalog
	ledger   *ledger.Ledger
	listings *fakeListings
	sessions *store.MemorySessions
	tokens   *switchableTokens
	clock    *clock.Fake
	events   *eventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(epoch)
	catalog := store.NewMemoryCatalog()
	hooks := &hookedCatalog{MemoryCatalog: catalog}
	tokens := &switchableTokens{Tokens: store.NewMemoryTokens()}
	l := ledger.New()
	listings := newFakeListings()
	sessions := store.NewMemorySessions(2*time.Hour, clk.Now)
	bus := eventbus.New(eventbus.WithSyncDelivery())
	log := &eventLog{}
	bus.Subscribe("batch.*", log.handle)

	o := New(Deps{
		Catalog:  hooks,
		Ledger:   l,
		Carts:    cart.NewStore(catalog),
		Listings: listings,
		Sessions: sessions,
		Tokens:   tokens,
		Events:   bus,
		Clock:    clk,
		Window:   scheduler.Window{Hold: 30 * time.Minute},
		Carriers: dialog.DefaultCarriers(),
		Logger:   zap.NewNop(),
	})
	t.Cleanup(o.Stop)

	return &fixture{
		o:        o,
		catalog:  catalog,
		hooks:    hooks,
		ledger:   l,
		listings: listings,
		sessions: sessions,
		tokens:   tokens,
		clock:    clk,
		events:   log,
	}
}

func (f *fixture) product(t *testing.T, id string, price int64, sizes ...string) {
	t.Helper()
	_, err := f.catalog.Create(context.Background(), model.Product{
		ID:            id,
		MediaRef:      "media-" + id,
		Price:         decimal.NewFromInt(price),
		Sizes:         model.Sizes(sizes),
		SubAttributes: map[string]string{"40": "26 cm", "41": "26.5 cm"},
		ListingRef:    "ref-" + id,
	})
	require.NoError(t, err)
}

func (f *fixture) add(t *testing.T, session, productID, size string) {
	t.Helper()
	_, err := f.o.AddToCart(context.Background(), session, productID, size)
	require.NoError(t, err)
}

// submitAll walks a held batch through proof and every shipping detail.
func (f *fixture) submitAll(t *testing.T, session string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.o.SubmitProof(ctx, session, "receipt-"+session)
	require.NoError(t, err)
	for _, d := range []struct {
		field dialog.Field
		value string
	}{
		{dialog.FieldName, "Shevchenko Taras"},
		{dialog.FieldPhone, "+380501234567"},
		{dialog.FieldCity, "Lviv"},
		{dialog.FieldCarrier, "nova_poshta"},
		{dialog.FieldCarrierDetail, "17"},
	} {
		_, err := f.o.SubmitDetails(ctx, session, d.field, d.value)
		require.NoError(t, err, d.field)
	}
}

func (f *fixture) sizes(t *testing.T, productID string) model.Sizes {
	t.Helper()
	p, err := f.catalog.Get(context.Background(), productID)
	require.NoError(t, err)
	return p.Sizes
}
