package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

func TestCheckout_HoldsAndHidesUnits(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", 1500, "40", "40", "41")
	f.add(t, "s1", "p1", "40")

	b, err := f.o.Checkout(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusHeld, b.Status)
	assert.Equal(t, epoch.Add(30*time.Minute), b.Deadline)
	require.Len(t, b.Items, 1)
	assert.Equal(t, "26 cm", b.Items[0].SubAttribute)
	assert.True(t, b.Items[0].Price.Equal(b.Total()))

	assert.Equal(t, 1, f.ledger.HeldCount("p1", "40"))
	assert.Equal(t, model.Sizes{"40", "41"}, f.listings.shown("p1"))
	assert.Equal(t, model.Sizes{"40", "40", "41"}, f.sizes(t, "p1"), "catalog is untouched by a hold")
	assert.Empty(t, f.o.Cart(context.Background(), "s1"))
	assert.Equal(t, 1, f.o.PendingExpiries())
	assert.Equal(t, []string{model.EventBatchHeld}, f.events.types())
}

// Scenario A
func TestCheckout_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", 1500, "40", "40", "41")
	f.add(t, "s1", "p1", "40")
	f.add(t, "s2", "p1", "40")
	f.add(t, "s3", "p1", "40")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for _, s := range []string{"s1", "s2", "s3"} {
		wg.Add(1)
		go func(session string) {
			defer wg.Done()
			_, err := f.o.Checkout(context.Background(), session)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrInsufficientAvailability):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(s)
	}
	wg.Wait()

	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 2, f.ledger.HeldCount("p1", "40"))
	assert.Equal(t, model.Sizes{"41"}, f.listings.shown("p1"))
}

func TestCheckout_AllOrNothingCumulative(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", 1500, "40", "41")
	f.product(t, "p2", 900, "42")
	f.add(t, "s1", "p2", "42")
	f.add(t, "s1", "p1", "40")
	f.add(t, "s1", "p1", "40")

	_, err := f.o.Checkout(context.Background(), "s1")
	require.Error(t, err)

	var lineErr *model.LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 2, lineErr.Line)
	assert.Equal(t, 2, lineErr.Requested)
	assert.Equal(t, 1, lineErr.Available)
	assert.ErrorIs(t, err, model.ErrInsufficientAvailability)

	assert.Equal(t, 0, f.ledger.Total(), "no partial holds")
	assert.Len(t, f.o.Cart(context.Background(), "s1"), 3, "cart kept for retry")
	assert.Equal(t, 0, f.listings.count("p1"))
	assert.Empty(t, f.events.types())

	_, err = f.o.RemoveFromCart(context.Background(), "s1", 2)
	require.NoError(t, err)
	_, err = f.o.Checkout(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.ledger.Total())
}

func TestCheckout_PublisherFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", 1500, "40", "41")
	f.product(t, "p2", 900, "42", "43")
	f.add(t, "s1", "p1", "40")
	f.add(t, "s1", "p2", "42")
	f.listings.fail("p2", true)

	_, err := f.o.Checkout(context.Background(), "s1")
	assert.ErrorIs(t, err, model.ErrPublisherUnavailable)

	assert.Equal(t, 0, f.ledger.Total())
	assert.Equal(t, model.Sizes{"40", "41"}, f.listings.shown("p1"), "already refreshed listing restored")
	assert.Len(t, f.o.Cart(context.Background(), "s1"), 2)
	assert.Equal(t, 0, f.o.PendingExpiries())

	f.listings.fail("p2", false)
	_, err = f.o.Checkout(context.Background(), "s1")
	require.NoError(t, err)
}

func TestCheckout_PublishesUnlistedProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.catalog.Create(context.Background(), model.Product{ID: "p9", Sizes: model.Sizes{"44", "45"}})
	require.NoError(t, err)
	f.add(t, "s1", "p9", "44")

	_, err = f.o.Checkout(context.Background(), "s1")
	require.NoError(t, err)

	p, _ := f.catalog.Get(context.Background(), "p9")
	assert.NotEmpty(t, p.ListingRef)
	assert.Equal(t, model.Sizes{"45"}, f.listings.shown("p9"))
}

func TestCheckout_Guards(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", 1500, "40", "41")

	_, err := f.o.Checkout(context.Background(), "s1")
	assert.ErrorIs(t, err, model.ErrEmptyCart)

	f.add(t, "s1", "p1", "40")
	_, err = f.o.Checkout(context.Background(), "s1")
	require.NoError(t, err)

	f.add(t, "s1", "p1", "41")
	_, err = f.o.Checkout(context.Background(), "s1")
	assert.ErrorIs(t, err, model.ErrSessionBusy)
}

func TestCheckout_ProductWithdrawnAfterAdd(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", 1500, "40")
	f.add(t, "s1", "p1", "40")
	require.NoError(t, f.o.WithdrawProduct(context.Background(), "p1"))

	_, err := f.o.Checkout(context.Background(), "s1")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 0, f.ledger.Total())
}

func TestHeldNeverExceedsCatalog(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", 1500, "40", "41")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		session := "s" + string(rune('a'+i))
		size := "40"
		if i%2 == 0 {
			size = "41"
		}
		f.add(t, session, "p1", size)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.o.Checkout(context.Background(), session)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.ledger.HeldCount("p1", "40"))
	assert.Equal(t, 1, f.ledger.HeldCount("p1", "41"))
	assert.Empty(t, f.listings.shown("p1"))
}
