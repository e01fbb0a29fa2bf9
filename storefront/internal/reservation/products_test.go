package reservation

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

func TestAddProduct_PublishesListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.o.AddProduct(ctx, model.Product{
		MediaRef: "media-new",
		Price:    decimal.NewFromInt(2100),
		Sizes:    model.Sizes{"43", "42", "42"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, snap.Product.ID)
	assert.Equal(t, 2, snap.Available("42"))

	p, err := f.catalog.Get(ctx, snap.Product.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ListingRef)
	assert.Equal(t, model.Sizes{"42", "42", "43"}, f.listings.shown(p.ID))
}

func TestAddProduct_RejectsFreePrice(t *testing.T) {
	f := newFixture(t)

	_, err := f.o.AddProduct(context.Background(), model.Product{Sizes: model.Sizes{"40"}})
	assert.ErrorIs(t, err, model.ErrMalformedInput)
	unsold, err := f.catalog.ListUnsold(context.Background())
	require.NoError(t, err)
	assert.Empty(t, unsold)
}

func TestEditProduct_RefreshesListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "p1", 1500, "40", "41")
	f.add(t, "s1", "p1", "40")

	price := decimal.NewFromInt(1800)
	snap, err := f.o.EditProduct(ctx, "p1", ProductEdit{
		Sizes: model.Sizes{"40", "41", "41"},
		Price: &price,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Available("41"))
	assert.True(t, snap.Product.Price.Equal(price))

	assert.Equal(t, model.Sizes{"40", "41", "41"}, f.sizes(t, "p1"))
	assert.Equal(t, model.Sizes{"40", "41", "41"}, f.listings.shown("p1"))

	// cart lines are not holds
	b, err := f.o.Checkout(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusHeld, b.Status)
}

func TestEditProduct_RefusesStockBelowHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "p1", 1500, "40", "40", "41")
	f.held(t, "s1", [2]string{"p1", "40"}, [2]string{"p1", "40"})
	before := f.listings.count("p1")

	_, err := f.o.EditProduct(ctx, "p1", ProductEdit{Sizes: model.Sizes{"40", "41"}})
	assert.ErrorIs(t, err, model.ErrProductInUse)
	assert.Equal(t, model.Sizes{"40", "40", "41"}, f.sizes(t, "p1"))
	assert.Equal(t, before, f.listings.count("p1"))

	// dropping an unheld size is fine
	snap, err := f.o.EditProduct(ctx, "p1", ProductEdit{Sizes: model.Sizes{"40", "40"}})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Available("40"))
	assert.Equal(t, 0, snap.Available("41"))
}

func TestEditProduct_PriceOnlyKeepsSizes(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", 1500, "40")

	price := decimal.NewFromInt(990)
	_, err := f.o.EditProduct(context.Background(), "p1", ProductEdit{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, model.Sizes{"40"}, f.sizes(t, "p1"))
	f.listings.mu.Lock()
	defer f.listings.mu.Unlock()
	assert.True(t, f.listings.last["p1"].Price.Equal(price))
}

func TestEditProduct_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "p1", 1500, "40")
	require.NoError(t, f.o.WithdrawProduct(ctx, "p1"))

	_, err := f.o.EditProduct(ctx, "p1", ProductEdit{Sizes: model.Sizes{"41"}})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.o.EditProduct(ctx, "missing", ProductEdit{Sizes: model.Sizes{"41"}})
	assert.ErrorIs(t, err, model.ErrNotFound)

	zero := decimal.Zero
	_, err = f.o.EditProduct(ctx, "p1", ProductEdit{Price: &zero})
	assert.ErrorIs(t, err, model.ErrMalformedInput)
}
