package availability

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

func TestCounts(t *testing.T) {
	sizes := model.Sizes{"40", "40", "41", "42"}

	got := Counts(sizes, map[string]int{"40": 1, "42": 1})
	assert.Equal(t, map[string]int{"40": 1, "41": 1}, got)
}

func TestCounts_ClampsAtZero(t *testing.T) {
	// catalog shrank below the held count after an admin edit
	got := Counts(model.Sizes{"40"}, map[string]int{"40": 3, "44": 1})
	assert.Empty(t, got)
}

func TestRemaining(t *testing.T) {
	sizes := model.Sizes{"42", "40", "40", "41"}

	assert.Equal(t, model.Sizes{"40", "41", "42"}, Remaining(sizes, map[string]int{"40": 1}))
	assert.Equal(t, model.Sizes{}, Remaining(model.Sizes{"40"}, map[string]int{"40": 2}))
	assert.Equal(t, model.Sizes{"40", "40", "41", "42"}, Remaining(sizes, nil))
}

type stubCatalog map[string]model.Product

func (s stubCatalog) Get(_ context.Context, id string) (model.Product, error) {
	p, ok := s[id]
	if !ok {
		return model.Product{}, model.ErrNotFound
	}
	return p, nil
}

type stubHolds map[string]map[string]int

func (s stubHolds) Held(id string) map[string]int { return s[id] }

func TestCalculator_Snapshot(t *testing.T) {
	catalog := stubCatalog{"p1": {ID: "p1", Price: decimal.NewFromInt(500), Sizes: model.Sizes{"40", "41"}, ListingRef: "ref-1"}}
	holds := stubHolds{"p1": {"41": 1}}
	calc := NewCalculator(catalog, holds)

	snap, err := calc.Snapshot(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Available("40"))
	assert.Equal(t, 0, snap.Available("41"))
	assert.Equal(t, model.Sizes{"40"}, snap.Remaining)

	l := snap.Listing()
	assert.Equal(t, "ref-1", l.Ref)
	assert.False(t, l.SoldOut)
}

func TestCalculator_SnapshotNotFound(t *testing.T) {
	calc := NewCalculator(stubCatalog{}, stubHolds{})
	_, err := calc.Snapshot(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
