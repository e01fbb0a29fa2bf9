package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/pkg/eventbus"
	"github.com/storefront-labs/orchestrator/pkg/model"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	mu    sync.Mutex
	calls []execCall
	err   error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func (f *fakeDB) Calls() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]execCall(nil), f.calls...)
}

func confirmedEvent() model.BatchEvent {
	return model.BatchEvent{
		Type:      model.EventBatchConfirmed,
		BatchID:   "b-1",
		SessionID: "s-1",
		Status:    model.StatusConfirmed,
		Items: []model.Item{
			{ProductID: "p-1", Size: "40", Price: decimal.NewFromInt(1500)},
			{ProductID: "p-2", Size: "38", Price: decimal.RequireFromString("2100.50")},
		},
		At: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestOrderWriter_UpsertConfirmed(t *testing.T) {
	db := &fakeDB{}
	w := NewOrderWriter(db, zap.NewNop(), "storefront")

	require.NoError(t, w.Upsert(t.Context(), confirmedEvent()))

	calls := db.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].sql, "INSERT INTO catalog.orders")
	args := calls[0].args
	require.Len(t, args, 10)
	assert.Equal(t, "b-1", args[0])
	assert.Equal(t, "CONFIRMED", args[2])
	assert.Equal(t, model.EventBatchConfirmed, args[3])
	assert.Equal(t, 2, args[4])
	assert.Equal(t, "3600.50", args[5])
	assert.Contains(t, args[6], `"product_id":"p-2"`)
	assert.Equal(t, "storefront", args[8])
}

func TestOrderWriter_SkipsPreReviewEvents(t *testing.T) {
	db := &fakeDB{}
	w := NewOrderWriter(db, nil, "storefront")

	ev := confirmedEvent()
	for _, typ := range []string{model.EventBatchHeld, model.EventBatchExpired} {
		ev.Type = typ
		require.NoError(t, w.Upsert(t.Context(), ev))
	}
	assert.Empty(t, db.Calls())
}

func TestOrderWriter_PropagatesExecError(t *testing.T) {
	db := &fakeDB{err: errors.New("connection reset")}
	w := NewOrderWriter(db, zap.NewNop(), "storefront")

	err := w.Upsert(t.Context(), confirmedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestOrderWriter_Subscribe(t *testing.T) {
	db := &fakeDB{}
	w := NewOrderWriter(db, zap.NewNop(), "storefront")
	bus := eventbus.New(eventbus.WithSyncDelivery())
	w.Subscribe(bus)

	ev := confirmedEvent()
	bus.Publish(ev)
	ev.Type = model.EventBatchDispatched
	ev.Status = model.StatusDispatched
	ev.ShipmentRef = "NP-20450001"
	bus.Publish(ev)

	calls := db.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "DISPATCHED", calls[1].args[2])
	assert.Equal(t, "NP-20450001", calls[1].args[7])
}
