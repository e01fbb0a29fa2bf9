package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/pkg/eventbus"
	"github.com/storefront-labs/orchestrator/pkg/model"
)

// Execer is the subset of pgxpool.Pool the writer needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// archived lists the events that reach catalog.orders. Holds that never get
// past proof stay out of the archive.
var archived = map[string]bool{
	model.EventBatchSubmitted:  true,
	model.EventBatchConfirmed:  true,
	model.EventBatchRejected:   true,
	model.EventBatchDispatched: true,
	model.EventBatchPickedUp:   true,
	model.EventBatchReturned:   true,
}

// OrderWriter mirrors reviewed batches into catalog.orders for reporting.
type OrderWriter struct {
	db      Execer
	logger  *zap.Logger
	source  string
	timeout time.Duration
}

// NewOrderWriter constructs a writer. source identifies the instance writing
// the record (usually the service name).
func NewOrderWriter(db Execer, logger *zap.Logger, source string) *OrderWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderWriter{
		db:      db,
		logger:  logger,
		source:  source,
		timeout: 5 * time.Second,
	}
}

// Subscribe attaches the writer to every batch event on bus.
func (w *OrderWriter) Subscribe(bus *eventbus.EventBus) {
	bus.Subscribe("batch.*", func(event eventbus.Event) {
		ev, ok := event.(model.BatchEvent)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		_ = w.Upsert(ctx, ev)
	})
}

const upsertQuery = `
	INSERT INTO catalog.orders (
		batch_id,
		session_id,
		status,
		last_event,
		item_count,
		total,
		items,
		shipment_ref,
		source,
		event_at
	)
	VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::jsonb, $8, $9, $10)
	ON CONFLICT (batch_id)
	DO UPDATE SET
		status = EXCLUDED.status,
		last_event = EXCLUDED.last_event,
		shipment_ref = CASE WHEN EXCLUDED.shipment_ref <> '' THEN EXCLUDED.shipment_ref ELSE catalog.orders.shipment_ref END,
		event_at = EXCLUDED.event_at,
		updated_at = NOW()
	WHERE catalog.orders.event_at <= EXCLUDED.event_at;
`

// Upsert records ev unless it is a pre-review event. Out-of-order deliveries
// never overwrite a newer row.
func (w *OrderWriter) Upsert(ctx context.Context, ev model.BatchEvent) error {
	if !archived[ev.Type] {
		return nil
	}

	items, err := json.Marshal(ev.Items)
	if err != nil {
		return err
	}
	batch := model.Batch{Items: ev.Items}
	total := batch.Total()

	_, err = w.db.Exec(ctx, upsertQuery,
		ev.BatchID,           // batch_id
		ev.SessionID,         // session_id
		string(ev.Status),    // status
		ev.Type,              // last_event
		len(ev.Items),        // item_count
		total.StringFixed(2), // total
		string(items),        // items
		ev.ShipmentRef,       // shipment_ref
		w.source,             // source
		ev.At,                // event_at
	)
	if err != nil {
		w.logger.Error("archive.order_upsert_failed",
			zap.String("batch_id", ev.BatchID),
			zap.String("event", ev.Type),
			zap.Error(err),
		)
		return err
	}

	w.logger.Info("archive.order_upsert",
		zap.String("batch_id", ev.BatchID),
		zap.String("status", string(ev.Status)),
		zap.String("event", ev.Type),
		zap.String("total", total.StringFixed(2)),
	)
	return nil
}
