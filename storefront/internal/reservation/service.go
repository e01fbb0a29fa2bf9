// Package reservation turns carts into held batches and drives each batch
// through payment proof, shipping details, review, and fulfilment while the
// ledger, the catalog, and the public listing stay in agreement.
package reservation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/availability"
	"github.com/storefront-labs/orchestrator/internal/cart"
	"github.com/storefront-labs/orchestrator/internal/clock"
	"github.com/storefront-labs/orchestrator/internal/keylock"
	"github.com/storefront-labs/orchestrator/internal/ledger"
	"github.com/storefront-labs/orchestrator/internal/metrics"
	"github.com/storefront-labs/orchestrator/internal/scheduler"
	"github.com/storefront-labs/orchestrator/internal/store"
	"github.com/storefront-labs/orchestrator/pkg/eventbus"
	"github.com/storefront-labs/orchestrator/pkg/model"
	"github.com/storefront-labs/orchestrator/storefront/internal/dialog"
)

// Results of review operations that may race with each other.
const (
	ResultCommitted        = "committed"
	ResultReleased         = "released"
	ResultAlreadyProcessed = "already_processed"
)

// Catalog is the catalog slice the orchestrator needs.
type Catalog interface {
	Get(ctx context.Context, productID string) (model.Product, error)
	ListUnsold(ctx context.Context) ([]model.Product, error)
	ListBySize(ctx context.Context, size string) ([]model.Product, error)
	Create(ctx context.Context, p model.Product) (model.Product, error)
	UpdateSizes(ctx context.Context, productID string, sizes model.Sizes) (model.Product, error)
	UpdatePrice(ctx context.Context, productID string, price decimal.Decimal) error
	UpdateListingRef(ctx context.Context, productID, ref string) error
	MarkDeleted(ctx context.Context, productID string) error
	CommitSale(ctx context.Context, items []model.Item) error
	RestoreUnits(ctx context.Context, items []model.Item) error
}

// Listings is the listing channel.
type Listings interface {
	Publish(ctx context.Context, l model.Listing) (string, error)
	Update(ctx context.Context, l model.Listing) error
	Remove(ctx context.Context, ref, productID string) error
}

// EventPublisher receives batch lifecycle events.
type EventPublisher interface {
	Publish(event eventbus.Event)
}

type Deps struct {
	Catalog  Catalog
	Ledger   *ledger.Ledger
	Carts    *cart.Store
	Listings Listings
	Sessions store.Sessions
	Tokens   store.Tokens
	Events   EventPublisher
	Clock    clock.Clock
	Window   scheduler.Window
	Carriers dialog.Carriers
	Logger   *zap.Logger

	// Retention is how long a finished batch stays readable before it is
	// dropped from memory. Zero means 24h.
	Retention time.Duration
}

// Orchestrator owns every batch. Lock order is session, then batch, then
// products (through the ledger); o.mu guards the maps only and is never held
// while acquiring another lock.
type Orchestrator struct {
	catalog  Catalog
	ledger   *ledger.Ledger
	calc     *availability.Calculator
	carts    *cart.Store
	listings Listings
	sessions store.Sessions
	tokens   store.Tokens
	events   EventPublisher
	clock    clock.Clock
	window   scheduler.Window
	carriers dialog.Carriers
	timers   *scheduler.Scheduler
	logger   *zap.Logger

	sessionLocks *keylock.Map
	batchLocks   *keylock.Map

	mu        sync.Mutex
	batches   map[string]*model.Batch
	latest    map[string]string // session -> most recent batch
	handles   map[string]scheduler.Handle
	evictions map[string]clock.Timer
	retention time.Duration

	backgroundTimeout time.Duration
}

func New(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Carriers == nil {
		d.Carriers = dialog.DefaultCarriers()
	}
	if d.Events == nil {
		d.Events = eventbus.New()
	}
	if d.Retention <= 0 {
		d.Retention = 24 * time.Hour
	}
	o := &Orchestrator{
		catalog:           d.Catalog,
		ledger:            d.Ledger,
		calc:              availability.NewCalculator(d.Catalog, d.Ledger),
		carts:             d.Carts,
		listings:          d.Listings,
		sessions:          d.Sessions,
		tokens:            d.Tokens,
		events:            d.Events,
		clock:             d.Clock,
		window:            d.Window,
		carriers:          d.Carriers,
		logger:            d.Logger,
		sessionLocks:      keylock.New(),
		batchLocks:        keylock.New(),
		batches:           make(map[string]*model.Batch),
		latest:            make(map[string]string),
		handles:           make(map[string]scheduler.Handle),
		evictions:         make(map[string]clock.Timer),
		retention:         d.Retention,
		backgroundTimeout: 30 * time.Second,
	}
	o.timers = scheduler.NewScheduler(d.Clock, d.Logger.Named("scheduler"), o.onExpiry)
	return o
}

// Stop disarms every pending expiry and eviction. Holds are in memory only, so
// nothing is persisted.
func (o *Orchestrator) Stop() {
	o.timers.Stop()
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, t := range o.evictions {
		t.Stop()
		delete(o.evictions, id)
	}
}

// PendingExpiries reports armed reservation timers.
func (o *Orchestrator) PendingExpiries() int {
	return o.timers.Pending()
}

// Products lists purchasable products with their live availability. A
// non-empty size filters to products that stock it. Each snapshot is read
// under the product lock so a sale being committed is seen either before or
// after, never half applied.
func (o *Orchestrator) Products(ctx context.Context, size string) ([]availability.Snapshot, error) {
	var (
		products []model.Product
		err      error
	)
	if size != "" {
		products, err = o.catalog.ListBySize(ctx, size)
	} else {
		products, err = o.catalog.ListUnsold(ctx)
	}
	if err != nil {
		return nil, err
	}
	out := make([]availability.Snapshot, 0, len(products))
	for _, p := range products {
		snap, err := o.lockedSnapshot(ctx, p.ID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if snap.Product.IsDeleted || snap.Product.IsSold {
			continue
		}
		if size != "" && snap.Available(size) == 0 {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Product returns one product's live availability.
func (o *Orchestrator) Product(ctx context.Context, productID string) (availability.Snapshot, error) {
	snap, err := o.lockedSnapshot(ctx, productID)
	if err != nil {
		return availability.Snapshot{}, err
	}
	if snap.Product.IsDeleted {
		return availability.Snapshot{}, errNotFound("product", productID)
	}
	return snap, nil
}

func (o *Orchestrator) lockedSnapshot(ctx context.Context, productID string) (availability.Snapshot, error) {
	unlock := o.ledger.Lock(productID)
	defer unlock()
	return o.calc.Snapshot(ctx, productID)
}

// Batch returns a copy of one batch.
func (o *Orchestrator) Batch(_ context.Context, batchID string) (model.Batch, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.batches[batchID]
	if !ok {
		return model.Batch{}, errNotFound("batch", batchID)
	}
	return cloneBatch(b), nil
}

// ListPendingBatches returns batches awaiting a reviewer, oldest first.
func (o *Orchestrator) ListPendingBatches(_ context.Context) []model.Batch {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []model.Batch
	for _, b := range o.batches {
		if b.Status == model.StatusSubmittedForReview {
			out = append(out, cloneBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (o *Orchestrator) latestBatch(sessionID string) (*model.Batch, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, ok := o.latest[sessionID]
	if !ok {
		return nil, false
	}
	b, ok := o.batches[id]
	return b, ok
}

func (o *Orchestrator) lookup(batchID string) (*model.Batch, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.batches[batchID]
	return b, ok
}

// transition moves b to the next status. The caller holds the batch lock.
func (o *Orchestrator) transition(b *model.Batch, to model.BatchStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !b.Status.CanTransition(to) {
		return errTransition(b, to)
	}
	o.logger.Info("reservation.transition",
		zap.String("batch_id", b.ID),
		zap.String("from", string(b.Status)),
		zap.String("to", string(to)),
	)
	b.Status = to
	b.UpdatedAt = o.clock.Now()
	metrics.IncTransition(string(to))
	if to.Terminal() {
		id := b.ID
		o.evictions[id] = o.clock.AfterFunc(o.retention, func() { o.evict(id) })
	}
	return nil
}

// evict forgets a finished batch once its retention has passed.
func (o *Orchestrator) evict(batchID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.evictions, batchID)
	b, ok := o.batches[batchID]
	if !ok || !b.Status.Terminal() {
		return
	}
	delete(o.batches, batchID)
	if o.latest[b.SessionID] == batchID {
		delete(o.latest, b.SessionID)
	}
	o.logger.Debug("reservation.batch_evicted",
		zap.String("batch_id", batchID),
		zap.String("status", string(b.Status)),
	)
}

func (o *Orchestrator) emit(eventType string, b *model.Batch, summary string) {
	o.mu.Lock()
	ev := model.NewBatchEvent(eventType, *b, o.clock.Now())
	o.mu.Unlock()
	ev.Summary = summary
	o.events.Publish(ev)
}

func (o *Orchestrator) backgroundContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.backgroundTimeout)
}

func cloneBatch(b *model.Batch) model.Batch {
	out := *b
	out.Items = append([]model.Item(nil), b.Items...)
	if b.Order != nil {
		order := *b.Order
		order.Items = append([]model.Item(nil), b.Order.Items...)
		out.Order = &order
	}
	return out
}

