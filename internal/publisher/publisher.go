package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/metrics"
	"github.com/storefront-labs/orchestrator/internal/rate"
	"github.com/storefront-labs/orchestrator/pkg/model"
)

// JetStream is the slice of nats.JetStreamContext the publisher uses.
type JetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// ListingPayload is what subscribers of the listing channel receive.
type ListingPayload struct {
	model.Listing
	Caption string `json:"caption"`
}

// RemovedPayload is sent when a listing is taken down.
type RemovedPayload struct {
	Ref       string `json:"ref"`
	ProductID string `json:"product_id"`
}

const (
	actionPublish = "publish"
	actionUpdate  = "update"
	actionRemove  = "remove"
)

// ListingPublisher pushes listing changes to the public channel over JetStream.
type ListingPublisher struct {
	js      JetStream
	prefix  string
	service string
	limits  *rate.Manager
	timeout time.Duration
	logger  *zap.Logger
}

type Config struct {
	SubjectPrefix  string
	Service        string
	Timeout        time.Duration
	EditsPerSecond float64
	Burst          int
}

// New creates a ListingPublisher with JetStream enabled on nc.
func New(nc *nats.Conn, cfg Config, logger *zap.Logger) (*ListingPublisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return NewWithJetStream(js, cfg, logger), nil
}

func NewWithJetStream(js JetStream, cfg Config, logger *zap.Logger) *ListingPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "evt.listing"
	}
	return &ListingPublisher{
		js:      js,
		prefix:  cfg.SubjectPrefix,
		service: cfg.Service,
		limits:  rate.NewManager(rate.Config{RequestsPerSecond: cfg.EditsPerSecond, Burst: cfg.Burst}),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Subject returns the subject for an action, e.g. evt.listing.updated.v1.
func (p *ListingPublisher) Subject(action string) string {
	switch action {
	case actionPublish:
		return p.prefix + ".published.v1"
	case actionUpdate:
		return p.prefix + ".updated.v1"
	default:
		return p.prefix + ".removed.v1"
	}
}

// Publish creates a new listing and returns its reference.
func (p *ListingPublisher) Publish(ctx context.Context, l model.Listing) (string, error) {
	l.Ref = uuid.NewString()
	if err := p.send(ctx, actionPublish, l.Ref, ListingPayload{Listing: l, Caption: l.Caption()}); err != nil {
		return "", err
	}
	return l.Ref, nil
}

// Update edits an existing listing in place.
func (p *ListingPublisher) Update(ctx context.Context, l model.Listing) error {
	if l.Ref == "" {
		return fmt.Errorf("update listing for %s without ref: %w", l.ProductID, model.ErrMalformedInput)
	}
	return p.send(ctx, actionUpdate, l.Ref, ListingPayload{Listing: l, Caption: l.Caption()})
}

// Remove takes a listing down.
func (p *ListingPublisher) Remove(ctx context.Context, ref, productID string) error {
	if ref == "" {
		return nil
	}
	err := p.send(ctx, actionRemove, ref, RemovedPayload{Ref: ref, ProductID: productID})
	if err == nil {
		p.limits.Forget(ref)
	}
	return err
}

func (p *ListingPublisher) send(ctx context.Context, action, ref string, payload any) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.limits.Wait(ctx, ref); err != nil {
		metrics.IncListingPublish(action, "throttled")
		return fmt.Errorf("listing %s %s: %w: %v", action, ref, model.ErrPublisherUnavailable, err)
	}

	subject := p.Subject(action)
	env, err := model.NewEnvelope(subject, "listing."+action, payload)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return fmt.Errorf("listing %s %s: %w: %v", action, ref, model.ErrPublisherUnavailable, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return fmt.Errorf("listing %s %s: %w: %v", action, ref, model.ErrPublisherUnavailable, err)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"listing_ref":    []string{ref},
			nats.MsgIdHdr:    []string{env.ID.String()},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.ListingPublishLatency, start, action)

	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("listing_ref", ref),
			zap.Error(err),
		)
		metrics.IncListingPublish(action, "error")
		return fmt.Errorf("listing %s %s: %w: %v", action, ref, model.ErrPublisherUnavailable, err)
	}

	p.logger.Debug("publisher.publish_success",
		zap.String("subject", subject),
		zap.String("listing_ref", ref),
	)
	metrics.IncListingPublish(action, "ok")
	return nil
}
