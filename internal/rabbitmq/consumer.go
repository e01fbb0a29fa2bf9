package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

// Decision is a reviewer verdict delivered over the decisions queue.
type Decision struct {
	BatchID     string `json:"batch_id"`
	Action      string `json:"action"` // confirm | reject | dispatch | picked_up | returned
	ShipmentRef string `json:"shipment_ref,omitempty"`
}

// ReviewService is what the consumer drives.
type ReviewService interface {
	Confirm(ctx context.Context, batchID string) (string, error)
	Reject(ctx context.Context, batchID string) (string, error)
	MarkDispatched(ctx context.Context, batchID, shipmentRef string) error
	MarkPickedUp(ctx context.Context, batchID string) error
	MarkReturned(ctx context.Context, batchID string) error
}

// ConsumeChannel is the slice of *amqp.Channel the consumer uses.
type ConsumeChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Consumer applies reviewer decisions posted by external review tooling.
type Consumer struct {
	channel ConsumeChannel
	queue   string
	review  ReviewService
	logger  *zap.Logger
}

func NewConsumer(channel ConsumeChannel, queue string, review ReviewService, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{channel: channel, queue: queue, review: review, logger: logger}
}

// Run consumes until ctx is done or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	if _, err := c.channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.queue, err)
	}
	c.logger.Info("rabbitmq.consumer.started", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("rabbitmq.consumer.channel_closed", zap.String("queue", c.queue))
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	var d Decision
	if err := json.Unmarshal(msg.Body, &d); err != nil || d.BatchID == "" {
		c.logger.Error("rabbitmq.consumer.bad_message", zap.ByteString("body", msg.Body), zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	err := c.apply(ctx, d)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrMalformedInput),
		errors.Is(err, model.ErrUnitMissing):
		c.logger.Warn("rabbitmq.consumer.decision_dropped",
			zap.String("batch_id", d.BatchID),
			zap.String("action", d.Action),
			zap.Error(err),
		)
		_ = msg.Nack(false, false)
	default:
		c.logger.Error("rabbitmq.consumer.decision_failed",
			zap.String("batch_id", d.BatchID),
			zap.String("action", d.Action),
			zap.Error(err),
		)
		_ = msg.Nack(false, true)
	}
}

func (c *Consumer) apply(ctx context.Context, d Decision) error {
	var (
		result string
		err    error
	)
	switch d.Action {
	case "confirm":
		result, err = c.review.Confirm(ctx, d.BatchID)
	case "reject":
		result, err = c.review.Reject(ctx, d.BatchID)
	case "dispatch":
		err = c.review.MarkDispatched(ctx, d.BatchID, d.ShipmentRef)
	case "picked_up":
		err = c.review.MarkPickedUp(ctx, d.BatchID)
	case "returned":
		err = c.review.MarkReturned(ctx, d.BatchID)
	default:
		return fmt.Errorf("unknown action %q: %w", d.Action, model.ErrMalformedInput)
	}
	if err == nil {
		c.logger.Info("rabbitmq.consumer.decision_applied",
			zap.String("batch_id", d.BatchID),
			zap.String("action", d.Action),
			zap.String("result", result),
		)
	}
	return err
}
