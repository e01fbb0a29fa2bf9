package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/metrics"
	"github.com/storefront-labs/orchestrator/pkg/eventbus"
	"github.com/storefront-labs/orchestrator/pkg/model"
)

// Channel is the slice of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Close() error
}

// Queues names the destinations for batch events.
type Queues struct {
	Review string
	Notify string
}

// Publisher forwards batch events from the event bus: submissions go to the
// reviewer queue, everything else to buyer notifications.
type Publisher struct {
	conn     *amqp.Connection
	channel  Channel
	queues   Queues
	eventBus *eventbus.EventBus
	timeout  time.Duration
	logger   *zap.Logger
}

// Dial opens a connection and channel.
func Dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return conn, channel, nil
}

// NewPublisher declares the queues and subscribes to batch events.
func NewPublisher(conn *amqp.Connection, channel Channel, queues Queues, bus *eventbus.EventBus, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, q := range []string{queues.Review, queues.Notify} {
		if _, err := channel.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("failed to declare queue %s: %w", q, err)
		}
	}

	p := &Publisher{
		conn:     conn,
		channel:  channel,
		queues:   queues,
		eventBus: bus,
		timeout:  5 * time.Second,
		logger:   logger,
	}
	bus.Subscribe("batch.*", p.handle)
	return p, nil
}

func (p *Publisher) handle(event eventbus.Event) {
	ev, ok := event.(model.BatchEvent)
	if !ok {
		p.logger.Warn("rabbitmq.unexpected_event", zap.String("topic", event.Topic()))
		return
	}
	if ev.BatchID == "" {
		p.logger.Error("rabbitmq.event_without_batch", zap.String("topic", ev.Type))
		return
	}

	queue, priority := p.queues.Notify, uint8(0)
	if ev.Type == model.EventBatchSubmitted {
		queue, priority = p.queues.Review, 5
	}

	env, err := model.NewEnvelope(queue, ev.Type, ev)
	if err != nil {
		p.logger.Error("rabbitmq.marshal_failed", zap.String("batch_id", ev.BatchID), zap.Error(err))
		metrics.IncError("rabbitmq", "marshal_failed")
		return
	}
	body, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("rabbitmq.marshal_failed", zap.String("batch_id", ev.BatchID), zap.Error(err))
		metrics.IncError("rabbitmq", "marshal_failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	err = p.channel.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			MessageId:     env.ID.String(),
			CorrelationId: ev.BatchID,
			Type:          ev.Type,
			Timestamp:     ev.At,
			DeliveryMode:  amqp.Persistent,
			Priority:      priority,
			Body:          body,
		},
	)
	if err != nil {
		p.logger.Error("rabbitmq.publish_failed",
			zap.String("queue", queue),
			zap.String("batch_id", ev.BatchID),
			zap.Error(err),
		)
		metrics.IncError("rabbitmq", "publish_failed")
		return
	}
	p.logger.Debug("rabbitmq.published",
		zap.String("queue", queue),
		zap.String("event_type", ev.Type),
		zap.String("batch_id", ev.BatchID),
	)
}

// Close closes the publisher
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
