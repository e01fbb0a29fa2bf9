package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event envelope for everything leaving the service.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload; marshal errors surface to the caller.
func NewEnvelope(topic, eventType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Topic:         topic,
		EventType:     eventType,
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
		Payload:       data,
	}, nil
}

// Batch lifecycle event types.
const (
	EventBatchHeld       = "batch.held"
	EventBatchExpired    = "batch.expired"
	EventBatchSubmitted  = "batch.submitted"
	EventBatchConfirmed  = "batch.confirmed"
	EventBatchRejected   = "batch.rejected"
	EventBatchDispatched = "batch.dispatched"
	EventBatchPickedUp   = "batch.picked_up"
	EventBatchReturned   = "batch.returned"
)

// BatchEvent is emitted on every batch transition.
type BatchEvent struct {
	Type        string      `json:"type"`
	BatchID     string      `json:"batch_id"`
	SessionID   string      `json:"session_id"`
	Status      BatchStatus `json:"status"`
	Items       []Item      `json:"items"`
	Deadline    time.Time   `json:"deadline,omitempty"`
	ShipmentRef string      `json:"shipment_ref,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	At          time.Time   `json:"at"`
}

// Topic implements eventbus.Event.
func (e BatchEvent) Topic() string { return e.Type }

// NewBatchEvent snapshots b into an event of the given type.
func NewBatchEvent(eventType string, b Batch, at time.Time) BatchEvent {
	items := make([]Item, len(b.Items))
	copy(items, b.Items)
	ev := BatchEvent{
		Type:      eventType,
		BatchID:   b.ID,
		SessionID: b.SessionID,
		Status:    b.Status,
		Items:     items,
		Deadline:  b.Deadline,
		At:        at.UTC(),
	}
	if b.Order != nil {
		ev.ShipmentRef = b.Order.ShipmentRef
	}
	return ev
}
