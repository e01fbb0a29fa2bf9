package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus is the lifecycle state of a reservation batch and the order built from it.
type BatchStatus string

const (
	StatusHeld               BatchStatus = "HELD"
	StatusProofSubmitted     BatchStatus = "PROOF_SUBMITTED"
	StatusDetailsCollected   BatchStatus = "DETAILS_COLLECTED"
	StatusSubmittedForReview BatchStatus = "SUBMITTED_FOR_REVIEW"
	StatusConfirmed          BatchStatus = "CONFIRMED"
	StatusDispatched         BatchStatus = "DISPATCHED"
	StatusPickedUp           BatchStatus = "PICKED_UP"
	StatusReturned           BatchStatus = "RETURNED"
	StatusExpired            BatchStatus = "EXPIRED"
)

var transitions = map[BatchStatus][]BatchStatus{
	StatusHeld:               {StatusProofSubmitted, StatusExpired},
	StatusProofSubmitted:     {StatusDetailsCollected, StatusSubmittedForReview},
	StatusDetailsCollected:   {StatusDetailsCollected, StatusSubmittedForReview},
	StatusSubmittedForReview: {StatusConfirmed, StatusExpired},
	StatusConfirmed:          {StatusDispatched},
	StatusDispatched:         {StatusPickedUp, StatusReturned},
}

// CanTransition reports whether to is a legal successor of s.
func (s BatchStatus) CanTransition(to BatchStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal states never change again.
func (s BatchStatus) Terminal() bool {
	return s == StatusExpired || s == StatusPickedUp || s == StatusReturned
}

// Live states still own ledger holds.
func (s BatchStatus) Live() bool {
	switch s {
	case StatusHeld, StatusProofSubmitted, StatusDetailsCollected, StatusSubmittedForReview:
		return true
	}
	return false
}

// Item is one held unit.
type Item struct {
	ProductID    string          `json:"product_id"`
	Size         string          `json:"size"`
	Price        decimal.Decimal `json:"price"`
	SubAttribute string          `json:"sub_attribute,omitempty"`
}

// ShippingDetails are collected from the buyer after payment proof.
type ShippingDetails struct {
	FullName      string `json:"full_name"`
	Phone         string `json:"phone"`
	City          string `json:"city"`
	Carrier       string `json:"carrier"`
	CarrierDetail string `json:"carrier_detail"`
}

// Order is created once proof and shipping details exist for a batch.
type Order struct {
	ID          string          `json:"id"`
	BatchID     string          `json:"batch_id"`
	BuyerID     string          `json:"buyer_id"`
	Items       []Item          `json:"items"`
	Shipping    ShippingDetails `json:"shipping"`
	ProofRef    string          `json:"proof_ref"`
	ShipmentRef string          `json:"shipment_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Batch is the set of holds created together at checkout.
type Batch struct {
	ID        string      `json:"id"`
	Token     string      `json:"token"`
	SessionID string      `json:"session_id"`
	Items     []Item      `json:"items"`
	Status    BatchStatus `json:"status"`
	Deadline  time.Time   `json:"deadline"`
	ProofRef  string      `json:"proof_ref,omitempty"`
	Order     *Order      `json:"order,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Total sums item prices.
func (b Batch) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range b.Items {
		total = total.Add(it.Price)
	}
	return total
}

// ProductIDs returns each referenced product once, in item order.
func (b Batch) ProductIDs() []string {
	seen := make(map[string]struct{}, len(b.Items))
	var out []string
	for _, it := range b.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		out = append(out, it.ProductID)
	}
	return out
}
