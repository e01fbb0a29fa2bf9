package api

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/storefront-labs/orchestrator/internal/availability"
	"github.com/storefront-labs/orchestrator/pkg/model"
	"github.com/storefront-labs/orchestrator/storefront/internal/dialog"
	"github.com/storefront-labs/orchestrator/storefront/internal/reservation"
)

// CartAddRequest picks one unit into the cart.
type CartAddRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
}

func (r CartAddRequest) Validate() error {
	if strings.TrimSpace(r.ProductID) == "" {
		return errors.New("product_id is required")
	}
	if strings.TrimSpace(r.Size) == "" {
		return errors.New("size is required")
	}
	return nil
}

type ProofRequest struct {
	ProofRef string `json:"proof_ref"`
}

// DetailRequest answers the dialog step named by Field.
type DetailRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (r DetailRequest) Validate() error {
	if r.Field == "" {
		return errors.New("field is required")
	}
	return nil
}

type DispatchRequest struct {
	ShipmentRef string `json:"shipment_ref"`
}

// ProductRequest adds a product to the catalog. Sizes lists one label per unit.
type ProductRequest struct {
	ID            string            `json:"id,omitempty"`
	MediaRef      string            `json:"media_ref"`
	Price         decimal.Decimal   `json:"price"`
	Sizes         []string          `json:"sizes"`
	SubAttributes map[string]string `json:"sub_attributes,omitempty"`
}

func (r ProductRequest) Validate() error {
	if !r.Price.IsPositive() {
		return errors.New("price must be positive")
	}
	if len(r.Sizes) == 0 {
		return errors.New("sizes is required")
	}
	for _, s := range r.Sizes {
		if strings.TrimSpace(s) == "" {
			return errors.New("size labels must not be blank")
		}
	}
	return nil
}

func (r ProductRequest) product() model.Product {
	return model.Product{
		ID:            strings.TrimSpace(r.ID),
		MediaRef:      r.MediaRef,
		Price:         r.Price,
		Sizes:         model.Sizes(r.Sizes),
		SubAttributes: r.SubAttributes,
	}
}

// ProductEditRequest changes stock or price. Omitted fields are kept; an
// empty sizes list sells the product out.
type ProductEditRequest struct {
	Sizes []string         `json:"sizes"`
	Price *decimal.Decimal `json:"price"`
}

func (r ProductEditRequest) Validate() error {
	if r.Sizes == nil && r.Price == nil {
		return errors.New("sizes or price is required")
	}
	if r.Price != nil && !r.Price.IsPositive() {
		return errors.New("price must be positive")
	}
	return nil
}

func (r ProductEditRequest) edit() reservation.ProductEdit {
	e := reservation.ProductEdit{Price: r.Price}
	if r.Sizes != nil {
		e.Sizes = model.Sizes(r.Sizes)
	}
	return e
}

// ProductView is a product as buyers see it: only units nobody holds.
type ProductView struct {
	ID            string            `json:"id"`
	MediaRef      string            `json:"media_ref"`
	Price         decimal.Decimal   `json:"price"`
	Sizes         model.Sizes       `json:"sizes"`
	Available     map[string]int    `json:"available"`
	SubAttributes map[string]string `json:"sub_attributes,omitempty"`
	SoldOut       bool              `json:"sold_out"`
}

func toProductView(s availability.Snapshot) ProductView {
	remaining := s.Remaining
	if remaining == nil {
		remaining = model.Sizes{}
	}
	return ProductView{
		ID:            s.Product.ID,
		MediaRef:      s.Product.MediaRef,
		Price:         s.Product.Price,
		Sizes:         remaining,
		Available:     s.Counts,
		SubAttributes: s.Product.SubAttributes,
		SoldOut:       len(remaining) == 0,
	}
}

// ReviewResult reports what a review action did.
type ReviewResult struct {
	BatchID string `json:"batch_id"`
	Result  string `json:"result"`
}

func parseField(s string) dialog.Field {
	return dialog.Field(strings.ToLower(strings.TrimSpace(s)))
}
