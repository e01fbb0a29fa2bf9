package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Listing is the public representation of a product pushed to the listing channel.
type Listing struct {
	Ref       string          `json:"ref"`
	ProductID string          `json:"product_id"`
	MediaRef  string          `json:"media_ref"`
	Price     decimal.Decimal `json:"price"`
	Sizes     Sizes           `json:"sizes"`
	SoldOut   bool            `json:"sold_out"`
}

// NewListing builds the listing view of p showing only the remaining units.
func NewListing(p Product, remaining Sizes) Listing {
	return Listing{
		Ref:       p.ListingRef,
		ProductID: p.ID,
		MediaRef:  p.MediaRef,
		Price:     p.Price,
		Sizes:     remaining.Sorted(),
		SoldOut:   len(remaining) == 0,
	}
}

// Caption renders the post text shown under the product media.
func (l Listing) Caption() string {
	var b strings.Builder
	b.WriteString("Genuine leather\n")
	if l.SoldOut {
		b.WriteString("SOLD OUT\n")
	} else {
		fmt.Fprintf(&b, "%s size\n", l.Sizes.String())
	}
	fmt.Fprintf(&b, "%s UAH in stock", l.Price.StringFixed(0))
	return b.String()
}
