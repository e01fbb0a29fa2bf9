package reservation

import (
	"fmt"
	"strings"

	"github.com/storefront-labs/orchestrator/pkg/model"
	"github.com/storefront-labs/orchestrator/storefront/internal/dialog"
)

// RenderSummary is the card a reviewer reads before confirming.
func RenderSummary(b model.Batch, carriers dialog.Carriers) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "New order for review\n")
	fmt.Fprintf(&sb, "Batch: %s\n", b.ID)
	fmt.Fprintf(&sb, "Token: %s\n", b.Token)
	fmt.Fprintf(&sb, "Status: %s\n", b.Status)
	sb.WriteString("\nItems:\n")
	for i, it := range b.Items {
		fmt.Fprintf(&sb, "  %d. %s size %s", i+1, it.ProductID, it.Size)
		if it.SubAttribute != "" {
			fmt.Fprintf(&sb, " (%s)", it.SubAttribute)
		}
		fmt.Fprintf(&sb, " - %s UAH\n", it.Price.StringFixed(0))
	}
	fmt.Fprintf(&sb, "Total: %s UAH\n", b.Total().StringFixed(0))

	if b.Order != nil {
		s := b.Order.Shipping
		carrier := s.Carrier
		label := "detail"
		if c, ok := carriers.Lookup(s.Carrier); ok {
			carrier = c.Name
			if c.DetailLabel != "" {
				label = c.DetailLabel
			}
		}
		sb.WriteString("\nBuyer:\n")
		fmt.Fprintf(&sb, "  Name: %s\n", s.FullName)
		fmt.Fprintf(&sb, "  Phone: %s\n", s.Phone)
		fmt.Fprintf(&sb, "  City: %s\n", s.City)
		fmt.Fprintf(&sb, "  Delivery: %s, %s %s\n", carrier, label, s.CarrierDetail)
	}
	fmt.Fprintf(&sb, "\nPayment proof: %s\n", b.ProofRef)
	return sb.String()
}
