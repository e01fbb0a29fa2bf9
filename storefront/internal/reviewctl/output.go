package reviewctl

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storefront-labs/orchestrator/pkg/model"
	"github.com/storefront-labs/orchestrator/storefront/internal/api"
	"github.com/storefront-labs/orchestrator/storefront/internal/dialog"
	"github.com/storefront-labs/orchestrator/storefront/internal/reservation"
)

// APIError is a non-2xx reply from the storefront.
type APIError struct {
	Status int
	api.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("storefront returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.ErrorResponse.Error)
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	_ = json.Unmarshal(body, &apiErr.ErrorResponse)
	return apiErr
}

// OutputFormatter handles JSON vs text output for reviewctl commands.
type OutputFormatter struct {
	Format   string
	Writer   io.Writer
	Carriers dialog.Carriers
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Carriers: dialog.DefaultCarriers()}
}

func (f *OutputFormatter) json(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *OutputFormatter) Batches(batches []model.Batch) error {
	if f.Format == "json" {
		return f.json(batches)
	}
	if len(batches) == 0 {
		_, err := fmt.Fprintln(f.Writer, "no batches waiting for review")
		return err
	}
	for _, b := range batches {
		buyer := ""
		if b.Order != nil {
			buyer = b.Order.Shipping.FullName
		}
		if _, err := fmt.Fprintf(f.Writer, "%s  %s  %d item(s)  %s UAH  %s\n",
			b.ID, b.CreatedAt.Format("2006-01-02 15:04"), len(b.Items), b.Total().StringFixed(0), buyer); err != nil {
			return err
		}
	}
	return nil
}

// Batch prints the same card the review queue receives.
func (f *OutputFormatter) Batch(b model.Batch) error {
	if f.Format == "json" {
		return f.json(b)
	}
	card := reservation.RenderSummary(b, f.Carriers)
	if b.Order != nil && b.Order.ShipmentRef != "" {
		card += "Shipment: " + b.Order.ShipmentRef + "\n"
	}
	_, err := io.WriteString(f.Writer, card)
	return err
}

func (f *OutputFormatter) Result(action string, res api.ReviewResult) error {
	if f.Format == "json" {
		return f.json(res)
	}
	_, err := fmt.Fprintf(f.Writer, "%s %s: %s\n", action, res.BatchID, strings.ReplaceAll(res.Result, "_", " "))
	return err
}
