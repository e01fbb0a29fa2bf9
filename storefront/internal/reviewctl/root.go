// Package reviewctl is the command line a human reviewer uses to work the
// review queue over the storefront's review HTTP surface.
package reviewctl

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/storefront-labs/orchestrator/internal/httpclient"
	"github.com/storefront-labs/orchestrator/internal/rate"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Addr    string
	Format  string // "json" | "text"
	Timeout time.Duration
	Retries int
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the reviewctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "reviewctl",
		Short: "Work the storefront review queue",
		Long: `reviewctl lists orders waiting for review, shows an order card,
and confirms, rejects or tracks fulfilment of a batch.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "http://localhost:9020", "storefront base URL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 15*time.Second, "per-request timeout")
	cmd.PersistentFlags().IntVar(&opts.Retries, "retries", 2, "retries on 5xx and transport errors")

	cmd.AddCommand(newPendingCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newDecisionCommand(opts, "confirm", "Confirm payment and commit the sale"))
	cmd.AddCommand(newDecisionCommand(opts, "reject", "Reject the payment proof and release the holds"))
	cmd.AddCommand(newDispatchCommand(opts))
	cmd.AddCommand(newFulfilCommand(opts, "picked-up", "Record that the buyer collected the parcel"))
	cmd.AddCommand(newFulfilCommand(opts, "returned", "Record a returned parcel and restock its units"))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) executor() *httpclient.Executor {
	client := &http.Client{Timeout: o.Timeout}
	limiter := rate.NewManager(rate.Config{RequestsPerSecond: 5, Burst: 5})
	return httpclient.New(nil, limiter, client, o.Addr, o.Retries, "reviewctl", decodeAPIError)
}
