package reviewctl

import (
	"context"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/storefront-labs/orchestrator/pkg/model"
	"github.com/storefront-labs/orchestrator/storefront/internal/api"
)

const batchesPath = "/api/v1/review/batches"

func batchPath(id string, action ...string) string {
	p := batchesPath + "/" + url.PathEscape(id)
	for _, a := range action {
		p += "/" + a
	}
	return p
}

func newPendingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List batches waiting for review, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var batches []model.Batch
			if err := opts.executor().DoJSON(cmd.Context(), http.MethodGet, batchesPath, nil, &batches); err != nil {
				return err
			}
			return formatter(opts, cmd).Batches(batches)
		},
	}
}

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch>",
		Short: "Show the order card of one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var b model.Batch
			if err := opts.executor().DoJSON(cmd.Context(), http.MethodGet, batchPath(args[0]), nil, &b); err != nil {
				return err
			}
			return formatter(opts, cmd).Batch(b)
		},
	}
}

// newDecisionCommand builds confirm and reject. Both are safe to repeat.
func newDecisionCommand(opts *RootOptions, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <batch>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res api.ReviewResult
			if err := opts.executor().DoJSON(cmd.Context(), http.MethodPost, batchPath(args[0], action), nil, &res); err != nil {
				return err
			}
			return formatter(opts, cmd).Result(action, res)
		},
	}
}

func newDispatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch <batch> <shipmentRef>",
		Short: "Record the carrier shipment reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fulfil(cmd.Context(), opts, cmd, args[0], "dispatch", api.DispatchRequest{ShipmentRef: args[1]})
		},
	}
}

func newFulfilCommand(opts *RootOptions, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <batch>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fulfil(cmd.Context(), opts, cmd, args[0], action, nil)
		},
	}
}

func fulfil(ctx context.Context, opts *RootOptions, cmd *cobra.Command, batchID, action string, body any) error {
	var b model.Batch
	if err := opts.executor().DoJSON(ctx, http.MethodPost, batchPath(batchID, action), body, &b); err != nil {
		return err
	}
	return formatter(opts, cmd).Batch(b)
}
