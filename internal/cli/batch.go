package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/natserract/recommend/pkg/recommend"
)

type batchSender func(ctx context.Context, c *recommend.Client, chunk []json.RawMessage) (*recommend.Response, error)

// batchTargets maps the batch command's resource argument to an endpoint.
var batchTargets = map[string]batchSender{
	"contact-email": func(ctx context.Context, c *recommend.Client, chunk []json.RawMessage) (*recommend.Response, error) {
		return c.Contact.Batch.Email(ctx, chunk)
	},
	"contact-customer-id": func(ctx context.Context, c *recommend.Client, chunk []json.RawMessage) (*recommend.Response, error) {
		return c.Contact.Batch.CustomerID(ctx, chunk)
	},
	"order": func(ctx context.Context, c *recommend.Client, chunk []json.RawMessage) (*recommend.Response, error) {
		return c.Order.Batch(ctx, chunk)
	},
	"channel-email": func(ctx context.Context, c *recommend.Client, chunk []json.RawMessage) (*recommend.Response, error) {
		return c.Messaging.ChannelBatch.Email(ctx, chunk)
	},
	"channel-push-token": func(ctx context.Context, c *recommend.Client, chunk []json.RawMessage) (*recommend.Response, error) {
		return c.Messaging.ChannelBatch.PushToken(ctx, chunk)
	},
	"catalog-list": func(ctx context.Context, c *recommend.Client, chunk []json.RawMessage) (*recommend.Response, error) {
		return c.CatalogUpload.SimpleListBatch(ctx, chunk)
	},
	"catalog-product": func(ctx context.Context, c *recommend.Client, chunk []json.RawMessage) (*recommend.Response, error) {
		return c.CatalogUpload.SimpleProductBatch(ctx, chunk)
	},
	"catalog-variation": func(ctx context.Context, c *recommend.Client, chunk []json.RawMessage) (*recommend.Response, error) {
		return c.CatalogUpload.SimpleVariationBatch(ctx, chunk)
	},
}

func batchResources() []string {
	names := make([]string, 0, len(batchTargets))
	for name := range batchTargets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type batchSummary struct {
	Resource   string                 `json:"resource"`
	Items      int                    `json:"items"`
	Chunks     int                    `json:"chunks"`
	Succeeded  int                    `json:"succeeded"`
	Failed     int                    `json:"failed"`
	ItemErrors []recommend.BatchError `json:"item_errors,omitempty"`
	Errors     []string               `json:"errors,omitempty"`
}

func newBatchCmd() *cobra.Command {
	var opts recommend.BatchOptions

	cmd := &cobra.Command{
		Use:   "batch <resource> <file>",
		Short: "Upload a JSON array in concurrent chunks",
		Long: "Read a JSON array from file (- for stdin) and send it in chunks to a batch endpoint.\n\nResources: " +
			strings.Join(batchResources(), ", "),
		Args:      cobra.ExactArgs(2),
		ValidArgs: batchResources(),
		RunE: func(cmd *cobra.Command, args []string) error {
			send, ok := batchTargets[args[0]]
			if !ok {
				return fmt.Errorf("unknown batch resource %q (want one of %s)", args[0], strings.Join(batchResources(), ", "))
			}
			items, err := readItems(cmd, args[1])
			if err != nil {
				return err
			}

			a := fromContext(cmd.Context())
			report, err := recommend.RunBatches(cmd.Context(), items, opts,
				func(ctx context.Context, chunk []json.RawMessage) (*recommend.Response, error) {
					return send(ctx, a.client, chunk)
				})

			a.logger.Info("Batch upload finished",
				zap.String("resource", args[0]),
				zap.Int("items", len(items)),
				zap.Int("chunks", report.Chunks),
				zap.Int("succeeded", report.Succeeded),
				zap.Int("failed", report.Failed))

			summary := batchSummary{
				Resource:   args[0],
				Items:      len(items),
				Chunks:     report.Chunks,
				Succeeded:  report.Succeeded,
				Failed:     report.Failed,
				ItemErrors: report.ItemErrors,
			}
			for _, e := range report.Errors {
				summary.Errors = append(summary.Errors, e.Error())
			}
			if rerr := render(cmd.OutOrStdout(), a.format, summary); rerr != nil {
				return rerr
			}
			if err == nil && report.Failed > 0 {
				err = fmt.Errorf("%d of %d chunks failed", report.Failed, report.Chunks)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", recommend.DefaultBatchChunkSize, "Items per request")
	cmd.Flags().IntVar(&opts.MaxConcurrency, "concurrency", recommend.DefaultBatchConcurrency, "Requests in flight")
	return cmd
}

func readItems(cmd *cobra.Command, path string) ([]json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%s must contain a JSON array: %w", path, err)
	}
	return items, nil
}
