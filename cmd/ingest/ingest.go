package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/reviewdash/internal/app"
	"github.com/tphakala/reviewdash/internal/conf"
)

// Command creates the delivery ingestion command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		partition string
		list      bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest delivery manifests from the object store",
		Long: `Read delivery manifests from every partition, or from a single one, and
record the delivered work items.

Examples:
  reviewdash ingest
  reviewdash ingest --partition 2025-10-03
  reviewdash ingest --list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				engine, err := a.Ingester(ctx)
				if err != nil {
					return err
				}

				if list {
					partitions, err := engine.ListPartitions(ctx)
					if err != nil {
						return err
					}
					for _, p := range partitions {
						fmt.Fprintln(cmd.OutOrStdout(), p)
					}
					return nil
				}

				result, err := engine.Ingest(ctx, partition)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
				if len(result.Errors) > 0 {
					return fmt.Errorf("ingestion finished with %d error(s)", len(result.Errors))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&partition, "partition", "", "Only ingest this partition (folder)")
	cmd.Flags().BoolVar(&list, "list", false, "List partitions and exit")

	return cmd
}
