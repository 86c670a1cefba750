package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tphakala/reviewdash/internal/app"
	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/datasync"
)

// Command creates the command that copies warehouse tables into the store.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		kind  string
		table string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync warehouse tables into the relational store",
		Long: `Copy every derived table from the warehouse into the relational store,
then propagate delivered status to the review tables.

Examples:
  reviewdash sync
  reviewdash sync --table task --kind manual`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := datasync.ParseKind(kind)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				syncer, err := a.Syncer(ctx)
				if err != nil {
					return err
				}

				tables := map[string]bool{}
				if table != "" {
					ok, err := syncer.SyncTable(ctx, table, k)
					if err != nil {
						return err
					}
					tables[table] = ok
				} else {
					tables = syncer.SyncAll(ctx, k)
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(tables); err != nil {
					return err
				}

				var failed []string
				for _, name := range slices.Sorted(maps.Keys(tables)) {
					if !tables[name] {
						failed = append(failed, name)
					}
				}
				if len(failed) > 0 {
					return fmt.Errorf("%d table(s) failed to sync: %v", len(failed), failed)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(datasync.KindManual), "Sync kind recorded in the sync log (initial, scheduled, manual)")
	cmd.Flags().StringVar(&table, "table", "", "Sync a single table instead of all of them")

	return cmd
}
