package dimensions

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tphakala/reviewdash/internal/app"
	"github.com/tphakala/reviewdash/internal/conf"
)

// Command creates the quality dimension allow-list commands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dimensions",
		Short: "Inspect the quality dimension allow-list",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the allowed quality dimensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				stats, err := a.Stats(ctx)
				if err != nil {
					return err
				}
				for _, name := range slices.Sorted(maps.Keys(stats.AllowList().Names(ctx))) {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Reload the allow-list from the warehouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				stats, err := a.Stats(ctx)
				if err != nil {
					return err
				}
				n, err := stats.AllowList().Refresh(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d quality dimensions allowed\n", n)
				return nil
			})
		},
	})

	return cmd
}
