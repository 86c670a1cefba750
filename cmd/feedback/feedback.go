package feedback

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/reviewdash/internal/app"
	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/feedback"
)

// Command creates the command applying a client feedback file.
func Command(settings *conf.Settings) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "feedback <file.csv|file.xlsx>",
		Short: "Apply a client feedback export (CSV or xlsx) to delivered work items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := feedback.ParseFile(f, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if dryRun {
				return enc.Encode(map[string]int{"rows": len(rows)})
			}

			return app.Run(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				result, err := a.Feedback().Apply(ctx, rows)
				if err != nil {
					return err
				}
				return enc.Encode(result)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse the file and report the row count without writing")

	return cmd
}
