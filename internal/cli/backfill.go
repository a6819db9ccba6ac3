package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cockpit-alerts/internal/app"
)

var (
	backfillCSV    string
	backfillFrom   string
	backfillTo     string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Load a daily KPI CSV export into the daily_metrics table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillCSV == "" {
			return fmt.Errorf("--csv must be provided")
		}

		opts := app.BackfillOptions{Path: backfillCSV, DryRun: backfillDryRun}
		var err error
		if backfillFrom != "" {
			if opts.From, err = parseDay(backfillFrom); err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
		}
		if backfillTo != "" {
			if opts.To, err = parseDay(backfillTo); err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
		}
		if !opts.From.IsZero() && !opts.To.IsZero() && !opts.From.Before(opts.To) {
			return fmt.Errorf("--from must be before --to")
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillCSV, "csv", "", "CSV file with a date column followed by metric columns")
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start date (YYYY-MM-DD or RFC3339, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End date (YYYY-MM-DD or RFC3339, exclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Parse and count without writing to storage")
}
