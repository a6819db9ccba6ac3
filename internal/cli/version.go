package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cockpit-alerts/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\nversion: %s\ncommit: %s\nbuilt: %s\n", version.Name, version.Version, version.Commit, version.BuildDate)
	},
}
