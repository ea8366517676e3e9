package cli

// Consolidated export of the command tree, mirroring the one-file-per-
// concern layout with a single registration point.

import "github.com/spf13/cobra"

// RegisterRoutes attaches every sub-command tree to the root command.
func RegisterRoutes(root *cobra.Command) {
	root.AddCommand(accountCmd())
	root.AddCommand(manifestCmd())
	root.AddCommand(packageCmd())
	root.AddCommand(stateCmd())
	root.AddCommand(epochCmd())
}
