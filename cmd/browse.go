package cmd

import (
	"github.com/spf13/cobra"

	"github.com/manav03panchal/cmdstack/internal/tui"
)

// browseCmd opens the interactive history browser.
var browseCmd = &cobra.Command{
	Use:     "browse",
	Aliases: []string{"ui", "tui"},
	Short:   "Browse the history interactively",
	Long: `Open a full-screen history browser.

Keys:
  up/down   select an entry
  enter     undo or redo until the cursor is at the selection
  0         undo everything
  u / r     undo / redo one entry
  q         quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		changed, err := tui.Run(cmd.Context(), tui.BrowserConfig{Manager: ws.Manager})
		if err != nil {
			return err
		}
		if changed {
			return save(cmd)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}
