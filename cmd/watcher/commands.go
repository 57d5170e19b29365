package watcher

import "github.com/spf13/cobra"

// Actions defines the watcher command surface.
type Actions interface {
	Run(cmd *cobra.Command, args []string) error
}

// Commands builds the "watcher" command.
func Commands(h Actions) []*cobra.Command {
	watcherCmd := &cobra.Command{
		Use:   "watcher",
		Short: "Run the VM state watcher (debounced presence reactor)",
		Args:  cobra.NoArgs,
		RunE:  h.Run,
	}
	watcherCmd.Flags().Bool("debug-attach", false, "pause at startup until Enter, before background activity begins")
	watcherCmd.Flags().Bool("verbose-fs", false, "log every raw filesystem event (debugging only, never in production)")

	return []*cobra.Command{watcherCmd}
}
