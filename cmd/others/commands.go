package others

import "github.com/spf13/cobra"

// Actions defines auxiliary operations: the preshutdown tripwire and
// diagnostics.
type Actions interface {
	Stop(cmd *cobra.Command, args []string) error
	Status(cmd *cobra.Command, args []string) error
}

// Commands builds the "stop" and "status" commands.
func Commands(h Actions) []*cobra.Command {
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Set the STOP signal of a running guard (preshutdown tripwire)",
		Args:  cobra.NoArgs,
		RunE:  h.Stop,
	}
	stopCmd.Flags().Bool("wait", false, "wait for the guard to exit before returning")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show lock resource, presence flag and reactor status",
		Args:  cobra.NoArgs,
		RunE:  h.Status,
	}

	return []*cobra.Command{stopCmd, statusCmd}
}
