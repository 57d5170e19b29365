package guard

import "github.com/spf13/cobra"

// Actions defines the guard command surface.
type Actions interface {
	Run(cmd *cobra.Command, args []string) error
}

// Commands builds the "guard" command.
func Commands(h Actions) []*cobra.Command {
	guardCmd := &cobra.Command{
		Use:   "guard",
		Short: "Run the shutdown guard (bounded STOP handler)",
		Args:  cobra.NoArgs,
		RunE:  h.Run,
	}

	return []*cobra.Command{guardCmd}
}
