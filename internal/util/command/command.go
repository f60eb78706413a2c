package command

import (
	"github.com/spf13/cobra"
)

// NewSubcommandGroup returns a bare cobra command that only groups
// subcommands and prints its own help when invoked directly.
func NewSubcommandGroup(name string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use: name,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	cmd.AddCommand(subcommands...)
	return cmd
}
