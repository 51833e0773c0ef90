package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRemoveCommand creates the remove command.
func NewRemoveCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "remove <profile>",
		Aliases: []string{"rm", "delete"},
		Short:   "Delete a profile and its files",
		Long: `Remove stops the profile if it is running, then deletes its config file,
generated launch config, and registry entry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			name := args[0]
			if !yes && !promptYesNo(fmt.Sprintf("Delete profile %q and its config file?", name)) {
				fmt.Println("aborted")
				return nil
			}

			if err := app.Remove(name); err != nil {
				return err
			}
			fmt.Printf("✓ removed %s\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
