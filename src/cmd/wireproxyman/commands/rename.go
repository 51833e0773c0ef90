package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hoangvu/wireproxyman/src/internal/events"
)

// NewRenameCommand creates the rename command.
func NewRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a profile",
		Long: `Rename changes a profile's name and moves its config file to match.
Renaming a running profile does not interrupt its process.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			oldName, newName := args[0], args[1]
			if err := app.Store.Rename(oldName, newName); err != nil {
				return err
			}
			if err := app.SaveState(); err != nil {
				return err
			}
			app.Bus.Publish(events.Event{Type: events.ProfileRenamed, Profile: oldName, NewName: newName})
			fmt.Printf("✓ renamed %s to %s\n", oldName, newName)
			return nil
		},
	}
}
