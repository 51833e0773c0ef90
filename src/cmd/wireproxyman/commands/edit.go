package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewEditCommand creates the edit command.
func NewEditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <profile>",
		Short: "Replace a profile's config from stdin",
		Long: `Edit overwrites a profile's WireGuard configuration with text read from
stdin. Editing a running profile takes effect on its next connect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			text, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}

			name := args[0]
			if err := app.Store.UpdateConfig(name, string(text)); err != nil {
				return err
			}
			fmt.Printf("✓ updated %s\n", name)
			return nil
		},
	}
}
