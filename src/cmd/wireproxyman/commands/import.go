package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hoangvu/wireproxyman/src/internal/events"
)

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "import [file.conf...]",
		Short: "Import WireGuard configs as profiles",
		Long: `Import copies WireGuard configuration files into the profile directory
and registers them as profiles. With no arguments the config text is
read from stdin; use --name to name it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				text, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				if name == "" {
					name = "imported"
				}
				p, err := app.Store.ImportText(name, string(text))
				if err != nil {
					return err
				}
				if err := app.SaveState(); err != nil {
					return err
				}
				app.Bus.Publish(events.Event{Type: events.ProfileAdded, Profile: p.Name})
				fmt.Printf("✓ imported %s\n", p.Name)
				return nil
			}

			imported := 0
			for _, path := range args {
				p, err := app.Store.ImportFile(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "✗ %s: %v\n", path, err)
					continue
				}
				app.Bus.Publish(events.Event{Type: events.ProfileAdded, Profile: p.Name})
				fmt.Printf("✓ imported %s\n", p.Name)
				imported++
			}
			if err := app.SaveState(); err != nil {
				return err
			}
			if imported == 0 && len(args) > 0 {
				return fmt.Errorf("no profiles imported")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Profile name when importing from stdin")

	return cmd
}
