package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewDisconnectCommand creates the disconnect command.
func NewDisconnectCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "disconnect [profile]",
		Short: "Stop a profile's proxy process",
		Long: `Disconnect stops the wireproxy process for a profile and frees its
port. With --all every running profile is stopped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			if all {
				stopped := 0
				for _, p := range app.Store.Snapshot() {
					if !p.Running {
						continue
					}
					if err := app.Disconnect(p.Name); err != nil {
						slog.Error("failed to disconnect profile",
							slog.String("profile", p.Name), slog.Any("error", err))
						continue
					}
					stopped++
				}
				fmt.Printf("✓ stopped %d profile(s)\n", stopped)
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("provide a profile name or --all")
			}

			name := args[0]
			if err := app.Disconnect(name); err != nil {
				return err
			}
			fmt.Printf("✓ %s disconnected\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Disconnect every running profile")

	return cmd
}
