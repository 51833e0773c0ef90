package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/hoangvu/wireproxyman/src/internal/autoconnect"
)

// NewAutoConnectCommand creates the auto-connect command.
func NewAutoConnectCommand() *cobra.Command {
	var startPort int

	cmd := &cobra.Command{
		Use:   "auto-connect [profile...]",
		Short: "Connect multiple profiles concurrently",
		Long: `Auto-connect starts every named profile (or all stopped profiles when
none are named) using a bounded worker pool, stopping once the port
limit is saturated. With --start-port ports are assigned sequentially
from the given port instead of by last-used preference.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			progress := app.Bus.Subscribe(64)
			defer app.Bus.Unsubscribe(progress)
			go func() {
				for e := range progress {
					switch {
					case e.Error != "":
						fmt.Printf("✗ %s: %s\n", e.Profile, e.Error)
					case e.Port > 0:
						fmt.Printf("✓ %s connected on 127.0.0.1:%d\n", e.Profile, e.Port)
					}
				}
			}()

			res, err := app.Auto.Run(ctx, autoconnect.Options{
				Names:     args,
				StartPort: startPort,
			})
			if err != nil {
				return err
			}

			slog.Info("auto-connect finished",
				slog.Int("attempted", res.Attempted), slog.Int("started", res.Started))
			fmt.Printf("auto-connect: %d of %d profiles started\n", res.Started, res.Attempted)
			return nil
		},
	}

	cmd.Flags().IntVar(&startPort, "start-port", 0, "Assign ports sequentially starting here")

	return cmd
}
