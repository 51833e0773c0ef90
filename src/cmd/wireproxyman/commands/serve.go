package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hoangvu/wireproxyman/src/internal/dashboard"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the status dashboard",
		Long: `Serve runs a local web dashboard with profile status, live events over
WebSocket, and Prometheus metrics. It binds to 127.0.0.1 only and runs
until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			if port == 0 {
				port = app.Settings.DashboardPort
			}

			srv := dashboard.NewServer(app.Store, app.Bus,
				func() int { return app.Settings.PortLimit })
			boundPort, err := srv.Start(port)
			if err != nil {
				return err
			}

			slog.Info("dashboard listening", slog.Int("port", boundPort))
			fmt.Printf("Dashboard on http://127.0.0.1:%d (Ctrl+C to stop)\n", boundPort)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Dashboard port (default: from settings, 0 picks a free port)")

	return cmd
}
