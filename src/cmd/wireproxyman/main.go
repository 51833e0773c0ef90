package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hoangvu/wireproxyman/src/cmd/wireproxyman/commands"
)

var (
	debugMode      bool
	structuredLogs bool
	dataDir        string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wireproxyman",
		Short: "wireproxyman - manage WireGuard-over-proxy profiles",
		Long: `wireproxyman imports WireGuard configurations as profiles and runs a
wireproxy process per profile, each serving a local SOCKS5 or HTTP proxy on
its own port. It allocates ports, enforces the connection limit, and
supervises the external processes.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debugMode {
				// slog.SetLogLoggerLevel requires Go 1.22; equivalent for 1.21.
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}
			if structuredLogs {
				level := slog.LevelInfo
				if debugMode {
					level = slog.LevelDebug
				}
				slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
					Level: level,
				})))
			}
			commands.SetDataDir(dataDir)
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&structuredLogs, "structured-logs", false, "Enable structured JSON logging to stderr")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".", "Directory holding profiles, logs and state")

	rootCmd.AddCommand(
		commands.NewConnectCommand(),
		commands.NewDisconnectCommand(),
		commands.NewAutoConnectCommand(),
		commands.NewListCommand(),
		commands.NewImportCommand(),
		commands.NewRemoveCommand(),
		commands.NewRenameCommand(),
		commands.NewEditCommand(),
		commands.NewConfigCommand(),
		commands.NewServeCommand(),
		commands.NewVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
