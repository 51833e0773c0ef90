package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hoangvu/wireproxyman/src/internal/config"
)

// NewConfigCommand creates the config command with its show/set subcommands.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}
	cmd.AddCommand(newConfigShowCommand(), newConfigSetCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			s := app.Settings
			fmt.Printf("port-limit:      %d\n", s.PortLimit)
			fmt.Printf("proxy-type:      %s\n", s.ProxyType)
			fmt.Printf("wireproxy-path:  %s\n", displayPath(s.WireproxyPath))
			fmt.Printf("logging:         %t\n", s.LoggingEnabled)
			fmt.Printf("dashboard-port:  %d\n", s.DashboardPort)
			return nil
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting",
		Long: `Set writes one setting and persists it. Keys: port-limit, proxy-type,
wireproxy-path, logging, dashboard-port. A port-limit of 0 means
unlimited. Changing proxy-type affects only future connects.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			key, value := args[0], args[1]
			switch key {
			case "port-limit":
				n, err := strconv.Atoi(value)
				if err != nil || n < 0 {
					return fmt.Errorf("port-limit must be a non-negative integer, got %q", value)
				}
				app.Settings.PortLimit = n
			case "proxy-type":
				pt, err := config.ParseProxyType(value)
				if err != nil {
					return err
				}
				app.Settings.ProxyType = pt
			case "wireproxy-path":
				app.Settings.WireproxyPath = value
			case "logging":
				b, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("logging must be true or false, got %q", value)
				}
				app.Settings.LoggingEnabled = b
			case "dashboard-port":
				n, err := strconv.Atoi(value)
				if err != nil || n < 0 || n > 65535 {
					return fmt.Errorf("dashboard-port must be a port number, got %q", value)
				}
				app.Settings.DashboardPort = n
			default:
				return fmt.Errorf("unknown setting %q", key)
			}

			if err := app.Settings.Save(app.SettingsPath); err != nil {
				return err
			}
			fmt.Printf("✓ %s = %s\n", key, value)
			return nil
		},
	}
}

func displayPath(p string) string {
	if p == "" {
		return "(from PATH)"
	}
	return p
}
