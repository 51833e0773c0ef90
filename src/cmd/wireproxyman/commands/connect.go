package commands

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewConnectCommand creates the connect command.
func NewConnectCommand() *cobra.Command {
	var (
		port int
		yes  bool
	)

	cmd := &cobra.Command{
		Use:   "connect <profile>",
		Short: "Start a profile's proxy process",
		Long: `Connect starts the wireproxy process for a profile, binding its proxy
to a local port. Without --port a free port is chosen automatically,
preferring the port the profile used last time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			name := args[0]
			confirm := func(holder string) bool {
				if yes {
					return true
				}
				return promptYesNo(fmt.Sprintf("Port %d is used by %q. Stop it and take over?", port, holder))
			}

			boundPort, err := app.Connect(name, port, confirm)
			if err != nil {
				return err
			}

			slog.Info("profile connected", slog.String("profile", name), slog.Int("port", boundPort))
			fmt.Printf("✓ %s connected on 127.0.0.1:%d (%s)\n", name, boundPort, app.Settings.ProxyType)
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Explicit proxy port (default: auto-assign)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Answer yes to override prompts")

	return cmd
}

// promptYesNo asks on stdin and treats anything but y/yes as no.
func promptYesNo(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
