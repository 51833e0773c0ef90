package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hoangvu/wireproxyman/src/internal/geoip"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var geo bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List profiles and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			profiles := app.Store.Snapshot()
			if len(profiles) == 0 {
				fmt.Println("No profiles. Import one with: wireproxyman import <file.conf>")
				return nil
			}

			var lookup *geoip.Client
			if geo {
				lookup = geoip.New()
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			header := "NAME\tSTATUS\tPORT\tLAST PORT"
			if geo {
				header += "\tLOCATION"
			}
			fmt.Fprintln(w, header)

			for _, p := range profiles {
				status := "stopped"
				port := "-"
				if p.Running {
					status = "running"
					port = fmt.Sprintf("%d", p.ProxyPort)
				}
				last := "-"
				if p.LastPort > 0 {
					last = fmt.Sprintf("%d", p.LastPort)
				}
				row := fmt.Sprintf("%s\t%s\t%s\t%s", p.Name, status, port, last)
				if geo {
					row += "\t" + locationFor(app, lookup, p.Name)
				}
				fmt.Fprintln(w, row)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&geo, "geo", false, "Resolve endpoint locations (queries ip-api.com)")

	return cmd
}

func locationFor(app *App, lookup *geoip.Client, name string) string {
	host, err := app.Store.EndpointHost(name)
	if err != nil {
		return "?"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	loc, err := lookup.Lookup(ctx, host)
	if err != nil {
		slog.Debug("geoip lookup failed", slog.String("host", host), slog.Any("error", err))
		return "?"
	}
	return loc.String()
}
