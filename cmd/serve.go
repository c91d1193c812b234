package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the scrape API over HTTP",
		Long: `Starts the HTTP API (POST /api/scrape, health, readiness and metrics
endpoints) and blocks until SIGINT or SIGTERM, then drains in-flight requests.`,
		RunE: withApp(func(cmd *cobra.Command, app App) error {
			if err := app.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		}),
	}
}
