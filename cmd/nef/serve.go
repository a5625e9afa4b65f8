package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"extranef/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the desktop datastore and bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.NewServerApp(ctx, cfg, verbose)
		if err != nil {
			return fmt.Errorf("initializing server: %w", err)
		}
		defer a.Close()

		success("Serving %s on %s", a.Datastore().Path(), cfg.Bridge.Address)
		return a.Serve(ctx)
	},
}
