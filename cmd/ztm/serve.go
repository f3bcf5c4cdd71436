package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tidbyt.dev/ztm/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the most recently imported feed over HTTP",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

var addr string

func init() {
	serveCmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	if addr != "" {
		cfg.Server.Addr = addr
	}

	s, err := openStorage()
	if err != nil {
		return err
	}

	manager := newManager(s)

	// Refresh from the configured source on startup. With the
	// memory backend this is the only way to get data in.
	err = importConfigured(manager, cmd)
	if err != nil {
		logger.Error().Err(err).Msg("Import on startup failed")
	}

	server := api.NewServer(manager)
	server.Logger = logger
	server.CORSOrigins = cfg.Server.CORSOrigins

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.ListenAndServe(ctx, cfg.Server.Addr)
}
