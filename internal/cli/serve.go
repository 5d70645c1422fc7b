package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/YarShev/omniscidb/internal/config"
	"github.com/YarShev/omniscidb/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the database server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           log.InfoLevel,
		ReportTimestamp: true,
		Prefix:          "omniscidb",
	})
	if flagVerbose {
		logger.SetLevel(log.DebugLevel)
	}

	overrides := map[string]any{}
	if flagData != "" {
		overrides["storage_path"] = flagData
	}
	if flagListen != "" {
		overrides["listen_addr"] = flagListen
	}

	settings, err := config.Load(config.LoadOptions{
		ConfigFile:    flagConfig,
		FlagOverrides: overrides,
	})
	if err != nil {
		return err
	}
	if settings.StoragePath == "" {
		return fmt.Errorf("storage path is required (--data or storage_path in config)")
	}

	cfg, err := config.Build(settings)
	if err != nil {
		return err
	}

	handler, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = handler.Close() }()

	srv, err := server.NewTCPServer(handler, settings.ListenAddr, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
