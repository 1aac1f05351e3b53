// Package main is the entry point for the volunteer hub API.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (config file, .env, env vars)
// 2. Create the logger
// 3. Hand both to internal/server and start it
//
// All actual logic lives in imported packages (internal/server, internal/service, etc.).
//
// COMMANDS:
//
//	volunteer-hub            same as `serve`
//	volunteer-hub serve      run the HTTP API
//	volunteer-hub indexes    create the MongoDB indexes and exit
//
// cobra gives every command the shared --config flag and a generated --help.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/config"
	"github.com/sakif/volunteer-hub/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "volunteer-hub",
		Short:         "REST API for volunteer events, teams and help requests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML/TOML/JSON config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}
	indexes := &cobra.Command{
		Use:   "indexes",
		Short: "Create the MongoDB indexes and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexes(cmd.Context(), configFile)
		},
	}

	root.RunE = serve.RunE
	root.AddCommand(serve, indexes)
	return root
}

// setup loads configuration and builds the logger. Failures are printed to
// stderr since there is no logger yet.
func setup(configFile string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return config.Config{}, nil, err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func runServe(ctx context.Context, configFile string) error {
	cfg, logger, err := setup(configFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", zap.Error(err))
		return err
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}
	return nil
}

func runIndexes(ctx context.Context, configFile string) error {
	cfg, logger, err := setup(configFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Store.Driver != config.DriverMongo {
		// the sqlite store creates its indexes when it opens; memory has none
		logger.Info("nothing to do for this store driver", zap.String("driver", cfg.Store.Driver))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	db, err := server.OpenMongo(ctx, cfg.Store)
	if err != nil {
		logger.Error("connecting to mongodb", zap.Error(err))
		return err
	}
	defer func() { _ = db.Close(context.Background()) }()

	if err := db.EnsureIndexes(ctx); err != nil {
		logger.Error("creating indexes", zap.Error(err))
		return err
	}
	logger.Info("indexes are up to date", zap.String("database", cfg.Store.Database))
	return nil
}
