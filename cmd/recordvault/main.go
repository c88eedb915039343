package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medicrypt/recordvault/app"
	"github.com/medicrypt/recordvault/config"
	"github.com/medicrypt/recordvault/repositories/postgres"
	"github.com/medicrypt/recordvault/routes"
	"github.com/medicrypt/recordvault/sealing"
	"github.com/medicrypt/recordvault/services/acl"
	"github.com/medicrypt/recordvault/services/audit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "recordvault",
		Short:        "Medical records access-control and audit server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(verifyLedgerCmd())
	rootCmd.AddCommand(keygenCmd())

	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Initialize the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := load(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()

			factory, err := openFactory(cfg, logger)
			if err != nil {
				return err
			}
			defer factory.Close()

			if err := factory.InitSchema(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Schema initialized on %s\n", cfg.Database.LogString())
			return nil
		},
	}
}

func verifyLedgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-ledger <record-id>",
		Short: "Recompute a record's audit hash chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := load(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()

			factory, err := openFactory(cfg, logger)
			if err != nil {
				return err
			}
			defer factory.Close()

			repos := factory.NewRepositories()
			txMgr := factory.GetTransactionManager()
			ledger := audit.NewLedger(repos.Audit, txMgr, acl.NewStore(repos.ACL, txMgr, logger), logger)

			v, err := ledger.Verify(ctx, args[0])
			if err != nil {
				return err
			}
			return printVerification(cmd, v)
		},
	}
}

// printVerification writes v as JSON and fails when the chain is broken so
// scripts can rely on the exit code.
func printVerification(cmd *cobra.Command, v *audit.Verification) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if !v.Intact {
		return fmt.Errorf("ledger for record %s is broken at seq %d", v.RecordID, v.BrokenAt)
	}
	return nil
}

func keygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an age identity for sealing artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, recipient, err := sealing.GenerateIdentity()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if env, _ := cmd.Flags().GetBool("env"); env {
				fmt.Fprintf(out, "AGE_IDENTITY=%s\n", identity)
				return nil
			}
			fmt.Fprintf(out, "# recipient: %s\n%s\n", recipient, identity)
			return nil
		},
	}
	cmd.Flags().Bool("env", false, "Print the identity as an AGE_IDENTITY assignment")
	return cmd
}

func runServer(ctx context.Context) error {
	cfg, logger, err := load(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           routes.SetupRoutes(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("recordvault listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.Server.TLS.Enabled),
			zap.String("environment", cfg.Environment))

		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("server error", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Error("dependency shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped")
	return serveErr
}

// load reads the configuration and builds the logger it describes
func load(ctx context.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, err
	}

	logger, err := initLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openFactory connects to PostgreSQL. Schema and ledger commands have
// nothing to act on with the in-memory backend.
func openFactory(cfg *config.Config, logger *zap.Logger) (*postgres.RepositoryFactory, error) {
	if cfg.Storage.Backend != config.BackendPostgres {
		return nil, fmt.Errorf("storage backend %q has no persistent schema, set STORAGE_BACKEND=postgres", cfg.Storage.Backend)
	}
	return postgres.NewRepositoryFactory(cfg, logger)
}

// initLogger builds a production (json) or development (text) zap logger
func initLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var zcfg zap.Config
	switch format {
	case "", "json":
		zcfg = zap.NewProductionConfig()
	case "text", "console":
		zcfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return zcfg.Build()
}
