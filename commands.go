package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Neos21/db-api/config"
	"github.com/Neos21/db-api/handler"
	"github.com/Neos21/db-api/registry"
	"github.com/Neos21/db-api/store"
	"github.com/Neos21/db-api/telemetry"
	"github.com/Neos21/db-api/tenant"
)

// Registry file base names inside db_dir, one per engine family.
const (
	documentsRegistryBase  = "json-db-registry"
	relationalRegistryBase = "sqlite-registry"
)

const shutdownTimeout = 10 * time.Second

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dbapi",
		Short:         "Credential-gated JSON document and SQLite database server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newDocsCommand())
	return root
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath, os.Environ())
			if err != nil {
				return err
			}
			if err := config.ApplyFlags(&cfg, cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}

func newDocsCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Write the OpenAPI document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := json.MarshalIndent(handler.OpenAPI(), "", "  ")
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "docs/swagger.json", "output path")
	return cmd
}

// serve builds both engine families and runs the server until ctx is done.
func serve(ctx context.Context, cfg config.Config) error {
	logger, logCloser, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("open log output: %w", err)
	}
	defer logCloser.Close()

	regLog := telemetry.Component(logger, "registry")
	storeLog := telemetry.Component(logger, "store")

	docReg, err := openRegistry(regLog, cfg.DocumentsRegistry, cfg.DBDir, documentsRegistryBase)
	if err != nil {
		return err
	}
	defer docReg.Close()
	docStore, err := store.NewJsonFileStore(cfg.JSONDBDir)
	if err != nil {
		return err
	}
	storeLog.Info().Str("family", docStore.Family()).Str("dir", cfg.JSONDBDir).Msg("store ready")

	sqlReg, err := openRegistry(regLog, cfg.RelationalRegistry, cfg.DBDir, relationalRegistryBase)
	if err != nil {
		return err
	}
	defer sqlReg.Close()
	sqlStore, err := store.NewSqliteStore(cfg.SqliteDir)
	if err != nil {
		return err
	}
	storeLog.Info().Str("family", sqlStore.Family()).Str("dir", cfg.SqliteDir).Msg("store ready")

	metrics := telemetry.NewMetrics(cfg.Metrics.Enabled)
	h := handler.New(handler.Options{
		Credential:      cfg.Credential,
		Documents:       tenant.NewManager(docReg, docStore, logger),
		DocumentStore:   docStore,
		Relational:      tenant.NewManager(sqlReg, sqlStore, logger),
		RelationalStore: sqlStore,
		AllowedOrigins:  cfg.AllowedOrigins,
		Metrics:         metrics,
		MetricsPath:     cfg.Metrics.Path,
		Logger:          logger,
	})

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("db_dir", cfg.DBDir).
			Str("json_db_dir", cfg.JSONDBDir).
			Str("sqlite_dir", cfg.SqliteDir).
			Bool("metrics", metrics.Enabled()).
			Msg("DB API starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openRegistry opens one family's registry and logs how many databases it
// already holds.
func openRegistry(log zerolog.Logger, backend, dir, base string) (registry.Registry, error) {
	reg, err := registry.Open(backend, dir, base)
	if err != nil {
		return nil, err
	}
	names, err := reg.Names(context.Background())
	if err != nil {
		reg.Close()
		return nil, err
	}
	log.Info().Str("backend", backend).Str("registry", base).Int("databases", len(names)).Msg("registry opened")
	return reg, nil
}
