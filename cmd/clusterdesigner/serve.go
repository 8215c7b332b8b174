// ABOUTME: The serve command: wires storage, exporter, catalog, preview cache, and metrics into the editor API.
// ABOUTME: Listens on a loopback address by default and shuts down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/2389-research/clusterdesigner/editor"
	"github.com/2389-research/clusterdesigner/nodeconfig"
	"github.com/2389-research/clusterdesigner/persist"
	"github.com/2389-research/clusterdesigner/render"
)

const (
	previewTTL      = 10 * time.Minute
	cleanupInterval = time.Minute
	shutdownTimeout = 10 * time.Second
)

type serveFlags struct {
	bind        string
	allowRemote bool
	dataDir     string
	storage     string
}

func newServeCmd(global *globalFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the editor JSON API",
		Long: `Run the editor API. Each session holds one cluster design; the API places,
connects, and arranges agents, checks the design, and saves, loads, and exports
it through the configured backends.

Settings come from the config file, CLUSTERDESIGNER_* environment variables,
and the flags below, in increasing order of precedence.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global.configPath)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("bind") {
				cfg.Bind = flags.bind
			}
			if f.Changed("allow-remote") {
				cfg.AllowRemote = flags.allowRemote
			}
			if f.Changed("data-dir") {
				if cfg.ExportDir == filepath.Join(cfg.DataDir, "exports") {
					cfg.ExportDir = ""
				}
				cfg.DataDir = flags.dataDir
				if err := cfg.fillDirs(); err != nil {
					return err
				}
			}
			if f.Changed("storage") {
				cfg.Storage = flags.storage
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&flags.bind, "bind", "", "listen address (default 127.0.0.1:7780)")
	cmd.Flags().BoolVar(&flags.allowRemote, "allow-remote", false, "allow binding to a non-loopback address")
	cmd.Flags().StringVar(&flags.dataDir, "data-dir", "", "directory for saved designs and exports")
	cmd.Flags().StringVar(&flags.storage, "storage", "", "design storage: file, sqlite, redis, or none")

	return cmd
}

// openBackend returns the configured design store and a closer for it.
// StorageNone yields a nil backend; save and load then answer 503.
func openBackend(cfg Config) (persist.Backend, io.Closer, error) {
	switch cfg.Storage {
	case StorageFile:
		return persist.NewFileStore(filepath.Join(cfg.DataDir, "designs")), nil, nil
	case StorageSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		store, err := persist.OpenSQLite(filepath.Join(cfg.DataDir, "designs.db"))
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case StorageRedis:
		var opts []persist.RedisOption
		if cfg.Redis.Prefix != "" {
			opts = append(opts, persist.WithPrefix(cfg.Redis.Prefix))
		}
		if cfg.Redis.TTL.Duration > 0 {
			opts = append(opts, persist.WithTTL(cfg.Redis.TTL.Duration))
		}
		store := persist.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		return store, store, nil
	case StorageNone:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStorage, cfg.Storage)
	}
}

// buildServer assembles the editor server for cfg. The returned cleanup
// stops background work and closes the storage backend.
func buildServer(cfg Config, logger *log.Logger) (*editor.Server, func(), error) {
	backend, closer, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeBackend := func() {
		if closer != nil {
			if err := closer.Close(); err != nil {
				logger.Warn("close storage", "err", err)
			}
		}
	}

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		closeBackend()
		return nil, nil, err
	}
	format, err := nodeconfig.ParseFormat(cfg.ExportFormat)
	if err != nil {
		closeBackend()
		return nil, nil, err
	}

	doc := nodeconfig.DefaultOptions()
	doc.Catalog = cat
	overrideString(&doc.NodeID, cfg.NodeID)
	overrideString(&doc.NodeName, cfg.NodeName)

	opts := []editor.ServerOption{
		editor.WithLogger(logger),
		editor.WithCatalog(cat),
		editor.WithExporter(&nodeconfig.FileSink{Dir: cfg.ExportDir, Format: format}),
		editor.WithDocumentOptions(doc),
		editor.WithCanvasWidth(cfg.CanvasWidth),
	}
	if backend != nil {
		opts = append(opts, editor.WithBackend(backend))
	}
	if cfg.Preview {
		opts = append(opts, editor.WithPreview(render.NewRenderCache(nil, previewTTL, 0)))
	}
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, editor.WithMetrics(reg))
	}

	store := editor.NewStore(cfg.MaxSessions, cfg.SessionTTL.Duration)
	srv := editor.NewServer(store, opts...)

	stopCleanup := store.StartCleanup(cleanupInterval, logger)
	stopPurge := srv.StartPreviewPurge(cleanupInterval)
	cleanup := func() {
		stopPurge()
		stopCleanup()
		closeBackend()
	}

	logger.Debug("server assembled",
		"storage", cfg.Storage,
		"data_dir", cfg.DataDir,
		"export_dir", cfg.ExportDir,
		"format", format,
		"preview", cfg.Preview,
		"metrics", cfg.Metrics,
	)
	return srv, cleanup, nil
}

func runServe(ctx context.Context, cfg Config) error {
	logger := loggerFromContext(ctx)

	srv, cleanup, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	httpServer := &http.Server{
		Addr:              cfg.Bind,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Bind, "storage", cfg.Storage)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
