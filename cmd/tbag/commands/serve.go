package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tbag/core/internal/adapters/highlight"
	httpHandlers "github.com/tbag/core/internal/adapters/http"
	"github.com/tbag/core/internal/adapters/template"
	"github.com/tbag/core/internal/application/services"
	"github.com/tbag/core/internal/infrastructure/metrics"
	"github.com/tbag/core/internal/infrastructure/server"
	"github.com/tbag/core/internal/infrastructure/watcher"
)

const highlightStyle = "github"

// NewServeCommand creates the serve command
func NewServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the tbag HTTP server",
		Long:  "Build the file index, start the periodic rebuild and serve scripts until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *configFile)
		},
	}
}

func runServer(ctx context.Context, configFile string) error {
	cfg, appLogger, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	defer appLogger.Close()

	m := metrics.New()

	tree, err := newContentTree(cfg, appLogger, m)
	if err != nil {
		return fmt.Errorf("failed to open content root: %w", err)
	}

	// A failed first build leaves the empty index in place; the refresher retries.
	if err := tree.index.Rebuild(ctx); err != nil {
		appLogger.Errorw("Initial index build failed", "root", cfg.Content.Root, "error", err)
	}

	repo, err := newVisitRepository(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to open %s counter backend: %w", cfg.Counter.Backend, err)
	}
	visits := services.NewVisitService(repo, services.VisitConfig{
		QueueSize: cfg.Counter.QueueSize,
		Workers:   cfg.Counter.Workers,
		Timeout:   cfg.Counter.Timeout,
	}, appLogger, m)
	defer func() {
		if err := visits.Close(); err != nil {
			appLogger.Errorw("Failed to close visit counter", "error", err)
		}
	}()

	page, err := template.Load(cfg.Content.PageTemplate)
	if err != nil {
		return fmt.Errorf("failed to load page template: %w", err)
	}

	router, err := services.NewRouter(tree.index, tree.store, tree.languages, services.RouterConfig{
		PublicBaseURL: cfg.Server.PublicBaseURL,
		RawPrefix:     cfg.Content.RawPrefix,
		RawUserAgents: cfg.Content.RawUserAgents,
	}, appLogger, m)
	if err != nil {
		return err
	}

	content := services.NewContentService(tree.store, highlight.NewChromaRenderer(highlightStyle), page, visits, appLogger)
	files := httpHandlers.NewFileHandler(router, content, appLogger)

	refresher := services.NewIndexRefresher(tree.index, cfg.Index.RebuildInterval, appLogger)
	refresher.Start(ctx)
	defer refresher.Stop()

	if cfg.Index.Watch {
		w, err := watcher.New(cfg.Content.Root, tree.scanner, cfg.Index.WatchDebounce, refresher.Trigger, appLogger)
		if err != nil {
			appLogger.Warnw("File watcher disabled", "error", err)
		} else {
			defer w.Close()
			go w.Run(ctx)
		}
	}

	srv := server.New(cfg, server.Dependencies{
		Files:   files,
		Index:   tree.index,
		Counter: visits,
		Metrics: m,
	}, appLogger)

	appLogger.Infow("Starting tbag server",
		"address", cfg.Server.GetAddress(),
		"public_base_url", cfg.Server.PublicBaseURL,
		"root", cfg.Content.Root,
		"counter", cfg.Counter.Backend,
		"environment", cfg.App.Environment,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.GetAddress())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	appLogger.Infow("Shutdown signal received")

	// The serve context is already cancelled here.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	refresher.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorw("Server shutdown did not complete", "error", err)
	}

	return <-errCh
}
