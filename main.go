/*
Package main
File: main.go
Description:
    Server entry point. 'serve' loads the catalog, opens artifact storage,
    starts the owner loop and the WebSocket hub, and serves HTTP.
    'migrate' converts every stored artifact still on the legacy upgrade
    layout, offline.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/everforgeworks/galaxies-core/internal/api"
	"github.com/everforgeworks/galaxies-core/internal/config"
	"github.com/everforgeworks/galaxies-core/internal/game"
	"github.com/everforgeworks/galaxies-core/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:           "galaxies-core",
		Short:         "Artifact upgrade and energy server for GALAXIES: BURN RATE",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the owner loop and the HTTP/WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Server) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	// 1. Load the static catalog
	catalog, err := game.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	logger.Info("catalog loaded",
		slog.Int("upgrades", len(catalog.Upgrades)),
		slog.String("capacity_upgrade", catalog.CapacityUpgrade))

	// 2. Open artifact storage
	store, err := storage.Open(storage.Config{
		Path:       cfg.DBPath,
		InMemory:   cfg.DBInMemory,
		SyncWrites: true,
		Logger:     logger.With(slog.String("component", "badger")),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	// 3. Engine wiring: roster -> gateway -> owner loop -> hub
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := api.NewMetrics(reg)

	roster := api.NewRoster(catalog, store, metrics, logger)
	gateway := api.NewGateway(roster, catalog, metrics, logger)
	owner := api.NewOwner(roster, []game.System{game.NewUpkeepSystem(catalog)}, api.OwnerConfig{
		TickInterval:    cfg.TickInterval,
		CommandCapacity: cfg.CommandCapacity,
		PerActorLimit:   cfg.PerActorLimit,
		FlushEvery:      cfg.FlushEvery,
	}, metrics, logger)
	hub := api.NewHub(nil, logger)
	srv := &api.Server{Catalog: catalog, Owner: owner, Roster: roster, Gateway: gateway, Hub: hub, Logger: logger}
	hub.SetDispatcher(srv)
	roster.SetPresence(hub)

	// 4. Routes
	mux := http.NewServeMux()
	srv.Routes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Run until a signal arrives
	g, gctx := errgroup.WithContext(ctx)
	go hub.Run()
	defer hub.Stop()
	g.Go(func() error { return owner.Run(gctx) })
	g.Go(func() error {
		logger.Info("GALAXIES core live", slog.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func migrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Convert stored artifacts from the legacy upgrade layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg, dryRun, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be migrated without writing")
	return cmd
}

func migrate(ctx context.Context, cfg config.Server, dryRun bool, out io.Writer) error {
	catalog, err := game.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	store, err := storage.Open(storage.Config{Path: cfg.DBPath, SyncWrites: true})
	if err != nil {
		return err
	}
	defer store.Close()

	pending := make(map[string]game.Blob)
	scanned := 0
	err = store.ForEachArtifact(ctx, func(id string, blob game.Blob) error {
		scanned++
		if _, migrated := game.LoadArtifact(id, blob, catalog); migrated {
			pending[id] = blob
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan artifacts: %w", err)
	}
	if !dryRun && len(pending) > 0 {
		if err := store.SaveArtifacts(ctx, pending); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "scanned %d artifacts, migrated %d (dry run: %t)\n", scanned, len(pending), dryRun)
	return nil
}

// corsMiddleware lets the desktop client talk to the server across domains.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
