package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/inamate/canvas/internal/asset"
	"github.com/inamate/canvas/internal/config"
	"github.com/inamate/canvas/internal/engine"
	"github.com/inamate/canvas/internal/export"
	mw "github.com/inamate/canvas/internal/middleware"
	"github.com/inamate/canvas/internal/session"
	"github.com/inamate/canvas/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	loader, err := asset.NewLoader(cfg.AssetDir, nil)
	if err != nil {
		slog.Error("create asset loader", "error", err)
		os.Exit(1)
	}

	hub := session.NewHub(store, loader,
		engine.WithHistoryLimit(cfg.HistoryLimit),
		engine.WithZoomBounds(cfg.ZoomMin, cfg.ZoomMax),
	)
	hubCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	sessionHandler := session.NewHandler(hub, cfg.OriginHosts())
	assetHandler := asset.NewHandler(loader)
	exportHandler := export.NewHandler(hub, loader, cfg.ExportMaxPixels)

	r := mux.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	r.HandleFunc("/assets/upload", assetHandler.Upload).Methods("POST", "OPTIONS")
	r.PathPrefix("/assets/").Handler(assetHandler.Serve()).Methods("GET")

	r.HandleFunc("/sessions/{id}/export.png", exportHandler.ExportPNG).Methods("GET")
	r.HandleFunc("/sessions/{id}/document", exportHandler.ExportDocument).Methods("GET")
	sessionHandler.Register(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mw.CORS(cfg.Origins())(r), // outside the router so preflights reach it
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("listen", "addr", addr, "error", err)
		os.Exit(1)
	}
	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	slog.Info("server starting", "addr", addr)
	// Stop the hub first so every dirty session is saved and WebSocket
	// clients are disconnected.
	err = serve(sigCtx, srv, ln, drainTimeout, func() {
		stopHub()
		<-hubDone
	})
	if err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

const drainTimeout = 10 * time.Second

// serve runs srv on ln until ctx is done, then calls beforeShutdown and
// waits up to drain for in-flight requests to finish.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, drain time.Duration, beforeShutdown func()) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	beforeShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, sessions are kept in memory")
		return storage.NewMemory(), nil
	}
	pg, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}
