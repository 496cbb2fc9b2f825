package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/soaringjerry/Surveyor/internal/api"
	"github.com/soaringjerry/Surveyor/internal/config"
	dbstore "github.com/soaringjerry/Surveyor/internal/db"
	"github.com/soaringjerry/Surveyor/internal/middleware"
	"github.com/soaringjerry/Surveyor/internal/services"
	"github.com/soaringjerry/Surveyor/internal/telemetry"
	"github.com/soaringjerry/Surveyor/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "surveyor", cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	if err := SeedIfNeeded(ctx, cfg.SeedPath, store); err != nil {
		log.Fatalf("seed: %v", err)
	}

	key, err := services.DeriveIdentityKey(cfg.IdentityKey)
	if err != nil {
		log.Fatalf("identity key: %v", err)
	}
	sealer, err := services.NewIdentitySealer(key)
	if err != nil {
		log.Fatalf("identity sealer: %v", err)
	}
	auth := middleware.NewAuth(cfg.JWTSecret)

	mux := http.NewServeMux()
	// API routes
	api.NewRouter(api.Options{
		Store:             store,
		Auth:              auth,
		Sealer:            sealer,
		ParallelThreshold: cfg.TabulateParallelThreshold,
		CORSOrigins:       cfg.CORSOrigins,
	}).Register(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "Surveyor API",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	})

	// Respondent frontend, if bundled.
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Wrap(auth, cfg.CORSOrigins, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("Surveyor server listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// openStore picks SQLite when a database path is configured and the memory
// store otherwise.
func openStore(cfg config.Config) (api.Store, func(), error) {
	if cfg.DBPath == "" {
		log.Printf("SURVEYOR_DB_PATH not set, using in-memory store")
		return api.NewMemoryStore(), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, nil, err
	}
	store, err := dbstore.Open(cfg.SQLiteDriver, cfg.DBPath, cfg.MigrationsDir)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Using sqlite store at %s (driver %s)", cfg.DBPath, cfg.SQLiteDriver)
	return store, func() {
		if err := store.Close(); err != nil {
			log.Printf("warning: failed to close sqlite db: %v", err)
		}
	}, nil
}
