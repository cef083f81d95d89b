package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlekbai/docwrite/internal/config"
	"github.com/atlekbai/docwrite/internal/db"
	"github.com/atlekbai/docwrite/internal/middleware"
	"github.com/atlekbai/docwrite/internal/schema"
	"github.com/atlekbai/docwrite/internal/server"
	"github.com/atlekbai/docwrite/internal/service"
	"github.com/atlekbai/docwrite/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	if cfg.InstallFunctions {
		if err := db.InstallFunctions(ctx, pool); err != nil {
			log.Fatalf("failed to install functions: %v", err)
		}
		log.Printf("installed %d helper functions", len(db.Functions))
	}

	cache := schema.NewCache()
	loadSchema := func(ctx context.Context) error {
		if cfg.SchemaFile != "" {
			data, err := os.ReadFile(cfg.SchemaFile)
			if err != nil {
				return err
			}
			return cache.LoadYAML(data)
		}
		return cache.Load(ctx, pool, cfg.DBSchema)
	}
	if err := loadSchema(ctx); err != nil {
		log.Fatalf("failed to load schema cache: %v", err)
	}
	log.Printf("schema cache loaded: %d tables", cache.TableCount())

	st := store.New(pool, cache,
		store.WithLogger(logger),
		store.WithSlowThreshold(cfg.SlowQueryThreshold),
	)

	services := []server.ConnectService{
		service.NewWriteService(st),
	}
	mux := server.NewMux(services, server.LoggingInterceptor(logger))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.Chain(mux, middleware.RequestID, middleware.Logging, middleware.Recovery),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("listening on %s", cfg.Addr())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.SchemaReloadInterval > 0 {
		g.Go(func() error {
			return server.Every(gctx, cfg.SchemaReloadInterval, logger, "schema reload", func(ctx context.Context) error {
				if err := loadSchema(ctx); err != nil {
					return err
				}
				logger.InfoContext(ctx, "schema cache reloaded", "tables", cache.TableCount())
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("statements: %s", st.Stats())
}
