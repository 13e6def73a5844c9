package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tannershotme/daily-v2/internal/autostart"
	"github.com/tannershotme/daily-v2/internal/cache"
	"github.com/tannershotme/daily-v2/internal/config"
	"github.com/tannershotme/daily-v2/internal/day"
	"github.com/tannershotme/daily-v2/internal/serverapp"
	"github.com/tannershotme/daily-v2/internal/state"
	"github.com/tannershotme/daily-v2/internal/telemetry"
	staticfiles "github.com/tannershotme/daily-v2/static"
)

func main() {
	logger := log.Default()

	cfg, err := config.Load("daily_config.yml")
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	cfg.ApplyEnv()
	if cfg.Cache.UpstreamBaseURL == "" {
		cfg.Cache.UpstreamBaseURL = "http://" + serverapp.LocalHost
	}

	if err := autostart.Sync(cfg.Autostart, logger); err != nil {
		// Autostart is a convenience; the server runs either way.
		logger.Printf("autostart: %v", err)
	}

	stateStore, err := state.NewStore(filepath.Join(cfg.DataDir, "state"), logger)
	if err != nil {
		logger.Fatalf("open state store: %v", err)
	}
	cacheStore, err := cache.NewStore(filepath.Join(cfg.DataDir, "cache"))
	if err != nil {
		logger.Fatalf("open cache store: %v", err)
	}
	events := telemetry.NewMemoryRepository()

	var static http.Handler = http.FileServer(http.FS(staticfiles.EmbeddedFS()))
	if serverapp.UseDiskStaticByEnv() {
		static = http.FileServer(http.Dir("static"))
	}

	worker := cache.NewWorker(cache.Options{
		Store:     cacheStore,
		Config:    cfg.Cache,
		Events:    events,
		Logger:    logger,
		Transport: cache.HandlerTransport(static, serverapp.LocalHost),
	})

	ctl := day.NewController(day.Options{
		Store:      stateStore,
		Dispatcher: worker,
		Events:     events,
		Logger:     logger,
		Day:        cfg.Day,
	})
	ctl.Startup()

	handler, err := serverapp.NewHandler(serverapp.Options{
		Config:        cfg,
		Controller:    ctl,
		Worker:        worker,
		CacheStore:    cacheStore,
		Events:        events,
		Logger:        logger,
		UseDiskStatic: serverapp.UseDiskStaticByEnv(),
	})
	if err != nil {
		logger.Fatalf("build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Printf("cache worker stopped: %v", err)
		}
	}()

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Printf("listening on http://localhost%s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(err)
	}
}
