package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/api"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/config"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/logging"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/registry"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/session"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/transport"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("load server config failed")
	}

	reg, err := newRegistry(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("registry init failed")
	}

	backend := api.NewClient(cfg.BackendBaseURL, cfg.BackendAPIKey, cfg.BackendTimeout)
	manager := session.NewManager(session.ManagerConfig{
		Backend:       backend,
		Dialer:        transport.NewWSDialer(),
		Registry:      reg,
		CostPerMinute: cfg.CostPerMinuteCoins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	manager.StartJanitor(ctx, time.Minute)

	r := newRouter(cfg, manager)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		manager.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newRegistry(cfg config.ServerConfig) (registry.Registry, error) {
	if cfg.RedisAddr == "" {
		log.Warn().Msg("no redis configured, session state will not survive restarts")
		return registry.NewMemory(), nil
	}
	return registry.NewRedis(context.Background(), registry.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
