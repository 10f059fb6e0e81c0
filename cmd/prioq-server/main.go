package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sungwon/prioq/internal/api"
	"github.com/sungwon/prioq/internal/auth"
	"github.com/sungwon/prioq/internal/config"
	"github.com/sungwon/prioq/internal/delivery"
	"github.com/sungwon/prioq/internal/logger"
	"github.com/sungwon/prioq/internal/msgstore"
	"github.com/sungwon/prioq/internal/queue"
)

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.Logging)
	log.Info().Str("backend", cfg.Queue.Backend).Msg("starting prioq server")

	ctx := context.Background()

	svc, err := queue.NewService(ctx, cfg.Queue, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Queue.Backend).Msg("failed to create queue service")
	}
	defer svc.Close()

	if cfg.Payload.Enabled() {
		store, err := msgstore.New(ctx, cfg.Payload, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create payload store")
		}
		svc = queue.NewOffloadService(svc, store, cfg.Payload.Threshold, log)
		log.Info().Int("threshold", cfg.Payload.Threshold).Msg("payload offloading enabled")
	}

	dispatcher := queue.New(svc, cfg.Queue, log)

	target, err := delivery.NewTarget(cfg.Delivery, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create delivery target")
	}
	consumer := delivery.NewConsumer(dispatcher, target, cfg.Delivery, log)
	if !cfg.Delivery.Paused {
		if err := consumer.Resume(); err != nil {
			log.Fatal().Err(err).Msg("failed to start delivery")
		}
	}

	routerCfg := api.RouterConfig{
		Queue:        dispatcher,
		Delivery:     consumer,
		MaxBodyBytes: cfg.API.MaxBodyBytes,
		Log:          log,
	}
	if cfg.API.KeyHash != "" {
		verifier, err := auth.NewKeyVerifier(cfg.API.KeyHash)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid api.key_hash")
		}
		routerCfg.Verifier = verifier
	} else {
		log.Warn().Msg("api.key_hash not set; API is unauthenticated")
	}

	srv := &http.Server{
		Addr:         cfg.API.Addr(),
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown error")
	}

	consumer.Pause()
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("dispatcher shutdown error")
	}

	log.Info().Msg("prioq server stopped")
}
