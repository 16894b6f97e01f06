package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/SuperDev321/mediasoup/internal/adapters/http"
	"github.com/SuperDev321/mediasoup/internal/adapters/rtc"
	wsignal "github.com/SuperDev321/mediasoup/internal/adapters/signal"
	"github.com/SuperDev321/mediasoup/internal/app"
	"github.com/SuperDev321/mediasoup/internal/config"
	"github.com/SuperDev321/mediasoup/internal/core"
	"github.com/SuperDev321/mediasoup/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	engine := rtc.NewEngine(cfg.Media)
	workers, err := engine.CreateWorkers(cfg.Media.NumWorkers)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create media workers")
	}
	for i, w := range workers {
		idx := i
		w.OnDied(func() {
			log.Error().Int("worker", idx).Msg("media worker died, exiting in 2 seconds")
			time.AfterFunc(2*time.Second, func() { os.Exit(1) })
		})
	}

	m := metrics.New()
	reg := app.NewRegistry(workers, core.RoomOptions{
		InitialOutgoingBitrate: cfg.Media.InitialOutgoingBitrate,
		MaxIncomingBitrate:     cfg.Media.MaxIncomingBitrate,
	}, m)

	ctl := wsignal.NewSignalWSController(reg, cfg)
	reg.BindSignaler(ctl)

	r := router.SetupRouter(ctx, cfg, ctl, m)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("media server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	for _, w := range workers {
		w.Close()
	}
	log.Info().Msg("Server exited gracefully")
}
