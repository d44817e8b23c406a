package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/redisbus"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	signaling "github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/calendar"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/storage/sqlite"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	opts := []app.Option{app.WithNotifier(app.LogNotifier{})}
	var feed core.EventFeed
	if cfg.CalendarFile != "" {
		cal, err := calendar.Load(cfg.CalendarFile)
		if err != nil {
			return err
		}
		opts = append(opts, app.WithCalendar(cal))
	}
	if cfg.RedisURL != "" {
		bus, err := redisbus.Open(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer bus.Close()
		opts = append(opts, app.WithSink(bus))
		feed = bus
		log.Info().Msg("mirroring conference events to redis")
	}

	reg := app.NewRegistry(ctx, store, app.RegistryConfig{
		Session: app.SessionConfig{
			QueueSize:        cfg.Conference.QueueSize,
			SubscriberBuffer: cfg.Conference.SubscriberBuffer,
			StorageTimeout:   cfg.Storage.Timeout,
			DegradedRetry:    cfg.Conference.DegradedRetry,
			MaxParticipants:  cfg.Conference.MaxParticipants,
			MaxRooms:         cfg.Conference.MaxRooms,
			MaxChatLength:    cfg.Conference.MaxChatLength,
			HostLeave:        app.HostLeavePolicy(cfg.Conference.HostLeavePolicy),
		},
		Retention:       cfg.Conference.Retention,
		JanitorInterval: cfg.Conference.JanitorInterval,
	}, opts...)
	defer reg.Close()

	if _, err := reg.Restore(ctx); err != nil {
		return fmt.Errorf("restore conferences: %w", err)
	}

	ctl := signaling.NewSignalWSController(signaling.Options{
		ReadLimit:         cfg.ReadLimit,
		PingPeriod:        cfg.PingPeriod,
		CommandsPerSecond: cfg.Signal.CommandsPerSecond,
		CommandBurst:      cfg.Signal.CommandBurst,
		CommandTimeout:    cfg.Signal.CommandTimeout,
		ICEServers:        rtc.ICEServers(cfg.Signal.ICEServers),
	})
	r := router.SetupRouter(ctx, cfg, router.Deps{
		Registry:  reg,
		Directory: app.StaticDirectory{Recorders: cfg.Recorders},
		Signal:    ctl,
		Feed:      feed,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return reg.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	return g.Wait()
}
