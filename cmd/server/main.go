// cmd/server/main.go
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
	"golang.org/x/sync/errgroup"

	availabilityapi "github.com/conferia/roombook/internal/api/availability"
	"github.com/conferia/roombook/internal/api/auth"
	"github.com/conferia/roombook/internal/api/blockings"
	"github.com/conferia/roombook/internal/api/bookings"
	"github.com/conferia/roombook/internal/api/rooms"
	"github.com/conferia/roombook/internal/booking/availability"
	"github.com/conferia/roombook/internal/booking/calendar"
	"github.com/conferia/roombook/internal/booking/service"
	"github.com/conferia/roombook/internal/config"
	"github.com/conferia/roombook/internal/db"
	"github.com/conferia/roombook/internal/notify"
	"github.com/conferia/roombook/internal/ratelimit"
	"github.com/conferia/roombook/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "configs/config.yaml"
}

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	var sender notify.Sender = notify.LogSender{}
	if cfg.Email.Enabled {
		ses, err := notify.NewSESClient(
			cfg.Email.AccessKeyID,
			cfg.Email.SecretAccessKey,
			cfg.Email.Region,
			cfg.Email.Sender,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize SES client")
		}
		sender = ses
	}

	calendars := calendar.New(database.Queries, nil)
	aggregator := availability.New(calendars, nil)
	svc := service.New(database, calendars, sender, nil)
	limiter := ratelimit.New(nil)
	defer limiter.Close()

	auth.InitHandlers(database.Queries, cfg)
	rooms.InitHandlers(database.Queries)
	bookings.InitHandlers(svc, database.Queries)
	availabilityapi.InitHandlers(aggregator)
	blockings.InitHandlers(svc, database.Queries)

	if cfg.Jobs.Enabled {
		if err := scheduler.Init(); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize scheduler")
		}
		if err := scheduler.RegisterReminderJob(database, sender, cfg.Jobs.ReminderSchedule); err != nil {
			log.Fatal().Err(err).Msg("Failed to register reminder job")
		}
		ttl := time.Duration(cfg.Jobs.PreBookingTTLHours) * time.Hour
		if err := scheduler.RegisterExpiryJob(database, cfg.Jobs.ExpirySchedule, ttl); err != nil {
			log.Fatal().Err(err).Msg("Failed to register expiry job")
		}
		if err := scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	server := newServer(cfg, limiter, fmt.Sprintf(":%d", cfg.App.Port))

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Str("env", cfg.App.Environment).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if cfg.Jobs.Enabled {
			if err := scheduler.Stop(); err != nil {
				log.Error().Err(err).Msg("Scheduler shutdown error")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}
