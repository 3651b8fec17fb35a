package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/conferia/roombook/internal/db"
)

const (
	expiryTimeout         = 2 * time.Minute
	expiredPendingMessage = "expired without manager approval"
)

// RegisterExpiryJob rejects pre-bookings that are still unapproved well
// past their start. Without it, stale pre-bookings keep weakly holding
// calendar slots forever.
func RegisterExpiryJob(database *db.DB, cronExpr string, ttl time.Duration) error {
	if database == nil {
		return fmt.Errorf("expiry job requires database")
	}
	if ttl <= 0 {
		return fmt.Errorf("expiry job requires a positive ttl")
	}

	jobName := "pre_booking_expiry"
	jobLogger := log.With().
		Str("component", "pre_booking_expiry_job").
		Str("job_name", jobName).
		Str("cron", cronExpr).
		Logger()

	_, err := AddJob(jobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), expiryTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		cutoff := time.Now().UTC().Add(-ttl)
		stale, err := database.Queries.ListPendingReservationsStartedBefore(ctx, cutoff)
		if err != nil {
			jobLogger.Error().Err(err).Msg("Failed to load stale pre-bookings")
			return
		}
		if len(stale) == 0 {
			return
		}

		expired := 0
		for _, res := range stale {
			if err := database.Queries.RejectReservation(ctx, res.ID, expiredPendingMessage); err != nil {
				jobLogger.Error().Err(err).Int64("reservation_id", res.ID).Msg("Failed to expire pre-booking")
				continue
			}
			expired++
		}
		jobLogger.Info().Int("expired", expired).Msg("Expired stale pre-bookings")
	}, gocron.WithSingletonMode(gocron.LimitModeWait))
	if err != nil {
		return fmt.Errorf("add pre-booking expiry job: %w", err)
	}

	jobLogger.Info().Msg("Pre-booking expiry job registered")
	return nil
}
