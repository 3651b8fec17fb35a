package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/conferia/roombook/internal/db"
	"github.com/conferia/roombook/internal/notify"
)

const (
	reminderLeadTime  = 24 * time.Hour
	reminderTimeout   = 2 * time.Minute
	reminderSendLimit = 5 * time.Second
)

// RegisterReminderJob sweeps upcoming occurrences on a cron schedule and
// mails each booker once per occurrence.
func RegisterReminderJob(database *db.DB, sender notify.Sender, cronExpr string) error {
	if database == nil {
		return fmt.Errorf("reminder job requires database")
	}

	jobName := "occurrence_reminders"
	jobLogger := log.With().
		Str("component", "occurrence_reminders_job").
		Str("job_name", jobName).
		Str("cron", cronExpr).
		Logger()

	_, err := AddJob(jobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		if sender == nil {
			jobLogger.Debug().Msg("Reminder job skipped: sender not configured")
			return
		}

		now := time.Now().UTC()
		reminders, err := database.Queries.ListOccurrencesNeedingReminder(ctx, now, now.Add(reminderLeadTime))
		if err != nil {
			jobLogger.Error().Err(err).Msg("Failed to load occurrences for reminder job")
			return
		}

		for _, reminder := range reminders {
			date, timeRange := notify.FormatDateTimeRange(reminder.StartAt, reminder.EndAt)
			msg := notify.BuildReminder(notify.BookingDetails{
				RoomName:  reminder.RoomName,
				BookedFor: reminder.UserName,
				Date:      date,
				TimeRange: timeRange,
			})

			sendCtx, sendCancel := context.WithTimeout(ctx, reminderSendLimit)
			err := sender.Send(sendCtx, reminder.UserEmail, msg.Subject, msg.Body)
			sendCancel()
			if err != nil {
				jobLogger.Error().Err(err).Int64("occurrence_id", reminder.OccurrenceID).Msg("Failed to send reminder email")
				continue
			}
			if err := database.Queries.MarkOccurrenceNotified(ctx, reminder.OccurrenceID); err != nil {
				jobLogger.Error().Err(err).Int64("occurrence_id", reminder.OccurrenceID).Msg("Failed to mark occurrence notified")
			}
		}
	}, gocron.WithSingletonMode(gocron.LimitModeWait))
	if err != nil {
		return fmt.Errorf("add occurrence reminder job: %w", err)
	}

	jobLogger.Info().Msg("Occurrence reminder job registered")
	return nil
}
