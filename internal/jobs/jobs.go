// Package jobs runs the periodic maintenance tasks: sweeping missed
// appointments into no-show and sending day-before reminders.
package jobs

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"clinic-management-server/internal/clock"
	"clinic-management-server/internal/models"
	"clinic-management-server/internal/scheduling"
)

// Runner owns the cron scheduler and the task implementations.
type Runner struct {
	DB    *gorm.DB
	Clock clock.Clock
	Log   zerolog.Logger

	// NoShowGrace is how long after the scheduled start an unstarted
	// appointment may linger before the sweep marks it no-show.
	NoShowGrace time.Duration

	cron *cron.Cron
}

// NewRunner creates a Runner. Start must be called to begin scheduling.
func NewRunner(db *gorm.DB, clk clock.Clock, log zerolog.Logger, noShowGrace time.Duration) *Runner {
	return &Runner{
		DB:          db,
		Clock:       clk,
		Log:         log,
		NoShowGrace: noShowGrace,
		cron:        cron.New(),
	}
}

// Start registers the periodic tasks and starts the scheduler.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc("*/5 * * * *", r.SweepNoShows); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc("@hourly", r.SendReminders); err != nil {
		return err
	}
	r.cron.Start()
	r.Log.Info().Msg("background jobs started")
	return nil
}

// Stop stops the scheduler and waits for running tasks to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// SweepNoShows marks scheduled and confirmed appointments whose start time
// passed more than the grace period ago as no-show. Their queue entries, if
// any, follow.
func (r *Runner) SweepNoShows() {
	now := r.Clock.Now()
	cutoff := now.Add(-r.NoShowGrace)

	var overdue []models.Appointment
	err := r.DB.
		Where("status IN ?", []models.AppointmentStatus{models.StatusScheduled, models.StatusConfirmed}).
		Where("start_time < ?", cutoff).
		Find(&overdue).Error
	if err != nil {
		r.Log.Error().Err(err).Msg("no-show sweep query failed")
		return
	}

	for i := range overdue {
		appt := &overdue[i]
		if err := scheduling.MarkNoShow(appt, now); err != nil {
			r.Log.Warn().Err(err).Str("appointment_id", appt.ID).Msg("no-show transition rejected")
			continue
		}
		if err := r.DB.Save(appt).Error; err != nil {
			r.Log.Error().Err(err).Str("appointment_id", appt.ID).Msg("failed to persist no-show")
			continue
		}

		err := r.DB.Model(&models.QueueEntry{}).
			Where("appointment_id = ?", appt.ID).
			Where("status IN ?", []models.QueueStatus{models.QueueWaiting, models.QueueDelayed}).
			Update("status", models.QueueNoShow).Error
		if err != nil {
			r.Log.Error().Err(err).Str("appointment_id", appt.ID).Msg("failed to close queue entry")
		}

		r.Log.Info().
			Str("appointment_id", appt.ID).
			Time("start_time", appt.StartTime).
			Msg("appointment marked no-show")
	}
}

// SendReminders flags active appointments starting within the next 24 hours
// whose reminder has not gone out yet. Delivery itself is an outbound
// notification concern; here the flag is set and the event logged.
func (r *Runner) SendReminders() {
	now := r.Clock.Now()

	var upcoming []models.Appointment
	err := r.DB.
		Where("status IN ?", []models.AppointmentStatus{models.StatusScheduled, models.StatusConfirmed}).
		Where("start_time > ? AND start_time <= ?", now, now.Add(24*time.Hour)).
		Where("reminder_sent = ?", false).
		Find(&upcoming).Error
	if err != nil {
		r.Log.Error().Err(err).Msg("reminder query failed")
		return
	}

	for i := range upcoming {
		appt := &upcoming[i]
		if err := r.DB.Model(appt).Update("reminder_sent", true).Error; err != nil {
			r.Log.Error().Err(err).Str("appointment_id", appt.ID).Msg("failed to flag reminder")
			continue
		}
		r.Log.Info().
			Str("appointment_id", appt.ID).
			Str("patient_id", appt.PatientID).
			Time("start_time", appt.StartTime).
			Msg("appointment reminder sent")
	}
}
