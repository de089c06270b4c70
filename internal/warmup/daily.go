package warmup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"MailRamp/internal/models"
)

// DayReport summarises one RollDay run.
type DayReport struct {
	Reset     int64 `json:"reset"`
	Advanced  int   `json:"advanced"`
	Completed int   `json:"completed"`
	Scheduled int   `json:"scheduled"`
}

// ResetDailyCounters zeroes the counters of every mailbox whose last reset
// was before today. Running it twice on one day changes nothing.
func (m *Machine) ResetDailyCounters(ctx context.Context, now time.Time) (int64, error) {
	n, err := m.store.ResetMailboxCounters(ctx, models.CivilDate(now, m.opts.Location))
	if err != nil {
		return 0, fmt.Errorf("reset mailbox counters: %w", err)
	}
	return n, nil
}

// daysBetween counts calendar days from a to b in loc.
func daysBetween(a, b time.Time, loc *time.Location) int {
	return int(models.CivilDate(b, loc).Sub(models.CivilDate(a, loc)).Hours() / 24)
}

// AdvanceWarmupDays sets every warming mailbox to the ramp day implied by
// its start date. Mailboxes past the end of the ramp become ready.
func (m *Machine) AdvanceWarmupDays(ctx context.Context, now time.Time) (advanced, completed int, err error) {
	list, err := m.store.ListMailboxesByWarmupStatus(ctx, models.WarmupWarming)
	if err != nil {
		return 0, 0, fmt.Errorf("list warming mailboxes: %w", err)
	}

	for i := range list {
		mb := &list[i]
		if mb.WarmupStartDate == nil {
			continue
		}

		day := daysBetween(*mb.WarmupStartDate, now, m.opts.Location) + 1
		if day <= mb.WarmupDay {
			continue
		}

		var u models.WarmupUpdate
		if cfg, ok := m.opts.Schedule.Day(day); ok {
			u = mb.WarmupState()
			u.Day = day
			u.DailyLimit = cfg.DailyLimit
		} else {
			done := now
			u = models.WarmupUpdate{
				Status:      models.WarmupReady,
				StartDate:   mb.WarmupStartDate,
				CompletedAt: &done,
			}
		}

		if err := m.transition(ctx, mb, []models.WarmupStatus{models.WarmupWarming}, u); err != nil {
			m.log.Warn("warmup day not advanced",
				zap.Int64("mailbox_id", mb.ID),
				zap.Error(err),
			)
			continue
		}

		if u.Status == models.WarmupReady {
			completed++
		} else {
			advanced++
		}
	}

	return advanced, completed, nil
}

// RollDay is the single daily-boundary step: reset counters, advance ramp
// days, then schedule the day's internal traffic for every warming mailbox.
// Every part is a no-op when it already ran today.
func (m *Machine) RollDay(ctx context.Context, now time.Time) (DayReport, error) {
	var report DayReport

	reset, err := m.ResetDailyCounters(ctx, now)
	if err != nil {
		return report, err
	}
	report.Reset = reset

	report.Advanced, report.Completed, err = m.AdvanceWarmupDays(ctx, now)
	if err != nil {
		return report, err
	}

	list, err := m.store.ListMailboxesByWarmupStatus(ctx, models.WarmupWarming)
	if err != nil {
		return report, fmt.Errorf("list warming mailboxes: %w", err)
	}
	for _, mb := range list {
		n, err := m.ScheduleDay(ctx, mb, now)
		if err != nil {
			m.log.Error("failed to schedule warmup day",
				zap.Int64("mailbox_id", mb.ID),
				zap.Error(err),
			)
			continue
		}
		report.Scheduled += n
	}

	m.log.Info("warmup day rolled",
		zap.Int64("reset", report.Reset),
		zap.Int("advanced", report.Advanced),
		zap.Int("completed", report.Completed),
		zap.Int("scheduled", report.Scheduled),
	)
	return report, nil
}
