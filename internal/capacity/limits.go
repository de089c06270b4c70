// Package capacity tracks how many sends each mailbox has left today and
// chooses which mailbox of a sender should carry the next campaign email.
package capacity

import (
	"time"

	"MailRamp/internal/models"
)

// SafetyCap is the daily limit of a mailbox that has not finished warmup and
// is not warming either.
const SafetyCap = 10

// EffectiveDailyLimit is the number of campaign sends the mailbox may carry
// per day in its current warmup state.
func EffectiveDailyLimit(mb models.Mailbox, schedule models.WarmupSchedule) int {
	switch mb.WarmupStatus {
	case models.WarmupReady:
		return mb.DailyLimit

	case models.WarmupFailed:
		if mb.Forced {
			return mb.DailyLimit
		}
		return 0

	case models.WarmupWarming:
		limit := min(mb.DailyLimit, mb.WarmupDailyLimit)
		if day, ok := schedule.Day(mb.WarmupDay); ok {
			limit = min(limit, day.CampaignLimit)
		}
		return max(limit, 0)

	default:
		return SafetyCap
	}
}

// Counters are a mailbox's send counters as they read on a given day.
type Counters struct {
	Sent       int
	WarmupSent int
}

// EffectiveCounters returns the stored counters, or zero when they belong to
// an earlier day. It never writes.
func EffectiveCounters(mb models.Mailbox, today time.Time) Counters {
	if !models.SameDay(mb.LastResetDate, today) {
		return Counters{}
	}
	return Counters{Sent: mb.CurrentDailySent, WarmupSent: mb.WarmupTodaySent}
}

// Remaining is the effective limit minus today's sends, never negative.
func Remaining(mb models.Mailbox, schedule models.WarmupSchedule, today time.Time) int {
	return max(0, EffectiveDailyLimit(mb, schedule)-EffectiveCounters(mb, today).Sent)
}
