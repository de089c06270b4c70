package models

import "time"

type WarmupStatus string

const (
	WarmupInactive      WarmupStatus = "inactive"
	WarmupDNSPending    WarmupStatus = "dns_pending"
	WarmupReadyToWarmup WarmupStatus = "ready_to_warmup"
	WarmupWarming       WarmupStatus = "warming"
	WarmupReady         WarmupStatus = "ready"
	WarmupFailed        WarmupStatus = "failed"
)

// Sender is the identity that owns a pool of mailboxes.
type Sender struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	MainMailboxID *int64 `json:"main_mailbox_id,omitempty"`
}

type Mailbox struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"sender_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`

	SMTPHost   string `json:"smtp_host"`
	SMTPPort   int    `json:"smtp_port"`
	SMTPUser   string `json:"smtp_user"`
	SMTPPass   string `json:"-"`
	SMTPSecure bool   `json:"smtp_secure"`

	Priority         int        `json:"priority"`
	DailyLimit       int        `json:"daily_limit"`
	CurrentDailySent int        `json:"current_daily_sent"`
	LastResetDate    *time.Time `json:"last_reset_date,omitempty"`
	IsActive         bool       `json:"is_active"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	TotalSent        int        `json:"total_sent"`

	WarmupStatus      WarmupStatus `json:"warmup_status"`
	WarmupDay         int          `json:"warmup_day"`
	WarmupDailyLimit  int          `json:"warmup_daily_limit"`
	WarmupTodaySent   int          `json:"warmup_today_sent"`
	WarmupStartDate   *time.Time   `json:"warmup_start_date,omitempty"`
	WarmupCompletedAt *time.Time   `json:"warmup_completed_at,omitempty"`
	Forced            bool         `json:"forced"`

	ConsecutiveFailures int    `json:"consecutive_failures"`
	DeactivatedReason   string `json:"deactivated_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WarmupUpdate is the full warmup column set written by a status transition.
type WarmupUpdate struct {
	Status      WarmupStatus
	Day         int
	DailyLimit  int
	TodaySent   int
	StartDate   *time.Time
	CompletedAt *time.Time
	Forced      bool
}

// WarmupState extracts the current warmup columns so callers can patch them.
func (m Mailbox) WarmupState() WarmupUpdate {
	return WarmupUpdate{
		Status:      m.WarmupStatus,
		Day:         m.WarmupDay,
		DailyLimit:  m.WarmupDailyLimit,
		TodaySent:   m.WarmupTodaySent,
		StartDate:   m.WarmupStartDate,
		CompletedAt: m.WarmupCompletedAt,
		Forced:      m.Forced,
	}
}
