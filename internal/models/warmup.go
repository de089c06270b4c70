package models

import "time"

// WarmupDayConfig is one day of the ramp.
type WarmupDayConfig struct {
	Day           int `json:"day"`
	DailyLimit    int `json:"daily_limit"`
	CampaignLimit int `json:"campaign_limit"`
}

// WarmupSchedule is ordered by day, starting at day 1.
type WarmupSchedule []WarmupDayConfig

// Day returns the config for day n (1-based).
func (s WarmupSchedule) Day(n int) (WarmupDayConfig, bool) {
	if n < 1 || n > len(s) {
		return WarmupDayConfig{}, false
	}
	return s[n-1], true
}

func (s WarmupSchedule) Length() int { return len(s) }

// DefaultWarmupSchedule is the 30-day ramp used when no override is configured.
func DefaultWarmupSchedule() WarmupSchedule {
	limits := [][2]int{
		{15, 5}, {15, 5},
		{20, 10}, {20, 10}, {20, 10}, {25, 10}, {25, 10},
		{25, 15}, {25, 15}, {30, 15}, {30, 15}, {30, 15}, {35, 15}, {35, 15},
	}
	for len(limits) < 30 {
		limits = append(limits, [2]int{30, 20})
	}

	schedule := make(WarmupSchedule, len(limits))
	for i, l := range limits {
		schedule[i] = WarmupDayConfig{Day: i + 1, DailyLimit: l[0], CampaignLimit: l[1]}
	}
	return schedule
}

type WarmupEntry struct {
	ID          int64       `json:"id"`
	MailboxID   int64       `json:"mailbox_id"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	ToEmail     string      `json:"to_email"`
	Subject     string      `json:"subject"`
	Body        string      `json:"body"`
	WarmupDay   int         `json:"warmup_day"`
	Status      QueueStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
	ClaimedAt   *time.Time  `json:"claimed_at,omitempty"`
	SentAt      *time.Time  `json:"sent_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
