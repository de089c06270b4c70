package models

import "time"

type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueSending   QueueStatus = "sending"
	QueueSent      QueueStatus = "sent"
	QueueFailed    QueueStatus = "failed"
	QueueCancelled QueueStatus = "cancelled"
)

// Active reports whether the entry still blocks another entry for its membership.
func (s QueueStatus) Active() bool {
	return s == QueuePending || s == QueueSending
}

type QueueEntry struct {
	ID           int64       `json:"id"`
	CampaignID   int64       `json:"campaign_id"`
	MembershipID int64       `json:"membership_id"`
	LeadID       int64       `json:"lead_id"`
	ScheduledAt  time.Time   `json:"scheduled_at"`
	Status       QueueStatus `json:"status"`
	Error        string      `json:"error,omitempty"`
	SentAt       *time.Time  `json:"sent_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
