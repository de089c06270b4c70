package models

import "time"

type SendStatus string

const (
	SendSent    SendStatus = "sent"
	SendError   SendStatus = "error"
	SendBounced SendStatus = "bounced"
	SendSkipped SendStatus = "skipped"
)

type SendKind string

const (
	KindCampaign SendKind = "campaign"
	KindWarmup   SendKind = "warmup"
	KindTest     SendKind = "test"
)

// SendRecord is written once per attempt and never updated.
type SendRecord struct {
	ID           int64      `json:"id"`
	Kind         SendKind   `json:"kind"`
	MailboxID    *int64     `json:"mailbox_id,omitempty"`
	CampaignID   *int64     `json:"campaign_id,omitempty"`
	LeadID       *int64     `json:"lead_id,omitempty"`
	QueueEntryID *int64     `json:"queue_entry_id,omitempty"`
	ToEmail      string     `json:"to_email"`
	MessageID    string     `json:"message_id,omitempty"`
	Status       SendStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DailyCount is one row of a per-day reporting series.
type DailyCount struct {
	Date   time.Time `json:"date"`
	Sent   int       `json:"sent"`
	Failed int       `json:"failed"`
}
