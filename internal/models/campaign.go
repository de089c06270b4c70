package models

import "time"

type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "DRAFT"
	CampaignScheduled  CampaignStatus = "SCHEDULED"
	CampaignInProgress CampaignStatus = "IN_PROGRESS"
	CampaignPaused     CampaignStatus = "PAUSED"
	CampaignCompleted  CampaignStatus = "COMPLETED"
	CampaignCancelled  CampaignStatus = "CANCELLED"
)

type Campaign struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	SenderID int64          `json:"sender_id"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Status   CampaignStatus `json:"status"`

	AllowedDays     []string `json:"allowed_days"`
	StartHour       int      `json:"start_hour"`
	StartMinute     int      `json:"start_minute"`
	EndHour         int      `json:"end_hour"`
	EndMinute       int      `json:"end_minute"`
	RespectHolidays bool     `json:"respect_holidays"`
	TargetCountries []string `json:"target_countries"`
	Timezone        string   `json:"timezone"`

	DelayBetweenEmails int        `json:"delay_between_emails"`
	MaxEmailsPerDay    int        `json:"max_emails_per_day"`
	ScheduledAt        *time.Time `json:"scheduled_at,omitempty"`
	LastTickAt         *time.Time `json:"last_tick_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Delay returns the base spacing between two campaign sends.
func (c Campaign) Delay() time.Duration {
	if c.DelayBetweenEmails <= 0 {
		return 90 * time.Second
	}
	return time.Duration(c.DelayBetweenEmails) * time.Second
}

type Lead struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Language  string `json:"language"`
	Blocked   bool   `json:"blocked"`
}

type MembershipStatus string

const (
	MembershipPlanned MembershipStatus = "planned"
	MembershipQueued  MembershipStatus = "queued"
	MembershipSent    MembershipStatus = "sent"
	MembershipSkipped MembershipStatus = "skipped"
	MembershipBlocked MembershipStatus = "blocked"
)

// Membership links one lead to one campaign.
type Membership struct {
	ID         int64            `json:"id"`
	CampaignID int64            `json:"campaign_id"`
	LeadID     int64            `json:"lead_id"`
	Status     MembershipStatus `json:"status"`
	SentAt     *time.Time       `json:"sent_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`

	Lead Lead `json:"lead"`
}
