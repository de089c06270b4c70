package db

import (
	"context"
	"time"

	"MailRamp/internal/models"
)

// InsertSendRecord appends one attempt to the audit log.
func (s *Store) InsertSendRecord(ctx context.Context, r *models.SendRecord) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	err := s.Pool.QueryRow(ctx,
		`INSERT INTO send_records
		 (kind, mailbox_id, campaign_id, lead_id, queue_entry_id, to_email, message_id, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		string(r.Kind), r.MailboxID, r.CampaignID, r.LeadID, r.QueueEntryID,
		r.ToEmail, r.MessageID, string(r.Status), r.Error, createdAt,
	).Scan(&r.ID)
	if err != nil {
		return err
	}
	r.CreatedAt = createdAt
	return nil
}

func (s *Store) HasSentRecord(ctx context.Context, campaignID, leadID int64) (bool, error) {
	var ok bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM send_records
		     WHERE campaign_id = $1 AND lead_id = $2 AND status = 'sent'
		 )`,
		campaignID, leadID,
	).Scan(&ok)
	return ok, err
}

func (s *Store) LastSentAt(ctx context.Context, campaignID int64) (*time.Time, error) {
	var last *time.Time
	err := s.Pool.QueryRow(ctx,
		`SELECT MAX(created_at) FROM send_records WHERE campaign_id = $1 AND status = 'sent'`,
		campaignID,
	).Scan(&last)
	return last, err
}

func (s *Store) CountSentSince(ctx context.Context, campaignID int64, since time.Time) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM send_records
		 WHERE campaign_id = $1 AND status = 'sent' AND created_at >= $2`,
		campaignID, since,
	).Scan(&n)
	return n, err
}

// WarmupDailyCounts groups a mailbox's warmup attempts by calendar day in loc.
func (s *Store) WarmupDailyCounts(ctx context.Context, mailboxID int64, since time.Time, loc *time.Location) ([]models.DailyCount, error) {
	if loc == nil {
		loc = time.UTC
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT (created_at AT TIME ZONE $3::text)::date AS day,
		        COUNT(*) FILTER (WHERE status = 'sent'),
		        COUNT(*) FILTER (WHERE status IN ('error', 'bounced'))
		 FROM send_records
		 WHERE kind = 'warmup' AND mailbox_id = $1 AND created_at >= $2
		 GROUP BY day
		 ORDER BY day`,
		mailboxID, since, loc.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.DailyCount, 0)
	for rows.Next() {
		var c models.DailyCount
		if err := rows.Scan(&c.Date, &c.Sent, &c.Failed); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
