package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"MailRamp/internal/models"
)

const queueColumns = `id, campaign_id, membership_id, lead_id, scheduled_at, status, error, sent_at, created_at, updated_at`

func scanQueueEntry(row pgx.Row) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := row.Scan(&e.ID, &e.CampaignID, &e.MembershipID, &e.LeadID, &e.ScheduledAt,
		&e.Status, &e.Error, &e.SentAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// CreateQueueEntry inserts e unless its membership already has an active
// entry. The partial unique index settles concurrent inserts.
func (s *Store) CreateQueueEntry(ctx context.Context, e *models.QueueEntry) (bool, error) {
	status := e.Status
	if status == "" {
		status = models.QueuePending
	}

	err := s.Pool.QueryRow(ctx,
		`INSERT INTO queue_entries (campaign_id, membership_id, lead_id, scheduled_at, status)
		 SELECT $1::bigint, $2::bigint, $3::bigint, $4::timestamptz, $5::text
		 WHERE NOT EXISTS (
		     SELECT 1 FROM queue_entries
		     WHERE membership_id = $2 AND status IN ('pending', 'sending')
		 )
		 ON CONFLICT DO NOTHING
		 RETURNING id, created_at, updated_at`,
		e.CampaignID, e.MembershipID, e.LeadID, e.ScheduledAt, string(status),
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.Status = status
	return true, nil
}

func (s *Store) CountActiveEntries(ctx context.Context, campaignID int64) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM queue_entries
		 WHERE campaign_id = $1 AND status IN ('pending', 'sending')`,
		campaignID,
	).Scan(&n)
	return n, err
}

func (s *Store) LastScheduledAt(ctx context.Context, campaignID int64) (*time.Time, error) {
	var last *time.Time
	err := s.Pool.QueryRow(ctx,
		`SELECT MAX(scheduled_at) FROM queue_entries
		 WHERE campaign_id = $1 AND status IN ('pending', 'sending')`,
		campaignID,
	).Scan(&last)
	return last, err
}

func (s *Store) NextDueEntry(ctx context.Context, campaignID int64, until time.Time) (*models.QueueEntry, error) {
	return scanQueueEntry(s.Pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM queue_entries
		 WHERE campaign_id = $1 AND status = 'pending' AND scheduled_at <= $2
		 ORDER BY scheduled_at, id
		 LIMIT 1`,
		campaignID, until,
	))
}

func (s *Store) ClaimQueueEntry(ctx context.Context, id int64, now time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE queue_entries SET status = 'sending', updated_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseQueueEntry(ctx context.Context, id int64, now time.Time) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE queue_entries SET status = 'pending', updated_at = $2
		 WHERE id = $1 AND status = 'sending'`,
		id, now,
	)
	_, err = s.changed(ctx, tag, err, "queue_entries", id)
	return err
}

// FinishQueueEntry resolves an entry that is sending, or was cancelled while
// its send was in flight.
func (s *Store) FinishQueueEntry(ctx context.Context, id int64, status models.QueueStatus, errMsg string, now time.Time) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE queue_entries
		 SET status = $2,
		     error = $3,
		     updated_at = $4,
		     sent_at = CASE WHEN $2 = 'sent' THEN $4 ELSE sent_at END
		 WHERE id = $1 AND status IN ('sending', 'cancelled')`,
		id, string(status), errMsg, now,
	)
	_, err = s.changed(ctx, tag, err, "queue_entries", id)
	return err
}

func (s *Store) CancelActiveEntries(ctx context.Context, campaignID int64, reason string, now time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE queue_entries SET status = 'cancelled', error = $2, updated_at = $3
		 WHERE campaign_id = $1 AND status IN ('pending', 'sending')`,
		campaignID, reason, now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReclaimStaleEntries returns entries stuck in sending since before
// olderThan to pending.
func (s *Store) ReclaimStaleEntries(ctx context.Context, olderThan, now time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE queue_entries SET status = 'pending', updated_at = $2
		 WHERE status = 'sending' AND updated_at < $1`,
		olderThan, now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) QueueDepth(ctx context.Context, campaignID int64) (map[models.QueueStatus]int, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT status, COUNT(*) FROM queue_entries WHERE campaign_id = $1 GROUP BY status`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	depth := make(map[models.QueueStatus]int)
	for rows.Next() {
		var (
			status models.QueueStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		depth[status] = n
	}
	return depth, rows.Err()
}

// ListQueueEntries lists a campaign's entries by schedule. An empty status
// matches every status and a non-positive limit returns all rows.
func (s *Store) ListQueueEntries(ctx context.Context, campaignID int64, status models.QueueStatus, limit int) ([]models.QueueEntry, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+queueColumns+` FROM queue_entries
		 WHERE campaign_id = $1 AND ($2::text = '' OR status = $2::text)
		 ORDER BY scheduled_at, id
		 LIMIT $3`,
		campaignID, string(status), limitArg(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.QueueEntry, 0)
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
