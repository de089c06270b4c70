package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"MailRamp/internal/models"
)

func (s *Store) HasWarmupEntries(ctx context.Context, mailboxID int64, from, to time.Time) (bool, error) {
	var ok bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM warmup_entries
		     WHERE mailbox_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		 )`,
		mailboxID, from, to,
	).Scan(&ok)
	return ok, err
}

// CreateWarmupEntries inserts a day's plan in one transaction and fills in
// the generated ids.
func (s *Store) CreateWarmupEntries(ctx context.Context, entries []models.WarmupEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		status := e.Status
		if status == "" {
			status = models.QueuePending
		}
		batch.Queue(
			`INSERT INTO warmup_entries (mailbox_id, scheduled_at, to_email, subject, body, warmup_day, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at`,
			e.MailboxID, e.ScheduledAt, e.ToEmail, e.Subject, e.Body, e.WarmupDay, string(status),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range entries {
		if err := results.QueryRow().Scan(&entries[i].ID, &entries[i].CreatedAt); err != nil {
			results.Close()
			return err
		}
		if entries[i].Status == "" {
			entries[i].Status = models.QueuePending
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) NextDueWarmupEntry(ctx context.Context, until time.Time) (*models.WarmupEntry, error) {
	var e models.WarmupEntry
	err := s.Pool.QueryRow(ctx,
		`SELECT id, mailbox_id, scheduled_at, to_email, subject, body, warmup_day, status, error, claimed_at, sent_at, created_at
		 FROM warmup_entries
		 WHERE status = 'pending' AND scheduled_at <= $1
		 ORDER BY scheduled_at, id
		 LIMIT 1`,
		until,
	).Scan(&e.ID, &e.MailboxID, &e.ScheduledAt, &e.ToEmail, &e.Subject, &e.Body,
		&e.WarmupDay, &e.Status, &e.Error, &e.ClaimedAt, &e.SentAt, &e.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (s *Store) ClaimWarmupEntry(ctx context.Context, id int64, now time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE warmup_entries SET status = 'sending', claimed_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReclaimStaleWarmupEntries returns warmup entries claimed before olderThan
// and never finished to pending.
func (s *Store) ReclaimStaleWarmupEntries(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE warmup_entries SET status = 'pending', claimed_at = NULL
		 WHERE status = 'sending' AND (claimed_at IS NULL OR claimed_at < $1)`,
		olderThan,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) FinishWarmupEntry(ctx context.Context, id int64, status models.QueueStatus, errMsg string, now time.Time) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE warmup_entries
		 SET status = $2,
		     error = $3,
		     sent_at = CASE WHEN $2 = 'sent' THEN $4 ELSE sent_at END
		 WHERE id = $1`,
		id, string(status), errMsg, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) CancelWarmupEntries(ctx context.Context, mailboxID int64, reason string) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE warmup_entries SET status = 'cancelled', error = $2
		 WHERE mailbox_id = $1 AND status IN ('pending', 'sending')`,
		mailboxID, reason,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
