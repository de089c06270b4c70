package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"MailRamp/internal/models"
)

const mailboxColumns = `id, sender_id, email, display_name,
	smtp_host, smtp_port, smtp_user, smtp_pass, smtp_secure,
	priority, daily_limit, current_daily_sent, last_reset_date, is_active, last_used_at, total_sent,
	warmup_status, warmup_day, warmup_daily_limit, warmup_today_sent, warmup_start_date, warmup_completed_at, forced,
	consecutive_failures, deactivated_reason, created_at, updated_at`

func scanMailbox(row pgx.Row) (*models.Mailbox, error) {
	var mb models.Mailbox
	err := row.Scan(
		&mb.ID, &mb.SenderID, &mb.Email, &mb.DisplayName,
		&mb.SMTPHost, &mb.SMTPPort, &mb.SMTPUser, &mb.SMTPPass, &mb.SMTPSecure,
		&mb.Priority, &mb.DailyLimit, &mb.CurrentDailySent, &mb.LastResetDate, &mb.IsActive, &mb.LastUsedAt, &mb.TotalSent,
		&mb.WarmupStatus, &mb.WarmupDay, &mb.WarmupDailyLimit, &mb.WarmupTodaySent, &mb.WarmupStartDate, &mb.WarmupCompletedAt, &mb.Forced,
		&mb.ConsecutiveFailures, &mb.DeactivatedReason, &mb.CreatedAt, &mb.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &mb, nil
}

func (s *Store) listMailboxes(ctx context.Context, where string, args ...any) ([]models.Mailbox, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+mailboxColumns+` FROM mailboxes WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Mailbox, 0)
	for rows.Next() {
		mb, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *mb)
	}
	return out, rows.Err()
}

func (s *Store) GetSender(ctx context.Context, id int64) (*models.Sender, error) {
	var sender models.Sender
	err := s.Pool.QueryRow(ctx,
		`SELECT id, name, main_mailbox_id FROM senders WHERE id = $1`, id,
	).Scan(&sender.ID, &sender.Name, &sender.MainMailboxID)
	if err != nil {
		return nil, notFound(err)
	}
	return &sender, nil
}

func (s *Store) GetMailbox(ctx context.Context, id int64) (*models.Mailbox, error) {
	return scanMailbox(s.Pool.QueryRow(ctx,
		`SELECT `+mailboxColumns+` FROM mailboxes WHERE id = $1`, id))
}

func (s *Store) ListSenderMailboxes(ctx context.Context, senderID int64) ([]models.Mailbox, error) {
	return s.listMailboxes(ctx, `sender_id = $1`, senderID)
}

func (s *Store) ListMailboxesByWarmupStatus(ctx context.Context, status models.WarmupStatus) ([]models.Mailbox, error) {
	return s.listMailboxes(ctx, `warmup_status = $1`, string(status))
}

func (s *Store) ListActiveMailboxes(ctx context.Context) ([]models.Mailbox, error) {
	return s.listMailboxes(ctx, `is_active`)
}

// ReserveMailboxSlot increments today's campaign counter unless it already
// reached limit. Counters from an earlier day are reset in the same update.
func (s *Store) ReserveMailboxSlot(ctx context.Context, id int64, limit int, today, now time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE mailboxes
		 SET current_daily_sent = CASE WHEN last_reset_date = $3 THEN current_daily_sent + 1 ELSE 1 END,
		     warmup_today_sent  = CASE WHEN last_reset_date = $3 THEN warmup_today_sent ELSE 0 END,
		     last_reset_date    = $3,
		     total_sent         = total_sent + 1,
		     last_used_at       = $4,
		     updated_at         = $4
		 WHERE id = $1
		   AND is_active
		   AND $2::int > 0
		   AND (CASE WHEN last_reset_date = $3 THEN current_daily_sent ELSE 0 END) < $2::int`,
		id, limit, today, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseMailboxSlot(ctx context.Context, id int64, today time.Time) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE mailboxes
		 SET current_daily_sent = current_daily_sent - 1,
		     total_sent = GREATEST(total_sent - 1, 0),
		     updated_at = NOW()
		 WHERE id = $1 AND last_reset_date = $2 AND current_daily_sent > 0`,
		id, today,
	)
	return err
}

func (s *Store) ResetMailboxCounters(ctx context.Context, today time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE mailboxes
		 SET current_daily_sent = 0,
		     warmup_today_sent = 0,
		     last_reset_date = $1,
		     updated_at = NOW()
		 WHERE last_reset_date IS DISTINCT FROM $1`,
		today,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ReserveWarmupSlot(ctx context.Context, id int64, today, now time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE mailboxes
		 SET current_daily_sent = CASE WHEN last_reset_date = $2 THEN current_daily_sent ELSE 0 END,
		     warmup_today_sent  = CASE WHEN last_reset_date = $2 THEN warmup_today_sent + 1 ELSE 1 END,
		     last_reset_date    = $2,
		     updated_at         = $3
		 WHERE id = $1
		   AND is_active
		   AND warmup_status = 'warming'
		   AND (CASE WHEN last_reset_date = $2 THEN warmup_today_sent ELSE 0 END) < warmup_daily_limit`,
		id, today, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// TransitionWarmup writes u when the mailbox is in one of from. An empty
// from matches any status.
func (s *Store) TransitionWarmup(ctx context.Context, id int64, from []models.WarmupStatus, u models.WarmupUpdate) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE mailboxes
		 SET warmup_status = $2,
		     warmup_day = $3,
		     warmup_daily_limit = $4,
		     warmup_today_sent = $5,
		     warmup_start_date = $6,
		     warmup_completed_at = $7,
		     forced = $8,
		     updated_at = NOW()
		 WHERE id = $1
		   AND (cardinality($9::text[]) = 0 OR warmup_status = ANY($9::text[]))`,
		id, string(u.Status), u.Day, u.DailyLimit, u.TodaySent, u.StartDate, u.CompletedAt, u.Forced, strs(from),
	)
	return s.changed(ctx, tag, err, "mailboxes", id)
}

func (s *Store) RecordMailboxFailure(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx,
		`UPDATE mailboxes
		 SET consecutive_failures = consecutive_failures + 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING consecutive_failures`,
		id,
	).Scan(&n)
	return n, notFound(err)
}

func (s *Store) ClearMailboxFailures(ctx context.Context, id int64) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE mailboxes SET consecutive_failures = 0 WHERE id = $1 AND consecutive_failures <> 0`, id)
	return err
}

func (s *Store) DeactivateMailbox(ctx context.Context, id int64, reason string) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE mailboxes SET is_active = FALSE, deactivated_reason = $2, updated_at = NOW() WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) ReactivateMailbox(ctx context.Context, id int64) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE mailboxes
		 SET is_active = TRUE, deactivated_reason = '', consecutive_failures = 0, updated_at = NOW()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
