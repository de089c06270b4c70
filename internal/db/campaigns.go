package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"MailRamp/internal/models"
)

const campaignColumns = `id, name, sender_id, subject, body, status,
	allowed_days, start_hour, start_minute, end_hour, end_minute,
	respect_holidays, target_countries, timezone,
	delay_between_emails, max_emails_per_day, scheduled_at, last_tick_at,
	created_at, updated_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.SenderID, &c.Subject, &c.Body, &c.Status,
		&c.AllowedDays, &c.StartHour, &c.StartMinute, &c.EndHour, &c.EndMinute,
		&c.RespectHolidays, &c.TargetCountries, &c.Timezone,
		&c.DelayBetweenEmails, &c.MaxEmailsPerDay, &c.ScheduledAt, &c.LastTickAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	return scanCampaign(s.Pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
}

func (s *Store) ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) TransitionCampaign(ctx context.Context, id int64, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE campaigns SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status = ANY($3::text[])`,
		id, string(to), strs(from),
	)
	return s.changed(ctx, tag, err, "campaigns", id)
}

// ClaimCampaignTick records minute as the campaign's last tick. Only the first
// caller for a given minute succeeds.
func (s *Store) ClaimCampaignTick(ctx context.Context, id int64, minute time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE campaigns SET last_tick_at = $2
		 WHERE id = $1 AND (last_tick_at IS NULL OR last_tick_at < $2)`,
		id, minute,
	)
	return s.changed(ctx, tag, err, "campaigns", id)
}

// ----------------------------
// Memberships
// ----------------------------

func (s *Store) CountMemberships(ctx context.Context, campaignID int64, statuses ...models.MembershipStatus) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM campaign_leads
		 WHERE campaign_id = $1
		   AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))`,
		campaignID, strs(statuses),
	).Scan(&n)
	return n, err
}

func (s *Store) PromoteMemberships(ctx context.Context, campaignID int64, from, to models.MembershipStatus) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE campaign_leads cl SET status = $3
		 FROM leads l
		 WHERE cl.lead_id = l.id
		   AND cl.campaign_id = $1
		   AND cl.status = $2
		   AND NOT l.blocked`,
		campaignID, string(from), string(to),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreateLead inserts l, or loads the existing lead with the same email into it.
func (s *Store) CreateLead(ctx context.Context, l *models.Lead) error {
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO leads (email, first_name, last_name, company, language, blocked)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT ((lower(email))) DO NOTHING
		 RETURNING id`,
		l.Email, l.FirstName, l.LastName, l.Company, l.Language, l.Blocked,
	).Scan(&l.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	return s.Pool.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, company, language, blocked
		 FROM leads WHERE lower(email) = lower($1)`,
		l.Email,
	).Scan(&l.ID, &l.Email, &l.FirstName, &l.LastName, &l.Company, &l.Language, &l.Blocked)
}

// CreateMembership adds a lead to a campaign. It returns false when the lead
// is already a member.
func (s *Store) CreateMembership(ctx context.Context, m *models.Membership) (bool, error) {
	status := m.Status
	if status == "" {
		status = models.MembershipPlanned
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	err := s.Pool.QueryRow(ctx,
		`INSERT INTO campaign_leads (campaign_id, lead_id, status, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (campaign_id, lead_id) DO NOTHING
		 RETURNING id`,
		m.CampaignID, m.LeadID, string(status), createdAt,
	).Scan(&m.ID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case isForeignKeyViolation(err):
		return false, models.ErrNotFound
	case err != nil:
		return false, err
	}

	m.Status = status
	m.CreatedAt = createdAt
	return true, nil
}

const membershipColumns = `cl.id, cl.campaign_id, cl.lead_id, cl.status, cl.sent_at, cl.created_at,
	l.id, l.email, l.first_name, l.last_name, l.company, l.language, l.blocked`

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var m models.Membership
	err := row.Scan(
		&m.ID, &m.CampaignID, &m.LeadID, &m.Status, &m.SentAt, &m.CreatedAt,
		&m.Lead.ID, &m.Lead.Email, &m.Lead.FirstName, &m.Lead.LastName,
		&m.Lead.Company, &m.Lead.Language, &m.Lead.Blocked,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// ListQueueableMemberships returns queued members of an unblocked lead that
// have no pending or sending entry, oldest first. A negative limit means all.
func (s *Store) ListQueueableMemberships(ctx context.Context, campaignID int64, limit int) ([]models.Membership, error) {
	if limit == 0 {
		return []models.Membership{}, nil
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT `+membershipColumns+`
		 FROM campaign_leads cl
		 JOIN leads l ON l.id = cl.lead_id
		 WHERE cl.campaign_id = $1
		   AND cl.status = 'queued'
		   AND NOT l.blocked
		   AND NOT EXISTS (
		       SELECT 1 FROM queue_entries q
		       WHERE q.membership_id = cl.id AND q.status IN ('pending', 'sending')
		   )
		 ORDER BY cl.created_at, cl.id
		 LIMIT $2`,
		campaignID, limitArg(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) GetMembership(ctx context.Context, id int64) (*models.Membership, error) {
	return scanMembership(s.Pool.QueryRow(ctx,
		`SELECT `+membershipColumns+`
		 FROM campaign_leads cl
		 JOIN leads l ON l.id = cl.lead_id
		 WHERE cl.id = $1`,
		id,
	))
}

func (s *Store) SetMembershipStatus(ctx context.Context, id int64, status models.MembershipStatus, sentAt *time.Time) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE campaign_leads SET status = $2, sent_at = COALESCE($3, sent_at) WHERE id = $1`,
		id, string(status), sentAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
