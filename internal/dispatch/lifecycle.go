package dispatch

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"MailRamp/internal/email"
	"MailRamp/internal/models"
	"MailRamp/internal/window"
)

// Validate reports the first configuration problem that keeps the campaign
// from being queued.
func Validate(c models.Campaign, fallback *time.Location) error {
	if strings.TrimSpace(c.Subject) == "" {
		return &ConfigError{CampaignID: c.ID, Field: "subject", Reason: "must not be empty"}
	}
	if strings.TrimSpace(c.Body) == "" {
		return &ConfigError{CampaignID: c.ID, Field: "body", Reason: "must not be empty"}
	}

	sample := email.Personalization{Email: "lead@example.com"}
	if _, err := email.RenderSubject(c.Subject, sample); err != nil {
		return &ConfigError{CampaignID: c.ID, Field: "subject", Reason: err.Error()}
	}
	if _, err := email.RenderBody(c.Body, sample); err != nil {
		return &ConfigError{CampaignID: c.ID, Field: "body", Reason: err.Error()}
	}

	w, err := window.FromCampaign(c, fallback)
	if err != nil {
		return &ConfigError{CampaignID: c.ID, Field: "schedule", Reason: err.Error()}
	}
	if len(w.Days) == 0 {
		return &ConfigError{CampaignID: c.ID, Field: "schedule", Reason: "no sending days allowed"}
	}
	if w.StartHour*60+w.StartMinute >= w.EndHour*60+w.EndMinute {
		return &ConfigError{CampaignID: c.ID, Field: "schedule", Reason: "sending hours end before they start"}
	}
	return nil
}

func (d *Dispatcher) load(ctx context.Context, id int64) (*models.Campaign, error) {
	c, err := d.Store.GetCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load campaign %d: %w", id, err)
	}
	return c, nil
}

func (d *Dispatcher) transition(ctx context.Context, c *models.Campaign, op string, from []models.CampaignStatus, to models.CampaignStatus) error {
	if !slices.Contains(from, c.Status) {
		return &StateError{CampaignID: c.ID, Status: c.Status, Op: op}
	}

	ok, err := d.Store.TransitionCampaign(ctx, c.ID, from, to)
	if err != nil {
		return fmt.Errorf("update campaign %d: %w", c.ID, err)
	}
	if !ok {
		return &StateError{CampaignID: c.ID, Status: c.Status, Op: op}
	}

	d.log.Info("campaign status changed",
		zap.Int64("campaign_id", c.ID),
		zap.String("from", string(c.Status)),
		zap.String("to", string(to)),
	)
	c.Status = to
	return nil
}

// StartCampaign validates the campaign, queues its planned leads and builds
// the first buffer of entries. It returns the number of entries created.
func (d *Dispatcher) StartCampaign(ctx context.Context, id int64, now time.Time) (int, error) {
	c, err := d.load(ctx, id)
	if err != nil {
		return 0, err
	}

	startable := []models.CampaignStatus{models.CampaignDraft, models.CampaignScheduled}
	if !slices.Contains(startable, c.Status) {
		return 0, &StateError{CampaignID: c.ID, Status: c.Status, Op: "start"}
	}

	if err := Validate(*c, d.opts.Location); err != nil {
		return 0, err
	}

	leads, err := d.Store.CountMemberships(ctx, c.ID, models.MembershipPlanned, models.MembershipQueued)
	if err != nil {
		return 0, fmt.Errorf("count memberships: %w", err)
	}
	if leads == 0 {
		return 0, &ConfigError{CampaignID: c.ID, Field: "leads", Reason: "campaign has no leads to send to"}
	}

	if _, err := d.Store.PromoteMemberships(ctx, c.ID, models.MembershipPlanned, models.MembershipQueued); err != nil {
		return 0, fmt.Errorf("queue memberships: %w", err)
	}

	if err := d.transition(ctx, c, "start", startable, models.CampaignInProgress); err != nil {
		return 0, err
	}

	return d.Queue.InitializeQueue(ctx, c.ID, 0, now)
}

// PauseCampaign stops sending and cancels the pending queue. Queued leads
// keep their status and are scheduled again on resume.
func (d *Dispatcher) PauseCampaign(ctx context.Context, id int64, now time.Time) (int64, error) {
	c, err := d.load(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := d.transition(ctx, c, "pause",
		[]models.CampaignStatus{models.CampaignInProgress}, models.CampaignPaused); err != nil {
		return 0, err
	}
	return d.Queue.CancelAll(ctx, c.ID, "campaign paused", now)
}

// ResumeCampaign re-queues planned leads, including those whose entry
// failed, and rebuilds the buffer.
func (d *Dispatcher) ResumeCampaign(ctx context.Context, id int64, now time.Time) (int, error) {
	c, err := d.load(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := d.transition(ctx, c, "resume",
		[]models.CampaignStatus{models.CampaignPaused}, models.CampaignInProgress); err != nil {
		return 0, err
	}

	if _, err := d.Store.PromoteMemberships(ctx, c.ID, models.MembershipPlanned, models.MembershipQueued); err != nil {
		return 0, fmt.Errorf("queue memberships: %w", err)
	}
	return d.Queue.InitializeQueue(ctx, c.ID, 0, now)
}

// CancelCampaign ends the campaign for good. Send history is kept.
func (d *Dispatcher) CancelCampaign(ctx context.Context, id int64, now time.Time) (int64, error) {
	c, err := d.load(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := d.transition(ctx, c, "cancel", []models.CampaignStatus{
		models.CampaignDraft,
		models.CampaignScheduled,
		models.CampaignInProgress,
		models.CampaignPaused,
	}, models.CampaignCancelled); err != nil {
		return 0, err
	}
	return d.Queue.CancelAll(ctx, c.ID, "campaign cancelled", now)
}

// RequeueMembership puts a lead whose entry failed back in line. A
// completed campaign is reopened for it.
func (d *Dispatcher) RequeueMembership(ctx context.Context, membershipID int64, now time.Time) error {
	m, err := d.Store.GetMembership(ctx, membershipID)
	if err != nil {
		return fmt.Errorf("load membership %d: %w", membershipID, err)
	}
	if m.Status != models.MembershipPlanned {
		return fmt.Errorf("membership %d is %s: %w", m.ID, m.Status, ErrCampaignState)
	}

	c, err := d.load(ctx, m.CampaignID)
	if err != nil {
		return err
	}

	switch c.Status {
	case models.CampaignInProgress, models.CampaignPaused:
	case models.CampaignCompleted:
		if err := d.transition(ctx, c, "requeue",
			[]models.CampaignStatus{models.CampaignCompleted}, models.CampaignInProgress); err != nil {
			return err
		}
	default:
		return &StateError{CampaignID: c.ID, Status: c.Status, Op: "requeue"}
	}

	if err := d.Store.SetMembershipStatus(ctx, m.ID, models.MembershipQueued, nil); err != nil {
		return fmt.Errorf("update membership %d: %w", m.ID, err)
	}

	if c.Status == models.CampaignInProgress {
		if _, err := d.Queue.Refill(ctx, c.ID, now); err != nil {
			return err
		}
	}

	d.log.Info("membership requeued",
		zap.Int64("campaign_id", c.ID),
		zap.Int64("membership_id", m.ID),
	)
	return nil
}

// ImportLeads adds leads to a campaign that has not finished. Leads of a
// running campaign are queued right away; a lead already in the campaign is
// skipped. It returns the number of memberships created.
func (d *Dispatcher) ImportLeads(ctx context.Context, campaignID int64, leads []models.Lead, now time.Time) (int, error) {
	c, err := d.load(ctx, campaignID)
	if err != nil {
		return 0, err
	}

	status := models.MembershipPlanned
	switch c.Status {
	case models.CampaignDraft, models.CampaignScheduled:
	case models.CampaignInProgress, models.CampaignPaused:
		status = models.MembershipQueued
	default:
		return 0, &StateError{CampaignID: c.ID, Status: c.Status, Op: "import leads"}
	}

	added := 0
	for i := range leads {
		lead := leads[i]
		if err := d.Store.CreateLead(ctx, &lead); err != nil {
			return added, fmt.Errorf("create lead %s: %w", lead.Email, err)
		}
		if lead.Blocked {
			continue
		}

		ok, err := d.Store.CreateMembership(ctx, &models.Membership{
			CampaignID: c.ID,
			LeadID:     lead.ID,
			Status:     status,
			CreatedAt:  now.Add(time.Duration(i) * time.Microsecond),
		})
		if err != nil {
			return added, fmt.Errorf("add lead %d to campaign %d: %w", lead.ID, c.ID, err)
		}
		if ok {
			added++
		}
	}

	d.log.Info("leads imported",
		zap.Int64("campaign_id", c.ID),
		zap.Int("rows", len(leads)),
		zap.Int("added", added),
	)

	if added > 0 && c.Status == models.CampaignInProgress {
		if _, err := d.Queue.Refill(ctx, c.ID, now); err != nil {
			return added, err
		}
	}
	return added, nil
}
