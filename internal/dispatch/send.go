package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"MailRamp/internal/audit"
	"MailRamp/internal/capacity"
	"MailRamp/internal/email"
	"MailRamp/internal/models"
)

// deliver sends a claimed entry. The entry is in sending on entry and is
// resolved to sent, failed, cancelled or back to pending on return.
func (d *Dispatcher) deliver(ctx context.Context, c *models.Campaign, e *models.QueueEntry, now time.Time) (Result, error) {
	res := Result{CampaignID: c.ID, EntryID: e.ID}

	m, err := d.Store.GetMembership(ctx, e.MembershipID)
	if err != nil {
		return res, d.release(ctx, e, now, fmt.Errorf("load membership %d: %w", e.MembershipID, err))
	}
	lead := m.Lead

	// ----------------------------
	// Dedupe
	// ----------------------------
	sent, err := d.Audit.HasSent(ctx, c.ID, e.LeadID)
	if err != nil {
		return res, d.release(ctx, e, now, fmt.Errorf("check previous send: %w", err))
	}
	if sent {
		if err := d.Store.FinishQueueEntry(ctx, e.ID, models.QueueSent, "already sent", now); err != nil {
			return res, fmt.Errorf("finish entry %d: %w", e.ID, err)
		}
		if err := d.Store.SetMembershipStatus(ctx, m.ID, models.MembershipSent, nil); err != nil {
			return res, fmt.Errorf("update membership %d: %w", m.ID, err)
		}
		d.log.Info("entry already sent, closed without sending",
			zap.Int64("campaign_id", c.ID),
			zap.Int64("entry_id", e.ID),
			zap.Int64("lead_id", e.LeadID),
		)
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	if lead.Blocked {
		if err := d.Store.FinishQueueEntry(ctx, e.ID, models.QueueCancelled, "lead blocked", now); err != nil {
			return res, fmt.Errorf("finish entry %d: %w", e.ID, err)
		}
		if err := d.Store.SetMembershipStatus(ctx, m.ID, models.MembershipBlocked, nil); err != nil {
			return res, fmt.Errorf("update membership %d: %w", m.ID, err)
		}
		res.Outcome = OutcomeBlocked
		return res, nil
	}

	// ----------------------------
	// Render
	// ----------------------------
	data := email.PersonalizationOf(lead)
	subject, err := email.RenderSubject(c.Subject, data)
	if err == nil {
		var body string
		body, err = email.RenderBody(c.Body, data)
		if err == nil {
			return d.send(ctx, c, e, m, email.Message{To: lead.Email, Subject: subject, Body: body}, now)
		}
	}

	record := d.record(c, e, lead.Email, now)
	record.Status = models.SendError
	record.Error = err.Error()
	if rerr := d.Audit.Record(ctx, record); rerr != nil {
		return res, rerr
	}
	return d.fail(ctx, c, e, m, err, now)
}

func (d *Dispatcher) send(ctx context.Context, c *models.Campaign, e *models.QueueEntry, m *models.Membership, msg email.Message, now time.Time) (Result, error) {
	res := Result{CampaignID: c.ID, EntryID: e.ID}

	var (
		excluded  []int64
		used      *models.Mailbox
		messageID string
		sends     int
		lastErr   error
	)

	attempt := func(n int) error {
		mb, err := d.Capacity.Acquire(ctx, c.SenderID, excluded, now)
		if err != nil {
			return backoff.Permanent(err)
		}
		sends++

		msg.From = mb.Email
		msg.FromName = mb.DisplayName

		sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		id, sendErr := d.Transport.Send(sendCtx, email.CredentialsOf(*mb), msg)
		cancel()

		if sendErr == nil {
			used, messageID = mb, id
			return nil
		}

		record := d.record(c, e, msg.To, now)
		record.MailboxID = audit.Ref(mb.ID)
		record.Status = models.SendError
		record.Error = sendErr.Error()
		if err := d.Audit.Record(ctx, record); err != nil {
			return backoff.Permanent(err)
		}
		if err := d.Capacity.Release(ctx, mb.ID, now); err != nil {
			return backoff.Permanent(err)
		}

		d.log.Warn("campaign send failed",
			zap.Int64("campaign_id", c.ID),
			zap.Int64("entry_id", e.ID),
			zap.Int64("mailbox_id", mb.ID),
			zap.Int("attempt", n),
			zap.Error(sendErr),
		)

		lastErr = sendErr
		if !email.IsMailboxFault(sendErr) {
			return backoff.Permanent(sendErr)
		}
		if d.Faults != nil {
			if _, err := d.Faults.RecordFault(ctx, mb); err != nil {
				return backoff.Permanent(err)
			}
		}
		excluded = append(excluded, mb.ID)
		return sendErr
	}

	if err := d.opts.Retry.Do(ctx, attempt); err != nil {
		switch {
		case sends == 0 && errors.Is(err, capacity.ErrNoMailbox):
			return d.noMailbox(ctx, c, e, msg.To, now)
		case sends == 0:
			return res, d.release(ctx, e, now, err)
		case lastErr != nil && errors.Is(err, capacity.ErrNoMailbox):
			// No alternate mailbox left; the send error is the cause.
			return d.fail(ctx, c, e, m, lastErr, now)
		default:
			return d.fail(ctx, c, e, m, err, now)
		}
	}

	// ----------------------------
	// Sent
	// ----------------------------
	record := d.record(c, e, msg.To, now)
	record.MailboxID = audit.Ref(used.ID)
	record.MessageID = messageID
	record.Status = models.SendSent
	if err := d.Audit.Record(ctx, record); err != nil {
		return res, err
	}
	if err := d.Store.FinishQueueEntry(ctx, e.ID, models.QueueSent, "", now); err != nil {
		return res, fmt.Errorf("finish entry %d: %w", e.ID, err)
	}
	sentAt := now
	if err := d.Store.SetMembershipStatus(ctx, m.ID, models.MembershipSent, &sentAt); err != nil {
		return res, fmt.Errorf("update membership %d: %w", m.ID, err)
	}
	if err := d.Store.ClearMailboxFailures(ctx, used.ID); err != nil {
		return res, fmt.Errorf("clear mailbox failures: %w", err)
	}

	d.log.Info("campaign email sent",
		zap.Int64("campaign_id", c.ID),
		zap.Int64("entry_id", e.ID),
		zap.Int64("mailbox_id", used.ID),
		zap.String("to", msg.To),
	)

	res.Outcome = OutcomeSent
	res.MailboxID = used.ID
	return res, nil
}

func (d *Dispatcher) noMailbox(ctx context.Context, c *models.Campaign, e *models.QueueEntry, to string, now time.Time) (Result, error) {
	res := Result{CampaignID: c.ID, EntryID: e.ID, Outcome: OutcomeNoMailbox}

	if err := d.Store.ReleaseQueueEntry(ctx, e.ID, now); err != nil {
		return res, fmt.Errorf("release entry %d: %w", e.ID, err)
	}

	record := d.record(c, e, to, now)
	record.Status = models.SendSkipped
	record.Error = audit.SkipNoMailbox
	if err := d.Audit.Record(ctx, record); err != nil {
		return res, err
	}

	d.log.Info("no mailbox with capacity, entry stays pending",
		zap.Int64("campaign_id", c.ID),
		zap.Int64("sender_id", c.SenderID),
		zap.Int64("entry_id", e.ID),
	)
	return res, nil
}

// fail closes the entry as failed. The membership goes back to planned so
// an operator or a resume can queue it again.
func (d *Dispatcher) fail(ctx context.Context, c *models.Campaign, e *models.QueueEntry, m *models.Membership, cause error, now time.Time) (Result, error) {
	res := Result{CampaignID: c.ID, EntryID: e.ID, Outcome: OutcomeFailed, Reason: cause.Error()}

	if err := d.Store.FinishQueueEntry(ctx, e.ID, models.QueueFailed, cause.Error(), now); err != nil {
		return res, fmt.Errorf("finish entry %d: %w", e.ID, err)
	}
	if err := d.Store.SetMembershipStatus(ctx, m.ID, models.MembershipPlanned, nil); err != nil {
		return res, fmt.Errorf("update membership %d: %w", m.ID, err)
	}

	d.log.Error("campaign entry failed",
		zap.Int64("campaign_id", c.ID),
		zap.Int64("entry_id", e.ID),
		zap.Int64("lead_id", e.LeadID),
		zap.Error(cause),
	)
	return res, nil
}

// release puts a claimed entry back to pending and returns cause.
func (d *Dispatcher) release(ctx context.Context, e *models.QueueEntry, now time.Time, cause error) error {
	if err := d.Store.ReleaseQueueEntry(ctx, e.ID, now); err != nil {
		d.log.Error("failed to release claimed entry",
			zap.Int64("entry_id", e.ID),
			zap.Error(err),
		)
	}
	return cause
}

func (d *Dispatcher) record(c *models.Campaign, e *models.QueueEntry, to string, now time.Time) *models.SendRecord {
	return &models.SendRecord{
		Kind:         models.KindCampaign,
		CampaignID:   audit.Ref(c.ID),
		LeadID:       audit.Ref(e.LeadID),
		QueueEntryID: audit.Ref(e.ID),
		ToEmail:      to,
		CreatedAt:    now,
	}
}
