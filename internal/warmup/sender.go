package warmup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"MailRamp/internal/audit"
	"MailRamp/internal/email"
	"MailRamp/internal/metrics"
	"MailRamp/internal/models"
)

// SendDue sends at most one due warmup email. It reports whether a message
// went out.
func (m *Machine) SendDue(ctx context.Context, now time.Time) (bool, error) {
	hour := now.In(m.opts.Location).Hour()
	if hour < m.opts.StartHour || hour >= m.opts.EndHour {
		return false, nil
	}

	e, err := m.store.NextDueWarmupEntry(ctx, now.Add(m.opts.Tolerance))
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("next warmup entry: %w", err)
	}

	mb, err := m.store.GetMailbox(ctx, e.MailboxID)
	if err != nil {
		return false, fmt.Errorf("load mailbox %d: %w", e.MailboxID, err)
	}

	claimed, err := m.store.ClaimWarmupEntry(ctx, e.ID, now)
	if err != nil {
		return false, fmt.Errorf("claim warmup entry %d: %w", e.ID, err)
	}
	if !claimed {
		return false, nil
	}

	if mb.WarmupStatus != models.WarmupWarming || !mb.IsActive {
		return false, m.store.FinishWarmupEntry(ctx, e.ID, models.QueueCancelled, "mailbox not warming", now)
	}

	reserved, err := m.store.ReserveWarmupSlot(ctx, mb.ID, models.CivilDate(now, m.opts.Location), now)
	if err != nil {
		return false, fmt.Errorf("reserve warmup slot: %w", err)
	}
	if !reserved {
		return false, m.store.FinishWarmupEntry(ctx, e.ID, models.QueueCancelled, "daily limit reached", now)
	}

	messageID, sendErr := m.transport.Send(ctx, email.CredentialsOf(*mb), email.Message{
		From:     mb.Email,
		FromName: mb.DisplayName,
		To:       e.ToEmail,
		Subject:  e.Subject,
		Body:     e.Body,
	})

	record := &models.SendRecord{
		Kind:      models.KindWarmup,
		MailboxID: audit.Ref(mb.ID),
		ToEmail:   e.ToEmail,
		MessageID: messageID,
		Status:    models.SendSent,
		CreatedAt: now,
	}

	if sendErr != nil {
		record.Status = models.SendError
		record.Error = sendErr.Error()
		if err := m.audit.Record(ctx, record); err != nil {
			return false, err
		}
		if err := m.store.FinishWarmupEntry(ctx, e.ID, models.QueueFailed, sendErr.Error(), now); err != nil {
			return false, fmt.Errorf("finish warmup entry %d: %w", e.ID, err)
		}

		m.log.Error("warmup send failed",
			zap.Int64("mailbox_id", mb.ID),
			zap.String("to", e.ToEmail),
			zap.Error(sendErr),
		)

		if email.IsMailboxFault(sendErr) {
			if _, err := m.RecordFault(ctx, mb); err != nil {
				return false, err
			}
		}
		return false, sendErr
	}

	if err := m.audit.Record(ctx, record); err != nil {
		return false, err
	}
	if err := m.store.FinishWarmupEntry(ctx, e.ID, models.QueueSent, "", now); err != nil {
		return false, fmt.Errorf("finish warmup entry %d: %w", e.ID, err)
	}
	if err := m.store.ClearMailboxFailures(ctx, mb.ID); err != nil {
		return false, fmt.Errorf("clear mailbox failures: %w", err)
	}

	m.log.Info("warmup email sent",
		zap.Int64("mailbox_id", mb.ID),
		zap.String("to", e.ToEmail),
		zap.Int("day", e.WarmupDay),
	)
	return true, nil
}

// ReclaimStale returns warmup entries left in sending by an interrupted run
// to pending.
func (m *Machine) ReclaimStale(ctx context.Context, now time.Time) (int64, error) {
	n, err := m.store.ReclaimStaleWarmupEntries(ctx, now.Add(-m.opts.StaleAfter))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale warmup entries: %w", err)
	}
	if n > 0 {
		metrics.StaleEntriesReclaimed.Add(float64(n))
		m.log.Warn("reclaimed stale warmup entries", zap.Int64("entries", n))
	}
	return n, nil
}

// RecordFault counts one mailbox-specific failure, from warmup or campaign
// traffic. Once the count reaches the threshold the mailbox is deactivated
// and RecordFault reports true.
func (m *Machine) RecordFault(ctx context.Context, mb *models.Mailbox) (bool, error) {
	n, err := m.store.RecordMailboxFailure(ctx, mb.ID)
	if err != nil {
		return false, fmt.Errorf("record mailbox failure: %w", err)
	}
	if n < m.opts.FailureThreshold {
		return false, nil
	}

	m.log.Warn("mailbox deactivated after repeated faults",
		zap.Int64("mailbox_id", mb.ID),
		zap.String("email", mb.Email),
		zap.String("warmup_status", string(mb.WarmupStatus)),
		zap.Int("failures", n),
	)
	return true, m.deactivate(ctx, mb, fmt.Sprintf("%d consecutive mailbox faults", n))
}
