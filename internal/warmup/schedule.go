package warmup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"MailRamp/internal/email"
	"MailRamp/internal/models"
)

type template struct {
	Subject string
	Body    string
}

var internalTemplates = []template{
	{"Mailbox check - {{.Date}}", "Hello,\n\nThis is an automated message confirming the mailbox works.\n\nBest regards,\n{{.SenderName}}"},
	{"System update - {{.Date}}", "Hi,\n\nThe mail system update finished successfully.\n\nBest regards,\n{{.SenderName}}"},
	{"Delivery test - {{.Date}}", "Hello,\n\nDelivery test message.\n\nBest regards,\n{{.SenderName}}"},
	{"Connection check - {{.Date}}", "Good morning,\n\nChecking the mail connection.\n\nBest regards,\n{{.SenderName}}"},
	{"System notice - {{.Date}}", "Hello,\n\nStatus notice from the mail system.\n\nBest regards,\n{{.SenderName}}"},
	{"SMTP check - {{.Date}}", "Hi,\n\nChecking that SMTP delivery works.\n\nBest regards,\n{{.SenderName}}"},
	{"Daily system check - {{.Date}}", "Good morning,\n\nDaily check of the mail system.\n\nBest regards,\n{{.SenderName}}"},
}

// slots spreads count send times over the sending hours of now's day. The
// first slot is StartHour plus up to 30 minutes, never earlier than now.
func (m *Machine) slots(count int, now time.Time) []time.Time {
	loc := m.opts.Location
	day := models.StartOfDay(now, loc)
	y, mo, d := day.Date()
	end := time.Date(y, mo, d, m.opts.EndHour, 0, 0, 0, loc)

	at := time.Date(y, mo, d, m.opts.StartHour, 0, 0, 0, loc).Add(time.Duration(m.intn(30)) * time.Minute)
	if at.Before(now) {
		at = now
	}

	out := make([]time.Time, 0, count)
	for i := 0; i < count && at.Before(end); i++ {
		out = append(out, at)
		at = at.Add(m.between(m.opts.MinSpacing, m.opts.MaxSpacing))
	}
	return out
}

func senderName(ctx context.Context, store Store, mb models.Mailbox) string {
	if mb.DisplayName != "" {
		return mb.DisplayName
	}
	if s, err := store.GetSender(ctx, mb.SenderID); err == nil && s.Name != "" {
		return s.Name
	}
	if at := strings.Index(mb.Email, "@"); at > 0 {
		return mb.Email[:at]
	}
	return mb.Email
}

// ScheduleDay writes the day's internal warmup traffic for mb, addressed to
// the other active mailboxes. A day that already has entries is left alone.
func (m *Machine) ScheduleDay(ctx context.Context, mb models.Mailbox, now time.Time) (int, error) {
	if mb.WarmupStatus != models.WarmupWarming || !mb.IsActive {
		return 0, nil
	}

	cfg, ok := m.opts.Schedule.Day(mb.WarmupDay)
	if !ok {
		return 0, nil
	}

	dayStart := models.StartOfDay(now, m.opts.Location)
	exists, err := m.store.HasWarmupEntries(ctx, mb.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return 0, fmt.Errorf("check warmup entries: %w", err)
	}
	if exists {
		return 0, nil
	}

	active, err := m.store.ListActiveMailboxes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active mailboxes: %w", err)
	}
	var recipients []string
	for _, other := range active {
		if other.ID != mb.ID {
			recipients = append(recipients, other.Email)
		}
	}
	if len(recipients) == 0 {
		m.log.Warn("no internal recipients for warmup",
			zap.Int64("mailbox_id", mb.ID),
		)
		return 0, nil
	}

	data := struct {
		Date       string
		SenderName string
	}{
		Date:       now.In(m.opts.Location).Format("02.01.2006"),
		SenderName: senderName(ctx, m.store, mb),
	}

	times := m.slots(cfg.DailyLimit, now)
	entries := make([]models.WarmupEntry, 0, len(times))
	for _, at := range times {
		tpl := internalTemplates[m.intn(len(internalTemplates))]

		subject, err := email.RenderSubject(tpl.Subject, data)
		if err != nil {
			return 0, err
		}
		body, err := email.RenderBody(tpl.Body, data)
		if err != nil {
			return 0, err
		}

		entries = append(entries, models.WarmupEntry{
			MailboxID:   mb.ID,
			ScheduledAt: at,
			ToEmail:     recipients[m.intn(len(recipients))],
			Subject:     subject,
			Body:        strings.ReplaceAll(body, "\n", "<br>"),
			WarmupDay:   mb.WarmupDay,
			Status:      models.QueuePending,
		})
	}

	if len(entries) == 0 {
		return 0, nil
	}
	if err := m.store.CreateWarmupEntries(ctx, entries); err != nil {
		return 0, fmt.Errorf("create warmup entries: %w", err)
	}

	m.log.Info("warmup day scheduled",
		zap.Int64("mailbox_id", mb.ID),
		zap.Int("day", mb.WarmupDay),
		zap.Int("emails", len(entries)),
		zap.Time("first", entries[0].ScheduledAt),
	)
	return len(entries), nil
}
