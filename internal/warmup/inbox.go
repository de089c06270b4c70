package warmup

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"MailRamp/internal/email"
)

// InboundMessage is the header summary of one unread message.
type InboundMessage struct {
	UID     string
	From    string
	Subject string
}

// Inbox reads a mailbox over its incoming-mail protocol.
type Inbox interface {
	FetchUnread(ctx context.Context, creds email.Credentials, address string) ([]InboundMessage, error)
	MarkSeen(ctx context.Context, creds email.Credentials, address string, uids []string) error
}

// ProcessInbox marks internal warmup traffic as seen in every active
// mailbox, so it reads as opened mail. Mail from outside addresses is left
// untouched. It returns the number of messages marked.
func (m *Machine) ProcessInbox(ctx context.Context) (int, error) {
	if m.Inbox == nil {
		return 0, nil
	}

	active, err := m.store.ListActiveMailboxes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active mailboxes: %w", err)
	}

	internal := make(map[string]bool, len(active))
	for _, mb := range active {
		internal[strings.ToLower(mb.Email)] = true
	}

	marked := 0
	for _, mb := range active {
		creds := email.CredentialsOf(mb)

		msgs, err := m.Inbox.FetchUnread(ctx, creds, mb.Email)
		if err != nil {
			m.log.Warn("inbox fetch failed", zap.Int64("mailbox_id", mb.ID), zap.Error(err))
			continue
		}

		var uids []string
		for _, msg := range msgs {
			if internal[strings.ToLower(strings.TrimSpace(msg.From))] {
				uids = append(uids, msg.UID)
			}
		}
		if len(uids) == 0 {
			continue
		}

		if err := m.Inbox.MarkSeen(ctx, creds, mb.Email, uids); err != nil {
			m.log.Warn("inbox mark seen failed", zap.Int64("mailbox_id", mb.ID), zap.Error(err))
			continue
		}
		marked += len(uids)
	}
	return marked, nil
}
