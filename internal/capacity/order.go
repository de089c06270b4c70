package capacity

import (
	"time"

	"MailRamp/internal/models"
)

// Candidate is the selection key of one mailbox.
type Candidate struct {
	ID         int64
	Priority   int
	IsMain     bool
	LastUsedAt *time.Time
}

func candidateOf(mb models.Mailbox, mainID *int64) Candidate {
	return Candidate{
		ID:         mb.ID,
		Priority:   mb.Priority,
		IsMain:     mainID != nil && *mainID == mb.ID,
		LastUsedAt: mb.LastUsedAt,
	}
}

// Less orders candidates by priority ascending, then the sender's main
// mailbox, then longest idle (never used first), then id.
func Less(a, b Candidate) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.IsMain != b.IsMain {
		return a.IsMain
	}

	switch {
	case a.LastUsedAt == nil && b.LastUsedAt != nil:
		return true
	case a.LastUsedAt != nil && b.LastUsedAt == nil:
		return false
	case a.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt):
		return a.LastUsedAt.Before(*b.LastUsedAt)
	}

	return a.ID < b.ID
}
