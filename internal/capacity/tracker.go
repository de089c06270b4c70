package capacity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"MailRamp/internal/models"
)

var ErrNoMailbox = errors.New("no mailbox available")

type Store interface {
	GetSender(ctx context.Context, id int64) (*models.Sender, error)
	ListSenderMailboxes(ctx context.Context, senderID int64) ([]models.Mailbox, error)
	ReserveMailboxSlot(ctx context.Context, id int64, limit int, today, now time.Time) (bool, error)
	ReleaseMailboxSlot(ctx context.Context, id int64, today time.Time) error
}

type Tracker struct {
	Store    Store
	Schedule models.WarmupSchedule
	Location *time.Location
	Log      *zap.Logger
}

func NewTracker(store Store, schedule models.WarmupSchedule, loc *time.Location, logger *zap.Logger) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{Store: store, Schedule: schedule, Location: loc, Log: logger}
}

// Today is the civil date counters are keyed by.
func (t *Tracker) Today(now time.Time) time.Time {
	return models.CivilDate(now, t.Location)
}

func (t *Tracker) EffectiveDailyLimit(mb models.Mailbox) int {
	return EffectiveDailyLimit(mb, t.Schedule)
}

func (t *Tracker) Remaining(mb models.Mailbox, now time.Time) int {
	return Remaining(mb, t.Schedule, t.Today(now))
}

// Reserve takes one slot of today's capacity. It returns false when the
// mailbox has no slot left at the moment of the update.
func (t *Tracker) Reserve(ctx context.Context, mb models.Mailbox, now time.Time) (bool, error) {
	limit := t.EffectiveDailyLimit(mb)
	if limit <= 0 {
		return false, nil
	}

	ok, err := t.Store.ReserveMailboxSlot(ctx, mb.ID, limit, t.Today(now), now)
	if err != nil {
		return false, fmt.Errorf("reserve mailbox %d: %w", mb.ID, err)
	}
	return ok, nil
}

// Release gives back a slot taken by Reserve on the same day.
func (t *Tracker) Release(ctx context.Context, mailboxID int64, now time.Time) error {
	if err := t.Store.ReleaseMailboxSlot(ctx, mailboxID, t.Today(now)); err != nil {
		return fmt.Errorf("release mailbox %d: %w", mailboxID, err)
	}
	return nil
}

// Candidates lists the sender's eligible mailboxes in selection order.
func (t *Tracker) Candidates(ctx context.Context, senderID int64, excluded []int64, now time.Time) ([]models.Mailbox, error) {
	sender, err := t.Store.GetSender(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("load sender %d: %w", senderID, err)
	}

	all, err := t.Store.ListSenderMailboxes(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("list mailboxes of sender %d: %w", senderID, err)
	}

	out := make([]models.Mailbox, 0, len(all))
	for _, mb := range all {
		if !mb.IsActive || slices.Contains(excluded, mb.ID) {
			continue
		}
		if t.Remaining(mb, now) <= 0 {
			continue
		}
		out = append(out, mb)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return Less(candidateOf(out[i], sender.MainMailboxID), candidateOf(out[j], sender.MainMailboxID))
	})
	return out, nil
}

// SelectMailbox returns the first eligible mailbox without reserving it.
func (t *Tracker) SelectMailbox(ctx context.Context, senderID int64, excluded []int64, now time.Time) (*models.Mailbox, error) {
	candidates, err := t.Candidates(ctx, senderID, excluded, now)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoMailbox
	}
	return &candidates[0], nil
}

// Acquire selects and reserves a mailbox. A candidate whose last slot was
// taken concurrently is skipped in favour of the next one.
func (t *Tracker) Acquire(ctx context.Context, senderID int64, excluded []int64, now time.Time) (*models.Mailbox, error) {
	candidates, err := t.Candidates(ctx, senderID, excluded, now)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		mb := candidates[i]
		ok, err := t.Reserve(ctx, mb, now)
		if err != nil {
			return nil, err
		}
		if ok {
			return &mb, nil
		}
		t.Log.Debug("mailbox slot taken concurrently",
			zap.Int64("mailbox_id", mb.ID),
			zap.Int64("sender_id", senderID),
		)
	}

	return nil, ErrNoMailbox
}
