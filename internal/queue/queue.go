// Package queue keeps a bounded lookahead of scheduled entries per campaign.
package queue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"MailRamp/internal/metrics"
	"MailRamp/internal/models"
	"MailRamp/internal/window"
)

// RecentSend is how close a previous send must be for the queue to start one
// delay after it instead of now.
const RecentSend = 10 * time.Minute

type Store interface {
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	ListQueueableMemberships(ctx context.Context, campaignID int64, limit int) ([]models.Membership, error)
	CreateQueueEntry(ctx context.Context, e *models.QueueEntry) (bool, error)
	CountActiveEntries(ctx context.Context, campaignID int64) (int, error)
	LastScheduledAt(ctx context.Context, campaignID int64) (*time.Time, error)
	CancelActiveEntries(ctx context.Context, campaignID int64, reason string, now time.Time) (int64, error)
	LastSentAt(ctx context.Context, campaignID int64) (*time.Time, error)
}

type Options struct {
	BufferSize int
	LowWater   int
	Location   *time.Location
	Rand       *rand.Rand
}

type Queue struct {
	store Store
	opts  Options
	log   *zap.Logger

	mu   sync.Mutex
	rand *rand.Rand
}

func New(store Store, opts Options, logger *zap.Logger) *Queue {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 20
	}
	if opts.LowWater <= 0 || opts.LowWater > opts.BufferSize {
		opts.LowWater = max(1, opts.BufferSize/4)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{store: store, opts: opts, log: logger, rand: opts.Rand}
}

func (q *Queue) BufferSize() int { return q.opts.BufferSize }

// jitter spreads d uniformly over [0.8d, 1.2d).
func (q *Queue) jitter(d time.Duration) time.Duration {
	q.mu.Lock()
	f := 0.8 + 0.4*q.rand.Float64()
	q.mu.Unlock()
	return time.Duration(float64(d) * f)
}

// InitializeQueue creates up to bufferSize pending entries for the
// campaign's queued memberships, in membership creation order.
func (q *Queue) InitializeQueue(ctx context.Context, campaignID int64, bufferSize int, now time.Time) (int, error) {
	if bufferSize <= 0 {
		bufferSize = q.opts.BufferSize
	}

	c, err := q.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("load campaign %d: %w", campaignID, err)
	}
	return q.fill(ctx, c, bufferSize, now)
}

// Refill tops the buffer back up once the campaign's active entries fall
// below the low-water mark.
func (q *Queue) Refill(ctx context.Context, campaignID int64, now time.Time) (int, error) {
	active, err := q.store.CountActiveEntries(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("count active entries: %w", err)
	}
	if active >= q.opts.LowWater {
		return 0, nil
	}

	c, err := q.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("load campaign %d: %w", campaignID, err)
	}
	return q.fill(ctx, c, q.opts.BufferSize-active, now)
}

// CancelAll closes every pending or sending entry. History is kept.
func (q *Queue) CancelAll(ctx context.Context, campaignID int64, reason string, now time.Time) (int64, error) {
	n, err := q.store.CancelActiveEntries(ctx, campaignID, reason, now)
	if err != nil {
		return 0, fmt.Errorf("cancel entries of campaign %d: %w", campaignID, err)
	}

	if n > 0 {
		q.log.Info("queue cancelled",
			zap.Int64("campaign_id", campaignID),
			zap.Int64("entries", n),
			zap.String("reason", reason),
		)
	}
	return n, nil
}

func (q *Queue) fill(ctx context.Context, c *models.Campaign, limit int, now time.Time) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	members, err := q.store.ListQueueableMemberships(ctx, c.ID, limit)
	if err != nil {
		return 0, fmt.Errorf("list queueable memberships: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	w, err := window.FromCampaign(*c, q.opts.Location)
	if err != nil {
		return 0, err
	}

	next, err := q.anchor(ctx, c, now)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, m := range members {
		at := next
		if open, ok := w.NextOpening(at); ok {
			at = open
		}

		e := &models.QueueEntry{
			CampaignID:   c.ID,
			MembershipID: m.ID,
			LeadID:       m.LeadID,
			ScheduledAt:  at,
			Status:       models.QueuePending,
		}
		ok, err := q.store.CreateQueueEntry(ctx, e)
		if err != nil {
			return created, fmt.Errorf("create queue entry for membership %d: %w", m.ID, err)
		}
		if !ok {
			continue
		}

		created++
		next = at.Add(q.jitter(c.Delay()))
	}

	metrics.QueueEntriesCreated.Add(float64(created))
	q.log.Info("queue filled",
		zap.Int64("campaign_id", c.ID),
		zap.Int("created", created),
	)
	return created, nil
}

// anchor is the time of the first new entry: after the last scheduled
// entry if any, otherwise now, a future scheduled start, or one delay after
// a recent send.
func (q *Queue) anchor(ctx context.Context, c *models.Campaign, now time.Time) (time.Time, error) {
	at := now
	if c.ScheduledAt != nil && c.ScheduledAt.After(at) {
		at = *c.ScheduledAt
	}

	lastSent, err := q.store.LastSentAt(ctx, c.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("last send of campaign %d: %w", c.ID, err)
	}
	if lastSent != nil && now.Sub(*lastSent) < RecentSend {
		if after := lastSent.Add(c.Delay()); after.After(at) {
			at = after
		}
	}

	last, err := q.store.LastScheduledAt(ctx, c.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("last scheduled entry of campaign %d: %w", c.ID, err)
	}
	if last != nil {
		if after := last.Add(q.jitter(c.Delay())); after.After(at) {
			at = after
		}
	}

	return at, nil
}
