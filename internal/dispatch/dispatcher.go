// Package dispatch sends due campaign queue entries, at most one per
// campaign per tick, through the sender's mailbox pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"MailRamp/internal/audit"
	"MailRamp/internal/capacity"
	"MailRamp/internal/email"
	"MailRamp/internal/metrics"
	"MailRamp/internal/models"
	"MailRamp/internal/queue"
	"MailRamp/internal/window"
	"MailRamp/internal/worker"
)

type Store interface {
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error)
	TransitionCampaign(ctx context.Context, id int64, from []models.CampaignStatus, to models.CampaignStatus) (bool, error)
	ClaimCampaignTick(ctx context.Context, id int64, minute time.Time) (bool, error)

	CreateLead(ctx context.Context, l *models.Lead) error
	CreateMembership(ctx context.Context, m *models.Membership) (bool, error)
	CountMemberships(ctx context.Context, campaignID int64, statuses ...models.MembershipStatus) (int, error)
	PromoteMemberships(ctx context.Context, campaignID int64, from, to models.MembershipStatus) (int64, error)
	ListQueueableMemberships(ctx context.Context, campaignID int64, limit int) ([]models.Membership, error)
	GetMembership(ctx context.Context, id int64) (*models.Membership, error)
	SetMembershipStatus(ctx context.Context, id int64, status models.MembershipStatus, sentAt *time.Time) error

	NextDueEntry(ctx context.Context, campaignID int64, until time.Time) (*models.QueueEntry, error)
	ClaimQueueEntry(ctx context.Context, id int64, now time.Time) (bool, error)
	ReleaseQueueEntry(ctx context.Context, id int64, now time.Time) error
	FinishQueueEntry(ctx context.Context, id int64, status models.QueueStatus, errMsg string, now time.Time) error
	CountActiveEntries(ctx context.Context, campaignID int64) (int, error)
	ReclaimStaleEntries(ctx context.Context, olderThan, now time.Time) (int64, error)

	ClearMailboxFailures(ctx context.Context, id int64) error
}

type Gate interface {
	IsValidSendTime(ctx context.Context, now time.Time, w window.Window) (window.Result, error)
}

// FaultRecorder counts mailbox-specific failures and reports whether the
// mailbox was taken out of rotation.
type FaultRecorder interface {
	RecordFault(ctx context.Context, mb *models.Mailbox) (bool, error)
}

type Options struct {
	Workers int
	Limiter *rate.Limiter

	Location *time.Location

	// Entries up to Tolerance in the future count as due.
	Tolerance   time.Duration
	StaleAfter  time.Duration
	SendTimeout time.Duration

	// ClaimAttempts bounds reselection after a lost claim.
	ClaimAttempts int

	// MinSpacing is the share of the campaign delay that must separate two
	// sends when the queue is catching up.
	MinSpacing float64

	Retry RetryPolicy
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Tolerance <= 0 {
		o.Tolerance = time.Minute
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 10 * time.Minute
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 15 * time.Second
	}
	if o.ClaimAttempts <= 0 {
		o.ClaimAttempts = 3
	}
	if o.MinSpacing <= 0 {
		o.MinSpacing = 0.8
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = DefaultRetryPolicy()
	}
}

// Deps are the collaborators of a Dispatcher. Faults is optional.
type Deps struct {
	Store     Store
	Gate      Gate
	Capacity  *capacity.Tracker
	Queue     *queue.Queue
	Audit     *audit.Log
	Transport email.Transport
	Faults    FaultRecorder
}

type Dispatcher struct {
	Deps
	opts Options
	log  *zap.Logger
}

func New(deps Deps, opts Options, logger *zap.Logger) *Dispatcher {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{Deps: deps, opts: opts, log: logger}
}

type Outcome string

const (
	OutcomeSent          Outcome = "sent"
	OutcomeFailed        Outcome = "failed"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeBlocked       Outcome = "blocked"
	OutcomeOutsideWindow Outcome = "outside_window"
	OutcomeNothingDue    Outcome = "nothing_due"
	OutcomeDailyCap      Outcome = "daily_cap"
	OutcomeSpacing       Outcome = "spacing"
	OutcomeNoMailbox     Outcome = "no_mailbox"
	OutcomeContended     Outcome = "contended"
	OutcomeAlreadyTicked Outcome = "already_ticked"
	OutcomeNotRunning    Outcome = "not_running"
)

// Result describes what one campaign did in one tick.
type Result struct {
	CampaignID int64   `json:"campaign_id"`
	Outcome    Outcome `json:"outcome"`
	EntryID    int64   `json:"entry_id,omitempty"`
	MailboxID  int64   `json:"mailbox_id,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Refilled   int     `json:"refilled,omitempty"`
	Completed  bool    `json:"completed,omitempty"`
}

type TickReport struct {
	At        time.Time       `json:"at"`
	Reclaimed int64           `json:"reclaimed"`
	Campaigns int             `json:"campaigns"`
	Outcomes  map[Outcome]int `json:"outcomes"`
	Completed int             `json:"completed"`
}

// ReclaimStale returns entries stuck in sending past the staleness
// threshold to pending.
func (d *Dispatcher) ReclaimStale(ctx context.Context, now time.Time) (int64, error) {
	n, err := d.Store.ReclaimStaleEntries(ctx, now.Add(-d.opts.StaleAfter), now)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale entries: %w", err)
	}
	if n > 0 {
		metrics.StaleEntriesReclaimed.Add(float64(n))
		d.log.Warn("reclaimed stale sending entries", zap.Int64("entries", n))
	}
	return n, nil
}

// Tick processes every running campaign once. A campaign already ticked in
// the same minute is left alone, so repeated calls are harmless.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	started := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(started).Seconds()) }()

	report := TickReport{At: now, Outcomes: make(map[Outcome]int)}

	reclaimed, err := d.ReclaimStale(ctx, now)
	if err != nil {
		return report, err
	}
	report.Reclaimed = reclaimed

	campaigns, err := d.Store.ListCampaignsByStatus(ctx, models.CampaignInProgress)
	if err != nil {
		return report, fmt.Errorf("list running campaigns: %w", err)
	}
	report.Campaigns = len(campaigns)

	tasks := make([]worker.Task, 0, len(campaigns))
	for _, c := range campaigns {
		tasks = append(tasks, worker.Task{CampaignID: c.ID, Now: now})
	}

	minute := now.Truncate(time.Minute)
	var mu sync.Mutex

	worker.Run(ctx, d.opts.Workers, tasks, func(ctx context.Context, t worker.Task) error {
		res := Result{CampaignID: t.CampaignID, Outcome: OutcomeAlreadyTicked}

		claimed, err := d.Store.ClaimCampaignTick(ctx, t.CampaignID, minute)
		if err == nil && claimed {
			res, err = d.ProcessCampaign(ctx, t.CampaignID, t.Now)
		}

		mu.Lock()
		defer mu.Unlock()
		if res.Outcome != "" {
			report.Outcomes[res.Outcome]++
		}
		if res.Completed {
			report.Completed++
		}
		return err
	}, d.opts.Limiter, d.log)

	d.log.Info("tick finished",
		zap.Time("at", now),
		zap.Int("campaigns", report.Campaigns),
		zap.Int("sent", report.Outcomes[OutcomeSent]),
		zap.Int("failed", report.Outcomes[OutcomeFailed]),
		zap.Int("completed", report.Completed),
		zap.Duration("took", time.Since(started)),
	)
	return report, ctx.Err()
}

// ProcessCampaign runs one tick for one campaign: gate, at most one send,
// refill and the completion check.
func (d *Dispatcher) ProcessCampaign(ctx context.Context, campaignID int64, now time.Time) (Result, error) {
	res := Result{CampaignID: campaignID}

	c, err := d.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return res, fmt.Errorf("load campaign %d: %w", campaignID, err)
	}
	if c.Status != models.CampaignInProgress {
		res.Outcome = OutcomeNotRunning
		return res, nil
	}

	w, err := window.FromCampaign(*c, d.opts.Location)
	if err != nil {
		res.Outcome = OutcomeOutsideWindow
		res.Reason = err.Error()
		return res, err
	}

	check, err := d.Gate.IsValidSendTime(ctx, now, w)
	if err != nil || !check.Valid {
		res.Outcome = OutcomeOutsideWindow
		res.Reason = check.Reason
		metrics.SendSkips.WithLabelValues(string(OutcomeOutsideWindow)).Inc()
		d.log.Debug("campaign outside sending window",
			zap.Int64("campaign_id", c.ID),
			zap.String("reason", check.Reason),
		)
		// A failed holiday lookup skips the tick; it is not a campaign error.
		return res, nil
	}

	res, err = d.sendNext(ctx, c, w, now)
	if err != nil {
		return res, err
	}

	refilled, err := d.Queue.Refill(ctx, c.ID, now)
	if err != nil {
		return res, err
	}
	res.Refilled = refilled

	completed, err := d.completeIfDone(ctx, c.ID)
	if err != nil {
		return res, err
	}
	res.Completed = completed
	return res, nil
}

func (d *Dispatcher) sendNext(ctx context.Context, c *models.Campaign, w window.Window, now time.Time) (Result, error) {
	res := Result{CampaignID: c.ID}
	until := now.Add(d.opts.Tolerance)

	e, err := d.Store.NextDueEntry(ctx, c.ID, until)
	if errors.Is(err, models.ErrNotFound) {
		res.Outcome = OutcomeNothingDue
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("next due entry: %w", err)
	}

	// ----------------------------
	// Campaign Limits
	// ----------------------------
	if c.MaxEmailsPerDay > 0 {
		sent, err := d.Audit.SentToday(ctx, c.ID, now, w.Location)
		if err != nil {
			return res, fmt.Errorf("count today's sends: %w", err)
		}
		if sent >= c.MaxEmailsPerDay {
			res.Outcome = OutcomeDailyCap
			res.Reason = fmt.Sprintf("%d of %d sent today", sent, c.MaxEmailsPerDay)
			metrics.SendSkips.WithLabelValues(string(OutcomeDailyCap)).Inc()
			return res, nil
		}
	}

	last, err := d.Audit.LastSentAt(ctx, c.ID)
	if err != nil {
		return res, fmt.Errorf("last send: %w", err)
	}
	if last != nil {
		gap := time.Duration(float64(c.Delay()) * d.opts.MinSpacing)
		if now.Sub(*last) < gap {
			res.Outcome = OutcomeSpacing
			res.Reason = fmt.Sprintf("next send not before %s", last.Add(gap).Format(time.RFC3339))
			metrics.SendSkips.WithLabelValues(string(OutcomeSpacing)).Inc()
			return res, nil
		}
	}

	// ----------------------------
	// Claim
	// ----------------------------
	for attempt := 1; ; attempt++ {
		claimed, err := d.Store.ClaimQueueEntry(ctx, e.ID, now)
		if err != nil {
			return res, fmt.Errorf("claim entry %d: %w", e.ID, err)
		}
		if claimed {
			break
		}
		if attempt >= d.opts.ClaimAttempts {
			res.Outcome = OutcomeContended
			return res, nil
		}

		e, err = d.Store.NextDueEntry(ctx, c.ID, until)
		if errors.Is(err, models.ErrNotFound) {
			res.Outcome = OutcomeNothingDue
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("next due entry: %w", err)
		}
	}

	return d.deliver(ctx, c, e, now)
}

// completeIfDone moves a campaign with nothing left to queue or send to
// COMPLETED.
func (d *Dispatcher) completeIfDone(ctx context.Context, campaignID int64) (bool, error) {
	active, err := d.Store.CountActiveEntries(ctx, campaignID)
	if err != nil {
		return false, fmt.Errorf("count active entries: %w", err)
	}
	if active > 0 {
		return false, nil
	}

	left, err := d.Store.ListQueueableMemberships(ctx, campaignID, 1)
	if err != nil {
		return false, fmt.Errorf("list queueable memberships: %w", err)
	}
	if len(left) > 0 {
		return false, nil
	}

	ok, err := d.Store.TransitionCampaign(ctx, campaignID,
		[]models.CampaignStatus{models.CampaignInProgress}, models.CampaignCompleted)
	if err != nil {
		return false, fmt.Errorf("complete campaign %d: %w", campaignID, err)
	}
	if ok {
		d.log.Info("campaign completed", zap.Int64("campaign_id", campaignID))
	}
	return ok, nil
}
