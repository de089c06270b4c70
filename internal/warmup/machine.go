// Package warmup moves mailboxes through the deliverability ramp and sends
// the internal traffic each ramp day calls for.
//
//	inactive -> dns_pending -> ready_to_warmup -> warming -> ready
//	warming -> failed            (repeated mailbox faults)
//	warming, ready_to_warmup -> inactive   (StopWarmup)
//	inactive, dns_pending, ready_to_warmup -> ready   (ImportPrewarmed)
package warmup

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"MailRamp/internal/audit"
	"MailRamp/internal/email"
	"MailRamp/internal/metrics"
	"MailRamp/internal/models"
)

var ErrInvalidTransition = errors.New("invalid warmup transition")

// TransitionError is returned when a mailbox is not in a state the
// requested operation can start from.
type TransitionError struct {
	MailboxID int64
	From      models.WarmupStatus
	To        models.WarmupStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("mailbox %d: cannot move warmup from %s to %s", e.MailboxID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type Store interface {
	GetSender(ctx context.Context, id int64) (*models.Sender, error)
	GetMailbox(ctx context.Context, id int64) (*models.Mailbox, error)
	ListMailboxesByWarmupStatus(ctx context.Context, status models.WarmupStatus) ([]models.Mailbox, error)
	ListActiveMailboxes(ctx context.Context) ([]models.Mailbox, error)
	ResetMailboxCounters(ctx context.Context, today time.Time) (int64, error)
	ReserveWarmupSlot(ctx context.Context, id int64, today, now time.Time) (bool, error)
	TransitionWarmup(ctx context.Context, id int64, from []models.WarmupStatus, u models.WarmupUpdate) (bool, error)
	RecordMailboxFailure(ctx context.Context, id int64) (int, error)
	ClearMailboxFailures(ctx context.Context, id int64) error
	DeactivateMailbox(ctx context.Context, id int64, reason string) error
	ReactivateMailbox(ctx context.Context, id int64) error

	HasWarmupEntries(ctx context.Context, mailboxID int64, from, to time.Time) (bool, error)
	CreateWarmupEntries(ctx context.Context, entries []models.WarmupEntry) error
	NextDueWarmupEntry(ctx context.Context, until time.Time) (*models.WarmupEntry, error)
	ClaimWarmupEntry(ctx context.Context, id int64, now time.Time) (bool, error)
	ReclaimStaleWarmupEntries(ctx context.Context, olderThan time.Time) (int64, error)
	FinishWarmupEntry(ctx context.Context, id int64, status models.QueueStatus, errMsg string, now time.Time) error
	CancelWarmupEntries(ctx context.Context, mailboxID int64, reason string) (int64, error)
}

type Options struct {
	Schedule models.WarmupSchedule
	Location *time.Location

	// Internal traffic is only sent between StartHour and EndHour local time.
	StartHour int
	EndHour   int

	MinSpacing time.Duration
	MaxSpacing time.Duration
	Tolerance  time.Duration
	// StaleAfter is how long a claimed entry may stay in sending.
	StaleAfter time.Duration

	// FailureThreshold consecutive mailbox faults fail the warmup.
	FailureThreshold int

	Rand *rand.Rand
}

func (o *Options) defaults() {
	if len(o.Schedule) == 0 {
		o.Schedule = models.DefaultWarmupSchedule()
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.EndHour <= o.StartHour {
		o.StartHour, o.EndHour = 6, 22
	}
	if o.MinSpacing <= 0 {
		o.MinSpacing = 10 * time.Minute
	}
	if o.MaxSpacing < o.MinSpacing {
		o.MaxSpacing = max(30*time.Minute, o.MinSpacing)
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 10 * time.Minute
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 10 * time.Minute
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x2545f4914f6cdd1d))
	}
}

type Machine struct {
	store     Store
	transport email.Transport
	audit     *audit.Log
	opts      Options
	log       *zap.Logger

	// DNS and Inbox are optional collaborators.
	DNS   DNSChecker
	Inbox Inbox

	mu sync.Mutex
}

func New(store Store, transport email.Transport, auditLog *audit.Log, opts Options, logger *zap.Logger) *Machine {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		store:     store,
		transport: transport,
		audit:     auditLog,
		opts:      opts,
		log:       logger,
	}
}

func (m *Machine) Schedule() models.WarmupSchedule { return m.opts.Schedule }

func (m *Machine) Location() *time.Location { return m.opts.Location }

func (m *Machine) intn(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Rand.IntN(n)
}

func (m *Machine) between(lo, hi time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(m.opts.Rand.Int64N(int64(hi-lo)))
}

func (m *Machine) transition(ctx context.Context, mb *models.Mailbox, from []models.WarmupStatus, u models.WarmupUpdate) error {
	ok, err := m.store.TransitionWarmup(ctx, mb.ID, from, u)
	if err != nil {
		return fmt.Errorf("update warmup of mailbox %d: %w", mb.ID, err)
	}
	if !ok {
		return &TransitionError{MailboxID: mb.ID, From: mb.WarmupStatus, To: u.Status}
	}

	metrics.WarmupTransitions.WithLabelValues(string(u.Status)).Inc()
	m.log.Info("warmup status changed",
		zap.Int64("mailbox_id", mb.ID),
		zap.String("email", mb.Email),
		zap.String("from", string(mb.WarmupStatus)),
		zap.String("to", string(u.Status)),
		zap.Int("day", u.Day),
	)
	return nil
}

func allowed(status models.WarmupStatus, from []models.WarmupStatus) bool {
	for _, f := range from {
		if f == status {
			return true
		}
	}
	return false
}

// StartWarmup puts the mailbox on day 1 of the ramp and schedules the rest
// of today's internal traffic.
func (m *Machine) StartWarmup(ctx context.Context, mailboxID int64, now time.Time) (*models.Mailbox, error) {
	mb, err := m.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("load mailbox %d: %w", mailboxID, err)
	}

	from := []models.WarmupStatus{models.WarmupInactive, models.WarmupReadyToWarmup}
	if !allowed(mb.WarmupStatus, from) {
		return nil, &TransitionError{MailboxID: mb.ID, From: mb.WarmupStatus, To: models.WarmupWarming}
	}

	day1, ok := m.opts.Schedule.Day(1)
	if !ok {
		return nil, errors.New("warmup schedule is empty")
	}

	started := now
	err = m.transition(ctx, mb, from, models.WarmupUpdate{
		Status:     models.WarmupWarming,
		Day:        1,
		DailyLimit: day1.DailyLimit,
		StartDate:  &started,
	})
	if err != nil {
		return nil, err
	}

	mb, err = m.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("reload mailbox %d: %w", mailboxID, err)
	}

	if _, err := m.ScheduleDay(ctx, *mb, now); err != nil {
		m.log.Error("failed to schedule first warmup day",
			zap.Int64("mailbox_id", mailboxID),
			zap.Error(err),
		)
	}
	return mb, nil
}

// StopWarmup returns the mailbox to inactive and cancels its pending traffic.
func (m *Machine) StopWarmup(ctx context.Context, mailboxID int64) error {
	mb, err := m.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		return fmt.Errorf("load mailbox %d: %w", mailboxID, err)
	}

	from := []models.WarmupStatus{models.WarmupWarming, models.WarmupReadyToWarmup}
	if !allowed(mb.WarmupStatus, from) {
		return &TransitionError{MailboxID: mb.ID, From: mb.WarmupStatus, To: models.WarmupInactive}
	}

	u := mb.WarmupState()
	u.Status = models.WarmupInactive
	if err := m.transition(ctx, mb, from, u); err != nil {
		return err
	}

	if _, err := m.store.CancelWarmupEntries(ctx, mailboxID, "warmup stopped"); err != nil {
		return fmt.Errorf("cancel warmup entries: %w", err)
	}
	return nil
}

// ImportPrewarmed marks a mailbox that was warmed elsewhere as ready.
func (m *Machine) ImportPrewarmed(ctx context.Context, mailboxID int64, now time.Time) error {
	mb, err := m.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		return fmt.Errorf("load mailbox %d: %w", mailboxID, err)
	}

	from := []models.WarmupStatus{models.WarmupInactive, models.WarmupDNSPending, models.WarmupReadyToWarmup}
	if !allowed(mb.WarmupStatus, from) {
		return &TransitionError{MailboxID: mb.ID, From: mb.WarmupStatus, To: models.WarmupReady}
	}

	completed := now
	return m.transition(ctx, mb, from, models.WarmupUpdate{
		Status:      models.WarmupReady,
		CompletedAt: &completed,
	})
}

// Force lets a failed mailbox carry campaign traffic at its full daily limit
// and puts it back into rotation.
func (m *Machine) Force(ctx context.Context, mailboxID int64) error {
	mb, err := m.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		return fmt.Errorf("load mailbox %d: %w", mailboxID, err)
	}
	if mb.WarmupStatus != models.WarmupFailed {
		return &TransitionError{MailboxID: mb.ID, From: mb.WarmupStatus, To: models.WarmupFailed}
	}

	u := mb.WarmupState()
	u.Forced = true
	if err := m.transition(ctx, mb, []models.WarmupStatus{models.WarmupFailed}, u); err != nil {
		return err
	}
	return m.store.ReactivateMailbox(ctx, mailboxID)
}

// deactivate takes a faulting mailbox out of rotation. A warming mailbox
// also ends its warmup as failed and loses its scheduled internal traffic.
func (m *Machine) deactivate(ctx context.Context, mb *models.Mailbox, reason string) error {
	if mb.WarmupStatus == models.WarmupWarming {
		u := mb.WarmupState()
		u.Status = models.WarmupFailed
		err := m.transition(ctx, mb, []models.WarmupStatus{models.WarmupWarming}, u)
		if err != nil && !errors.Is(err, ErrInvalidTransition) {
			return err
		}
		if _, err := m.store.CancelWarmupEntries(ctx, mb.ID, "warmup failed"); err != nil {
			return fmt.Errorf("cancel warmup entries: %w", err)
		}
	}

	if err := m.store.DeactivateMailbox(ctx, mb.ID, reason); err != nil {
		return fmt.Errorf("deactivate mailbox %d: %w", mb.ID, err)
	}
	metrics.MailboxesDeactivated.Inc()
	return nil
}
