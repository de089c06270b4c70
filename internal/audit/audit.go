// Package audit is the append-only record of send attempts. Limit
// accounting and dedupe read from it.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"MailRamp/internal/metrics"
	"MailRamp/internal/models"
)

// Skip reasons stored in SendRecord.Error for skipped attempts.
const (
	SkipNoMailbox = "no_mailbox"
)

type Store interface {
	InsertSendRecord(ctx context.Context, r *models.SendRecord) error
	HasSentRecord(ctx context.Context, campaignID, leadID int64) (bool, error)
	LastSentAt(ctx context.Context, campaignID int64) (*time.Time, error)
	CountSentSince(ctx context.Context, campaignID int64, since time.Time) (int, error)
}

type Log struct {
	Store    Store
	Location *time.Location
	Log      *zap.Logger
}

func New(store Store, loc *time.Location, logger *zap.Logger) *Log {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{Store: store, Location: loc, Log: logger}
}

// Ref returns a pointer for the optional id columns of a record.
func Ref(id int64) *int64 {
	return &id
}

// Record appends one attempt. Records are never updated afterwards.
func (l *Log) Record(ctx context.Context, r *models.SendRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	if err := l.Store.InsertSendRecord(ctx, r); err != nil {
		l.Log.Error("failed to write send record",
			zap.String("kind", string(r.Kind)),
			zap.String("to", r.ToEmail),
			zap.Error(err),
		)
		return fmt.Errorf("insert send record: %w", err)
	}

	switch r.Status {
	case models.SendSent:
		metrics.EmailsSent.WithLabelValues(string(r.Kind)).Inc()
	case models.SendError, models.SendBounced:
		metrics.EmailFailures.WithLabelValues(string(r.Kind)).Inc()
	case models.SendSkipped:
		metrics.SendSkips.WithLabelValues(r.Error).Inc()
	}
	return nil
}

func (l *Log) HasSent(ctx context.Context, campaignID, leadID int64) (bool, error) {
	return l.Store.HasSentRecord(ctx, campaignID, leadID)
}

func (l *Log) LastSentAt(ctx context.Context, campaignID int64) (*time.Time, error) {
	return l.Store.LastSentAt(ctx, campaignID)
}

// SentToday counts the campaign's successful sends since midnight in loc,
// which should be the zone the campaign's window is checked in. A nil loc
// falls back to the operator zone.
func (l *Log) SentToday(ctx context.Context, campaignID int64, now time.Time, loc *time.Location) (int, error) {
	if loc == nil {
		loc = l.Location
	}
	return l.Store.CountSentSince(ctx, campaignID, models.StartOfDay(now, loc))
}
