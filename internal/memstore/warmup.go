package memstore

import (
	"context"
	"sort"
	"time"

	"MailRamp/internal/models"
)

func (s *Store) HasWarmupEntries(ctx context.Context, mailboxID int64, from, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.warmup {
		if e.MailboxID == mailboxID && !e.ScheduledAt.Before(from) && e.ScheduledAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateWarmupEntries(ctx context.Context, entries []models.WarmupEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := range entries {
		row := entries[i]
		row.ID = s.nextID()
		if row.Status == "" {
			row.Status = models.QueuePending
		}
		row.CreatedAt = now
		s.warmup[row.ID] = &row
		entries[i].ID = row.ID
	}
	return nil
}

func (s *Store) NextDueWarmupEntry(ctx context.Context, until time.Time) (*models.WarmupEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *models.WarmupEntry
	for _, e := range s.warmup {
		if e.Status != models.QueuePending || e.ScheduledAt.After(until) {
			continue
		}
		if best == nil || e.ScheduledAt.Before(best.ScheduledAt) ||
			(e.ScheduledAt.Equal(best.ScheduledAt) && e.ID < best.ID) {
			best = e
		}
	}
	if best == nil {
		return nil, models.ErrNotFound
	}
	out := *best
	return &out, nil
}

func (s *Store) ClaimWarmupEntry(ctx context.Context, id int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.warmup[id]
	if !ok || e.Status != models.QueuePending {
		return false, nil
	}
	e.Status = models.QueueSending
	e.ClaimedAt = &now
	return true, nil
}

func (s *Store) ReclaimStaleWarmupEntries(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, e := range s.warmup {
		if e.Status == models.QueueSending && (e.ClaimedAt == nil || e.ClaimedAt.Before(olderThan)) {
			e.Status = models.QueuePending
			e.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *Store) FinishWarmupEntry(ctx context.Context, id int64, status models.QueueStatus, errMsg string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.warmup[id]
	if !ok {
		return models.ErrNotFound
	}
	e.Status = status
	e.Error = errMsg
	if status == models.QueueSent {
		t := now
		e.SentAt = &t
	}
	return nil
}

func (s *Store) CancelWarmupEntries(ctx context.Context, mailboxID int64, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, e := range s.warmup {
		if e.MailboxID == mailboxID && e.Status.Active() {
			e.Status = models.QueueCancelled
			e.Error = reason
			n++
		}
	}
	return n, nil
}

func sortWarmup(list []models.WarmupEntry) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].ScheduledAt.Equal(list[j].ScheduledAt) {
			return list[i].ScheduledAt.Before(list[j].ScheduledAt)
		}
		return list[i].ID < list[j].ID
	})
}
