package memstore

import (
	"context"
	"sort"
	"time"

	"MailRamp/internal/models"
)

func (s *Store) GetSender(ctx context.Context, id int64) (*models.Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.senders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *sender
	return &out, nil
}

func (s *Store) GetMailbox(ctx context.Context, id int64) (*models.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *mb
	return &out, nil
}

func (s *Store) listMailboxes(keep func(*models.Mailbox) bool) []models.Mailbox {
	out := make([]models.Mailbox, 0)
	for _, mb := range s.mailboxes {
		if keep(mb) {
			out = append(out, *mb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ListSenderMailboxes(ctx context.Context, senderID int64) ([]models.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listMailboxes(func(mb *models.Mailbox) bool { return mb.SenderID == senderID }), nil
}

func (s *Store) ListMailboxesByWarmupStatus(ctx context.Context, status models.WarmupStatus) ([]models.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listMailboxes(func(mb *models.Mailbox) bool { return mb.WarmupStatus == status }), nil
}

func (s *Store) ListActiveMailboxes(ctx context.Context) ([]models.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listMailboxes(func(mb *models.Mailbox) bool { return mb.IsActive }), nil
}

func (s *Store) ReserveMailboxSlot(ctx context.Context, id int64, limit int, today, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok || !mb.IsActive || limit <= 0 {
		return false, nil
	}

	sent, warmupSent := mb.CurrentDailySent, mb.WarmupTodaySent
	if !models.SameDay(mb.LastResetDate, today) {
		sent, warmupSent = 0, 0
	}
	if sent >= limit {
		return false, nil
	}

	day := today
	mb.LastResetDate = &day
	mb.CurrentDailySent = sent + 1
	mb.WarmupTodaySent = warmupSent
	mb.TotalSent++
	used := now
	mb.LastUsedAt = &used
	mb.UpdatedAt = now
	return true, nil
}

func (s *Store) ReleaseMailboxSlot(ctx context.Context, id int64, today time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return models.ErrNotFound
	}
	if models.SameDay(mb.LastResetDate, today) && mb.CurrentDailySent > 0 {
		mb.CurrentDailySent--
		if mb.TotalSent > 0 {
			mb.TotalSent--
		}
	}
	return nil
}

func (s *Store) ResetMailboxCounters(ctx context.Context, today time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, mb := range s.mailboxes {
		if models.SameDay(mb.LastResetDate, today) {
			continue
		}
		day := today
		mb.LastResetDate = &day
		mb.CurrentDailySent = 0
		mb.WarmupTodaySent = 0
		n++
	}
	return n, nil
}

func (s *Store) ReserveWarmupSlot(ctx context.Context, id int64, today, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok || !mb.IsActive || mb.WarmupStatus != models.WarmupWarming {
		return false, nil
	}

	sent, warmupSent := mb.CurrentDailySent, mb.WarmupTodaySent
	if !models.SameDay(mb.LastResetDate, today) {
		sent, warmupSent = 0, 0
	}
	if warmupSent >= mb.WarmupDailyLimit {
		return false, nil
	}

	day := today
	mb.LastResetDate = &day
	mb.CurrentDailySent = sent
	mb.WarmupTodaySent = warmupSent + 1
	mb.UpdatedAt = now
	return true, nil
}

func (s *Store) TransitionWarmup(ctx context.Context, id int64, from []models.WarmupStatus, u models.WarmupUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if len(from) > 0 && !containsWarmup(from, mb.WarmupStatus) {
		return false, nil
	}

	mb.WarmupStatus = u.Status
	mb.WarmupDay = u.Day
	mb.WarmupDailyLimit = u.DailyLimit
	mb.WarmupTodaySent = u.TodaySent
	mb.WarmupStartDate = u.StartDate
	mb.WarmupCompletedAt = u.CompletedAt
	mb.Forced = u.Forced
	mb.UpdatedAt = time.Now()
	return true, nil
}

func (s *Store) RecordMailboxFailure(ctx context.Context, id int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	mb.ConsecutiveFailures++
	return mb.ConsecutiveFailures, nil
}

func (s *Store) ClearMailboxFailures(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return models.ErrNotFound
	}
	mb.ConsecutiveFailures = 0
	return nil
}

func (s *Store) DeactivateMailbox(ctx context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return models.ErrNotFound
	}
	mb.IsActive = false
	mb.DeactivatedReason = reason
	return nil
}

func (s *Store) ReactivateMailbox(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return models.ErrNotFound
	}
	mb.IsActive = true
	mb.DeactivatedReason = ""
	mb.ConsecutiveFailures = 0
	return nil
}

func containsWarmup(list []models.WarmupStatus, v models.WarmupStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
