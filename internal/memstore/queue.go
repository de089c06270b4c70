package memstore

import (
	"context"
	"sort"
	"time"

	"MailRamp/internal/models"
)

func (s *Store) hasActiveEntry(membershipID int64) bool {
	for _, e := range s.entries {
		if e.MembershipID == membershipID && e.Status.Active() {
			return true
		}
	}
	return false
}

// CreateQueueEntry inserts e unless its membership already has an active entry.
func (s *Store) CreateQueueEntry(ctx context.Context, e *models.QueueEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasActiveEntry(e.MembershipID) {
		return false, nil
	}

	now := time.Now()
	row := *e
	row.ID = s.nextID()
	if row.Status == "" {
		row.Status = models.QueuePending
	}
	row.CreatedAt = now
	row.UpdatedAt = now
	s.entries[row.ID] = &row

	e.ID = row.ID
	e.Status = row.Status
	e.CreatedAt = now
	e.UpdatedAt = now
	return true, nil
}

func (s *Store) CountActiveEntries(ctx context.Context, campaignID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.CampaignID == campaignID && e.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (s *Store) LastScheduledAt(ctx context.Context, campaignID int64) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *time.Time
	for _, e := range s.entries {
		if e.CampaignID != campaignID || !e.Status.Active() {
			continue
		}
		if last == nil || e.ScheduledAt.After(*last) {
			t := e.ScheduledAt
			last = &t
		}
	}
	return last, nil
}

func (s *Store) NextDueEntry(ctx context.Context, campaignID int64, until time.Time) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *models.QueueEntry
	for _, e := range s.entries {
		if e.CampaignID != campaignID || e.Status != models.QueuePending || e.ScheduledAt.After(until) {
			continue
		}
		if best == nil || entryBefore(e, best) {
			best = e
		}
	}
	if best == nil {
		return nil, models.ErrNotFound
	}
	out := *best
	return &out, nil
}

func (s *Store) ClaimQueueEntry(ctx context.Context, id int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.Status != models.QueuePending {
		return false, nil
	}
	e.Status = models.QueueSending
	e.UpdatedAt = now
	return true, nil
}

func (s *Store) ReleaseQueueEntry(ctx context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return models.ErrNotFound
	}
	if e.Status == models.QueueSending {
		e.Status = models.QueuePending
		e.UpdatedAt = now
	}
	return nil
}

// FinishQueueEntry resolves an entry that is sending, or was cancelled while
// its send was in flight.
func (s *Store) FinishQueueEntry(ctx context.Context, id int64, status models.QueueStatus, errMsg string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return models.ErrNotFound
	}
	if e.Status != models.QueueSending && e.Status != models.QueueCancelled {
		return nil
	}
	e.Status = status
	e.Error = errMsg
	e.UpdatedAt = now
	if status == models.QueueSent {
		t := now
		e.SentAt = &t
	}
	return nil
}

func (s *Store) CancelActiveEntries(ctx context.Context, campaignID int64, reason string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, e := range s.entries {
		if e.CampaignID == campaignID && e.Status.Active() {
			e.Status = models.QueueCancelled
			e.Error = reason
			e.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *Store) ReclaimStaleEntries(ctx context.Context, olderThan, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, e := range s.entries {
		if e.Status == models.QueueSending && e.UpdatedAt.Before(olderThan) {
			e.Status = models.QueuePending
			e.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *Store) QueueDepth(ctx context.Context, campaignID int64) (map[models.QueueStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	depth := make(map[models.QueueStatus]int)
	for _, e := range s.entries {
		if e.CampaignID == campaignID {
			depth[e.Status]++
		}
	}
	return depth, nil
}

func (s *Store) ListQueueEntries(ctx context.Context, campaignID int64, status models.QueueStatus, limit int) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.QueueEntry, 0)
	for _, e := range s.entries {
		if e.CampaignID == campaignID && (status == "" || e.Status == status) {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func entryBefore(a, b *models.QueueEntry) bool {
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	return a.ID < b.ID
}

func sortEntries(list []models.QueueEntry) {
	sort.Slice(list, func(i, j int) bool { return entryBefore(&list[i], &list[j]) })
}
