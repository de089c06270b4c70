package memstore

import (
	"context"
	"sort"
	"time"

	"MailRamp/internal/models"
)

func (s *Store) InsertSendRecord(ctx context.Context, r *models.SendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.nextID()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.records = append(s.records, *r)
	return nil
}

func (s *Store) HasSentRecord(ctx context.Context, campaignID, leadID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.Status == models.SendSent && eq(r.CampaignID, campaignID) && eq(r.LeadID, leadID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) LastSentAt(ctx context.Context, campaignID int64) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *time.Time
	for _, r := range s.records {
		if r.Status != models.SendSent || !eq(r.CampaignID, campaignID) {
			continue
		}
		if last == nil || r.CreatedAt.After(*last) {
			t := r.CreatedAt
			last = &t
		}
	}
	return last, nil
}

func (s *Store) CountSentSince(ctx context.Context, campaignID int64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.records {
		if r.Status == models.SendSent && eq(r.CampaignID, campaignID) && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) WarmupDailyCounts(ctx context.Context, mailboxID int64, since time.Time, loc *time.Location) ([]models.DailyCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDay := make(map[time.Time]*models.DailyCount)
	for _, r := range s.records {
		if r.Kind != models.KindWarmup || !eq(r.MailboxID, mailboxID) || r.CreatedAt.Before(since) {
			continue
		}
		day := models.CivilDate(r.CreatedAt, loc)
		c, ok := byDay[day]
		if !ok {
			c = &models.DailyCount{Date: day}
			byDay[day] = c
		}
		switch r.Status {
		case models.SendSent:
			c.Sent++
		case models.SendError, models.SendBounced:
			c.Failed++
		}
	}

	out := make([]models.DailyCount, 0, len(byDay))
	for _, c := range byDay {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func eq(p *int64, v int64) bool {
	return p != nil && *p == v
}
