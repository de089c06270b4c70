package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"MailRamp/internal/models"
)

func (s *Store) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *Store) ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Campaign, 0)
	for _, c := range s.campaigns {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) TransitionCampaign(ctx context.Context, id int64, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return false, models.ErrNotFound
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			c.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ClaimCampaignTick(ctx context.Context, id int64, minute time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if c.LastTickAt != nil && !c.LastTickAt.Before(minute) {
		return false, nil
	}
	m := minute
	c.LastTickAt = &m
	return true, nil
}

// ----------------------------
// Memberships
// ----------------------------

func (s *Store) CountMemberships(ctx context.Context, campaignID int64, statuses ...models.MembershipStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.memberships {
		if m.CampaignID != campaignID {
			continue
		}
		if len(statuses) == 0 || containsMembership(statuses, m.Status) {
			n++
		}
	}
	return n, nil
}

func (s *Store) PromoteMemberships(ctx context.Context, campaignID int64, from, to models.MembershipStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.memberships {
		if m.CampaignID != campaignID || m.Status != from {
			continue
		}
		if l, ok := s.leads[m.LeadID]; ok && l.Blocked {
			continue
		}
		m.Status = to
		n++
	}
	return n, nil
}

// CreateLead inserts l, or loads the existing lead with the same email into it.
func (s *Store) CreateLead(ctx context.Context, l *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.leads {
		if strings.EqualFold(existing.Email, l.Email) {
			*l = *existing
			return nil
		}
	}

	row := *l
	row.ID = s.nextID()
	s.leads[row.ID] = &row
	l.ID = row.ID
	return nil
}

// CreateMembership adds a lead to a campaign. It returns false when the lead
// is already a member.
func (s *Store) CreateMembership(ctx context.Context, m *models.Membership) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[m.CampaignID]; !ok {
		return false, models.ErrNotFound
	}
	for _, existing := range s.memberships {
		if existing.CampaignID == m.CampaignID && existing.LeadID == m.LeadID {
			return false, nil
		}
	}

	row := *m
	row.ID = s.nextID()
	if row.Status == "" {
		row.Status = models.MembershipPlanned
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	row.Lead = models.Lead{}
	s.memberships[row.ID] = &row

	m.ID = row.ID
	m.Status = row.Status
	m.CreatedAt = row.CreatedAt
	return true, nil
}

func (s *Store) ListQueueableMemberships(ctx context.Context, campaignID int64, limit int) ([]models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Membership, 0)
	for _, m := range s.memberships {
		if m.CampaignID != campaignID || m.Status != models.MembershipQueued {
			continue
		}
		lead, ok := s.leads[m.LeadID]
		if !ok || lead.Blocked {
			continue
		}
		if s.hasActiveEntry(m.ID) {
			continue
		}
		row := *m
		row.Lead = *lead
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetMembership(ctx context.Context, id int64) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberships[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *m
	if lead, ok := s.leads[m.LeadID]; ok {
		out.Lead = *lead
	}
	return &out, nil
}

func (s *Store) SetMembershipStatus(ctx context.Context, id int64, status models.MembershipStatus, sentAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberships[id]
	if !ok {
		return models.ErrNotFound
	}
	m.Status = status
	if sentAt != nil {
		t := *sentAt
		m.SentAt = &t
	}
	return nil
}

func containsMembership(list []models.MembershipStatus, v models.MembershipStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
