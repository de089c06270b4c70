// Package memstore is an in-process implementation of the scheduler's
// persistence contract. Every compare-and-swap the Postgres store performs in
// a single statement is performed here under one mutex.
package memstore

import (
	"sync"
	"time"

	"MailRamp/internal/models"
)

type Store struct {
	mu sync.Mutex

	seq int64

	senders     map[int64]*models.Sender
	mailboxes   map[int64]*models.Mailbox
	campaigns   map[int64]*models.Campaign
	leads       map[int64]*models.Lead
	memberships map[int64]*models.Membership
	entries     map[int64]*models.QueueEntry
	warmup      map[int64]*models.WarmupEntry
	records     []models.SendRecord
	jobs        map[string]*models.Job
}

func New() *Store {
	return &Store{
		senders:     make(map[int64]*models.Sender),
		mailboxes:   make(map[int64]*models.Mailbox),
		campaigns:   make(map[int64]*models.Campaign),
		leads:       make(map[int64]*models.Lead),
		memberships: make(map[int64]*models.Membership),
		entries:     make(map[int64]*models.QueueEntry),
		warmup:      make(map[int64]*models.WarmupEntry),
		jobs:        make(map[string]*models.Job),
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// ----------------------------
// Seeding
// ----------------------------

func (s *Store) AddSender(sender models.Sender) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sender.ID == 0 {
		sender.ID = s.nextID()
	}
	s.senders[sender.ID] = &sender
	return sender.ID
}

func (s *Store) SetMainMailbox(senderID, mailboxID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sender, ok := s.senders[senderID]; ok {
		id := mailboxID
		sender.MainMailboxID = &id
	}
}

func (s *Store) AddMailbox(mb models.Mailbox) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mb.ID == 0 {
		mb.ID = s.nextID()
	}
	if mb.WarmupStatus == "" {
		mb.WarmupStatus = models.WarmupInactive
	}
	if mb.CreatedAt.IsZero() {
		mb.CreatedAt = time.Now()
	}
	s.mailboxes[mb.ID] = &mb
	return mb.ID
}

func (s *Store) AddCampaign(c models.Campaign) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		c.ID = s.nextID()
	}
	if c.Status == "" {
		c.Status = models.CampaignDraft
	}
	s.campaigns[c.ID] = &c
	return c.ID
}

func (s *Store) AddLead(l models.Lead) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == 0 {
		l.ID = s.nextID()
	}
	s.leads[l.ID] = &l
	return l.ID
}

// AddMembership stores a membership; creation order follows insertion order.
func (s *Store) AddMembership(m models.Membership) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == 0 {
		m.ID = s.nextID()
	}
	if m.Status == "" {
		m.Status = models.MembershipPlanned
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().Add(time.Duration(m.ID) * time.Microsecond)
	}
	s.memberships[m.ID] = &m
	return m.ID
}

func (s *Store) BlockLead(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leads[id]; ok {
		l.Blocked = true
	}
}

// ----------------------------
// Inspection
// ----------------------------

func (s *Store) SendRecords() []models.SendRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.SendRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) QueueEntries(campaignID int64) []models.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.QueueEntry
	for _, e := range s.entries {
		if e.CampaignID == campaignID {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	return out
}

func (s *Store) WarmupEntries(mailboxID int64) []models.WarmupEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.WarmupEntry
	for _, e := range s.warmup {
		if e.MailboxID == mailboxID {
			out = append(out, *e)
		}
	}
	sortWarmup(out)
	return out
}

// UpdateMailbox overwrites a mailbox row; used by tests and fixtures.
func (s *Store) UpdateMailbox(mb models.Mailbox) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mailboxes[mb.ID] = &mb
}

// UpdateQueueEntry overwrites a queue row; used by tests and fixtures.
func (s *Store) UpdateQueueEntry(e models.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.ID] = &e
}
