package memstore

import (
	"context"

	"MailRamp/internal/models"
)

func (s *Store) CreateJob(ctx context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *j
	s.jobs[j.ID] = &row
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID]; !ok {
		return models.ErrNotFound
	}
	row := *j
	s.jobs[j.ID] = &row
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *j
	return &out, nil
}

// JobIDs lists every stored job id in no particular order.
func (s *Store) JobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}
