package db

import (
	"context"

	"github.com/google/uuid"

	"MailRamp/internal/models"
)

func (s *Store) CreateJob(ctx context.Context, j *models.Job) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO jobs (id, kind, status, progress, total, error, started_at, finished_at, updated_at)
		 VALUES ($1::text::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
		j.ID, j.Kind, string(j.Status), j.Progress, j.Total, j.Error, j.StartedAt, j.FinishedAt, j.UpdatedAt,
	)
	return err
}

func (s *Store) UpdateJob(ctx context.Context, j *models.Job) error {
	if _, err := uuid.Parse(j.ID); err != nil {
		return models.ErrNotFound
	}

	tag, err := s.Pool.Exec(ctx,
		`UPDATE jobs
		 SET status = $2, progress = $3, total = $4, error = $5, finished_at = $6, updated_at = $7
		 WHERE id = $1::text::uuid`,
		j.ID, string(j.Status), j.Progress, j.Total, j.Error, j.FinishedAt, j.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	var j models.Job
	err := s.Pool.QueryRow(ctx,
		`SELECT id::text, kind, status, progress, total, error, started_at, finished_at, updated_at
		 FROM jobs WHERE id = $1::text::uuid`,
		id,
	).Scan(&j.ID, &j.Kind, &j.Status, &j.Progress, &j.Total, &j.Error, &j.StartedAt, &j.FinishedAt, &j.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &j, nil
}
