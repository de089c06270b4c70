// Package jobs persists the progress of long-running operations so it can
// be polled by id and survives a restart.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"MailRamp/internal/models"
)

type Store interface {
	CreateJob(ctx context.Context, j *models.Job) error
	UpdateJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
}

// Report records that done units of work are finished.
type Report func(done int)

// Func is the body of a job.
type Func func(ctx context.Context, report Report) error

type Tracker struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewTracker(store Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, log: logger, now: time.Now}
}

func (t *Tracker) Get(ctx context.Context, id string) (*models.Job, error) {
	return t.store.GetJob(ctx, id)
}

func (t *Tracker) start(ctx context.Context, kind string, total int) (*models.Job, error) {
	now := t.now()
	j := &models.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    models.JobRunning,
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return j, nil
}

func (t *Tracker) execute(ctx context.Context, j *models.Job, fn Func) error {
	report := func(done int) {
		j.Progress = done
		j.UpdatedAt = t.now()
		if err := t.store.UpdateJob(ctx, j); err != nil {
			t.log.Warn("failed to save job progress", zap.String("job_id", j.ID), zap.Error(err))
		}
	}

	runErr := fn(ctx, report)

	finished := t.now()
	j.FinishedAt = &finished
	j.UpdatedAt = finished
	if runErr != nil {
		j.Status = models.JobFailed
		j.Error = runErr.Error()
	} else {
		j.Status = models.JobCompleted
		if j.Total > 0 {
			j.Progress = j.Total
		}
	}

	// The job's own context may be done; the final state is still written.
	if err := t.store.UpdateJob(context.WithoutCancel(ctx), j); err != nil {
		return fmt.Errorf("finish job %s: %w", j.ID, err)
	}

	t.log.Info("job finished",
		zap.String("job_id", j.ID),
		zap.String("kind", j.Kind),
		zap.String("status", string(j.Status)),
		zap.Int("progress", j.Progress),
	)
	return runErr
}

// Run executes fn in the caller's goroutine and returns its error.
func (t *Tracker) Run(ctx context.Context, kind string, total int, fn Func) (*models.Job, error) {
	j, err := t.start(ctx, kind, total)
	if err != nil {
		return nil, err
	}
	return j, t.execute(ctx, j, fn)
}

// Go starts fn in the background and returns the running job at once.
func (t *Tracker) Go(ctx context.Context, kind string, total int, fn Func) (*models.Job, error) {
	j, err := t.start(ctx, kind, total)
	if err != nil {
		return nil, err
	}

	snapshot := *j
	go func() {
		if err := t.execute(ctx, j, fn); err != nil {
			t.log.Error("background job failed", zap.String("job_id", j.ID), zap.Error(err))
		}
	}()
	return &snapshot, nil
}
