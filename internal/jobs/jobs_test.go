package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MailRamp/internal/memstore"
	"MailRamp/internal/models"
)

func TestRunRecordsProgressAndCompletion(t *testing.T) {
	store := memstore.New()
	tr := NewTracker(store, zap.NewNop())
	ctx := context.Background()

	var seen []int
	j, err := tr.Run(ctx, "prefetch", 3, func(ctx context.Context, report Report) error {
		for i := 1; i <= 3; i++ {
			report(i)
			got, err := store.GetJob(ctx, jobID(t, store))
			require.NoError(t, err)
			seen = append(seen, got.Progress)
		}
		return nil
	})
	require.NoError(t, err)

	_, err = uuid.Parse(j.ID)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)

	got, err := tr.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 3, got.Progress)
	assert.NotNil(t, got.FinishedAt)
}

// jobID returns the only stored job id; the tracker assigns ids itself.
func jobID(t *testing.T, store *memstore.Store) string {
	t.Helper()
	ids := store.JobIDs()
	require.Len(t, ids, 1)
	return ids[0]
}

func TestRunRecordsFailure(t *testing.T) {
	store := memstore.New()
	tr := NewTracker(store, zap.NewNop())

	boom := errors.New("boom")
	j, err := tr.Run(context.Background(), "roll-day", 0, func(ctx context.Context, report Report) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := tr.Get(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestGoRunsInBackground(t *testing.T) {
	store := memstore.New()
	tr := NewTracker(store, zap.NewNop())

	release := make(chan struct{})
	j, err := tr.Go(context.Background(), "prefetch", 1, func(ctx context.Context, report Report) error {
		<-release
		report(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, j.Status)

	close(release)
	assert.Eventually(t, func() bool {
		got, err := tr.Get(context.Background(), j.ID)
		return err == nil && got.Status == models.JobCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestGetUnknownJob(t *testing.T) {
	tr := NewTracker(memstore.New(), zap.NewNop())
	_, err := tr.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
