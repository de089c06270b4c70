package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestRunProcessesEveryTask(t *testing.T) {
	now := time.Now()
	tasks := make([]Task, 0, 20)
	for i := int64(1); i <= 20; i++ {
		tasks = append(tasks, Task{CampaignID: i, Now: now})
	}

	var mu sync.Mutex
	seen := make(map[int64]int)

	Run(context.Background(), 4, tasks, func(ctx context.Context, task Task) error {
		mu.Lock()
		defer mu.Unlock()
		seen[task.CampaignID]++
		if task.CampaignID%5 == 0 {
			return errors.New("boom")
		}
		return nil
	}, nil, zap.NewNop())

	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "campaign %d", id)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	tasks := make([]Task, 12)
	for i := range tasks {
		tasks[i] = Task{CampaignID: int64(i + 1)}
	}

	var running, peak int32
	Run(context.Background(), 3, tasks, func(ctx context.Context, task Task) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}, rate.NewLimiter(rate.Inf, 1), zap.NewNop())

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Positive(t, atomic.LoadInt32(&peak))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	Run(ctx, 2, []Task{{CampaignID: 1}, {CampaignID: 2}}, func(ctx context.Context, task Task) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, rate.NewLimiter(rate.Every(time.Hour), 0), zap.NewNop())

	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRunWithNoTasks(t *testing.T) {
	Run(context.Background(), 4, nil, func(ctx context.Context, task Task) error {
		t.Fatal("handler must not run")
		return nil
	}, nil, zap.NewNop())
}
