// Package worker fans a tick's campaigns out over a fixed set of goroutines.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Task is one campaign to process within a tick.
type Task struct {
	CampaignID int64
	Now        time.Time
}

type Handler func(ctx context.Context, t Task) error

func StartPool(
	ctx context.Context,
	wg *sync.WaitGroup,
	workers int,
	tasks <-chan Task,
	handle Handler,
	limiter *rate.Limiter,
	logger *zap.Logger,
) {

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()

			logger.Debug("worker started", zap.Int("worker_id", id))

			for {
				select {

				case <-ctx.Done():
					logger.Debug("worker shutting down", zap.Int("worker_id", id))
					return

				case task, ok := <-tasks:
					if !ok {
						return
					}

					// ----------------------------
					// Rate Limit
					// ----------------------------
					if limiter != nil {
						if err := limiter.Wait(ctx); err != nil {
							logger.Warn("rate limiter stopped by context",
								zap.Int("worker_id", id),
								zap.Error(err),
							)
							return
						}
					}

					// ----------------------------
					// Process Campaign
					// ----------------------------
					if err := handle(ctx, task); err != nil {
						logger.Error("campaign processing failed",
							zap.Int("worker_id", id),
							zap.Int64("campaign_id", task.CampaignID),
							zap.Error(err),
						)
					}
				}
			}
		}(i)
	}
}

// Run processes every task on a pool of the given size and returns once all
// of them are done or ctx is cancelled.
func Run(
	ctx context.Context,
	workers int,
	tasks []Task,
	handle Handler,
	limiter *rate.Limiter,
	logger *zap.Logger,
) {
	if len(tasks) == 0 {
		return
	}
	if workers <= 0 {
		workers = 1
	}
	workers = min(workers, len(tasks))

	ch := make(chan Task, len(tasks))
	for _, t := range tasks {
		ch <- t
	}
	close(ch)

	var wg sync.WaitGroup
	StartPool(ctx, &wg, workers, ch, handle, limiter, logger)
	wg.Wait()
}
