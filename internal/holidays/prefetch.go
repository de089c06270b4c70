package holidays

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Progress is told how many country/year pairs are done out of total.
type Progress func(ctx context.Context, done, total int)

// Prefetch warms the cache for every country for the year of now and the next.
// A failing country is logged and skipped; the last error is returned.
func (c *Calendar) Prefetch(ctx context.Context, countries []string, now time.Time, progress Progress) error {
	years := []int{now.Year(), now.Year() + 1}
	total := len(countries) * len(years)
	done := 0

	var lastErr error
	for _, cc := range countries {
		for _, year := range years {
			if err := ctx.Err(); err != nil {
				return err
			}

			if _, err := c.Warm(ctx, cc, year); err != nil {
				c.Log.Warn("holiday prefetch failed",
					zap.String("country", cc),
					zap.Int("year", year),
					zap.Error(err),
				)
				lastErr = fmt.Errorf("prefetch %s/%d: %w", cc, year, err)
			}

			done++
			if progress != nil {
				progress(ctx, done, total)
			}
		}
	}
	return lastErr
}
