package holidays

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"MailRamp/internal/metrics"
)

// loadedMember marks a cached year, so a country without holidays is still a hit.
const loadedMember = "loaded"

// DefaultCountries are prefetched for the current and next year.
var DefaultCountries = []string{"PL", "DE", "FR", "GB", "US", "IT", "ES", "NL", "BE", "AT"}

// Calendar implements window.HolidayCalendar on top of a Source and Redis.
type Calendar struct {
	Source Source
	Redis  *redis.Client
	TTL    time.Duration
	Log    *zap.Logger
}

func NewCalendar(source Source, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Calendar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calendar{Source: source, Redis: rdb, TTL: ttl, Log: logger}
}

func cacheKey(countryCode string, year int) string {
	return fmt.Sprintf("holidays:%s:%d", strings.ToUpper(countryCode), year)
}

// IsHoliday reports whether date (its calendar day) is a public holiday in
// countryCode. The year is loaded into the cache on first use.
func (c *Calendar) IsHoliday(ctx context.Context, countryCode string, date time.Time) (bool, error) {
	key := cacheKey(countryCode, date.Year())
	day := date.Format(time.DateOnly)

	n, err := c.Redis.Exists(ctx, key).Result()
	if err != nil {
		metrics.HolidayLookups.WithLabelValues("error").Inc()
		return false, fmt.Errorf("holiday cache: %w", err)
	}

	if n > 0 {
		metrics.HolidayLookups.WithLabelValues("hit").Inc()
		ok, err := c.Redis.SIsMember(ctx, key, day).Result()
		if err != nil {
			return false, fmt.Errorf("holiday cache: %w", err)
		}
		return ok, nil
	}

	metrics.HolidayLookups.WithLabelValues("miss").Inc()
	days, err := c.load(ctx, countryCode, date.Year())
	if err != nil {
		metrics.HolidayLookups.WithLabelValues("error").Inc()
		return false, err
	}

	_, ok := days[day]
	return ok, nil
}

// Warm loads one country/year unless it is already cached.
// It returns the number of holidays now known for that year.
func (c *Calendar) Warm(ctx context.Context, countryCode string, year int) (int, error) {
	key := cacheKey(countryCode, year)

	size, err := c.Redis.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("holiday cache: %w", err)
	}
	if size > 0 {
		return int(size) - 1, nil
	}

	days, err := c.load(ctx, countryCode, year)
	if err != nil {
		return 0, err
	}
	return len(days), nil
}

func (c *Calendar) load(ctx context.Context, countryCode string, year int) (map[string]struct{}, error) {
	list, err := c.Source.Fetch(ctx, countryCode, year)
	if err != nil {
		return nil, err
	}

	days := make(map[string]struct{}, len(list))
	members := []any{loadedMember}
	for _, h := range list {
		if _, dup := days[h.Date]; dup {
			continue
		}
		days[h.Date] = struct{}{}
		members = append(members, h.Date)
	}

	key := cacheKey(countryCode, year)
	pipe := c.Redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	if c.TTL > 0 {
		pipe.Expire(ctx, key, c.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("holiday cache write: %w", err)
	}

	c.Log.Info("holidays cached",
		zap.String("country", strings.ToUpper(countryCode)),
		zap.Int("year", year),
		zap.Int("count", len(days)),
	)
	return days, nil
}

// Between lists cached holiday dates of the given countries in [from, to].
func (c *Calendar) Between(ctx context.Context, countries []string, from, to time.Time) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, cc := range countries {
		for year := from.Year(); year <= to.Year(); year++ {
			if _, err := c.Warm(ctx, cc, year); err != nil {
				return nil, err
			}
			members, err := c.Redis.SMembers(ctx, cacheKey(cc, year)).Result()
			if err != nil {
				return nil, fmt.Errorf("holiday cache: %w", err)
			}
			for _, m := range members {
				if m == loadedMember {
					continue
				}
				d, err := time.Parse(time.DateOnly, m)
				if err != nil || d.Before(from) || d.After(to) {
					continue
				}
				out[strings.ToUpper(cc)] = append(out[strings.ToUpper(cc)], m)
			}
		}
	}
	return out, nil
}
