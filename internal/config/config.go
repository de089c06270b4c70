package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP
	// ----------------------------
	SMTPTimeout time.Duration `envconfig:"SMTP_TIMEOUT" default:"15s"`
	DryRun      bool          `envconfig:"DRY_RUN" default:"false"`

	// ----------------------------
	// Dispatch
	// ----------------------------
	WorkerCount      int           `envconfig:"WORKER_COUNT" default:"4"`
	RateLimit        int           `envconfig:"RATE_LIMIT" default:"10"`
	RetryAttempts    int           `envconfig:"RETRY_ATTEMPTS" default:"2"`
	SendTolerance    time.Duration `envconfig:"DISPATCH_TOLERANCE" default:"1m"`
	StaleAfter       time.Duration `envconfig:"DISPATCH_STALE_AFTER" default:"10m"`
	BufferSize       int           `envconfig:"QUEUE_BUFFER_SIZE" default:"20"`
	LowWater         int           `envconfig:"QUEUE_LOW_WATER" default:"5"`
	FailureThreshold int           `envconfig:"MAILBOX_FAILURE_THRESHOLD" default:"3"`

	// ----------------------------
	// Warmup
	// ----------------------------
	WarmupRampFile  string        `envconfig:"WARMUP_RAMP_FILE" default:""`
	WarmupStartHour int           `envconfig:"WARMUP_START_HOUR" default:"6"`
	WarmupEndHour   int           `envconfig:"WARMUP_END_HOUR" default:"22"`
	WarmupTolerance time.Duration `envconfig:"WARMUP_TOLERANCE" default:"10m"`
	WarmupBurst     int           `envconfig:"WARMUP_BURST" default:"50"`
	DNSTimeout      time.Duration `envconfig:"DNS_TIMEOUT" default:"10s"`

	// ----------------------------
	// Holidays
	// ----------------------------
	HolidayAPIURL    string        `envconfig:"HOLIDAY_API_URL" default:"https://date.nager.at"`
	HolidayTimeout   time.Duration `envconfig:"HOLIDAY_TIMEOUT" default:"10s"`
	HolidayCacheTTL  time.Duration `envconfig:"HOLIDAY_CACHE_TTL" default:"720h"`
	HolidayCountries []string      `envconfig:"HOLIDAY_COUNTRIES" default:"PL,DE,FR,GB,US,IT,ES,NL,BE,AT"`
	RedisURL         string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	// ----------------------------
	// Schedules
	// ----------------------------
	TickSpec       string        `envconfig:"CRON_TICK" default:"* * * * *"`
	RollDaySpec    string        `envconfig:"CRON_ROLL_DAY" default:"5 0 * * *"`
	WarmupSendSpec string        `envconfig:"CRON_WARMUP_SEND" default:"*/5 * * * *"`
	DNSCheckSpec   string        `envconfig:"CRON_DNS_CHECK" default:"*/30 * * * *"`
	InboxSpec      string        `envconfig:"CRON_INBOX"` // off until an inbox client is wired
	PrefetchSpec   string        `envconfig:"CRON_PREFETCH" default:"0 3 * * 1"`
	JobTimeout     time.Duration `envconfig:"JOB_TIMEOUT" default:"5m"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Timezone is the operator's zone for daily counters and warmup days.
	Timezone string `envconfig:"TIMEZONE" default:"Europe/Warsaw"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.LowWater > c.BufferSize {
		return fmt.Errorf("QUEUE_LOW_WATER (%d) exceeds QUEUE_BUFFER_SIZE (%d)", c.LowWater, c.BufferSize)
	}
	if c.WarmupStartHour < 0 || c.WarmupEndHour > 24 || c.WarmupStartHour >= c.WarmupEndHour {
		return fmt.Errorf("invalid warmup hours %d-%d", c.WarmupStartHour, c.WarmupEndHour)
	}
	return nil
}

// Location returns the configured operator time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
