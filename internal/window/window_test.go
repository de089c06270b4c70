package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MailRamp/internal/models"
)

var everyDay = []time.Weekday{
	time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
	time.Thursday, time.Friday, time.Saturday,
}

func weekdays(t *testing.T) []time.Weekday {
	days, err := ParseDays([]string{"Mon", "Tue", "Wed", "Thu", "Fri"})
	require.NoError(t, err)
	return days
}

func TestParseDays(t *testing.T) {
	days, err := ParseDays([]string{"MON", "tuesday", " Sat ", ""})
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Saturday}, days)

	_, err = ParseDays([]string{"Funday"})
	assert.Error(t, err)
}

func TestCheckRejectsWeekend(t *testing.T) {
	w := Window{Days: weekdays(t), StartHour: 9, EndHour: 17, Location: time.UTC}

	// 2026-03-14 is a Saturday.
	res := w.Check(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Reason, "Saturday")
	assert.Contains(t, res.Reason, "allowed days")
}

func TestCheckHourBoundaries(t *testing.T) {
	w := Window{Days: weekdays(t), StartHour: 9, StartMinute: 30, EndHour: 17, EndMinute: 15, Location: time.UTC}
	day := func(h, m, s int) time.Time { return time.Date(2026, 3, 11, h, m, s, 0, time.UTC) }

	tests := []struct {
		name  string
		at    time.Time
		valid bool
	}{
		{"before start", day(9, 29, 59), false},
		{"at start", day(9, 30, 0), true},
		{"midday", day(12, 0, 0), true},
		{"one second before end", day(17, 14, 59), true},
		{"at end", day(17, 15, 0), false},
		{"after end", day(20, 0, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := w.Check(tt.at)
			assert.Equal(t, tt.valid, res.Valid)
			if !tt.valid {
				assert.Contains(t, res.Reason, "outside sending hours")
			}
		})
	}
}

func TestCheckUsesWindowTimezone(t *testing.T) {
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	w := Window{Days: everyDay, StartHour: 9, EndHour: 17, Location: warsaw}

	// 07:30 UTC is 08:30 in Warsaw during winter time.
	assert.False(t, w.Check(time.Date(2026, 1, 14, 7, 30, 0, 0, time.UTC)).Valid)
	assert.True(t, w.Check(time.Date(2026, 1, 14, 8, 0, 0, 0, time.UTC)).Valid)
}

func TestEmptyDaysAllowsNoDay(t *testing.T) {
	w := Window{StartHour: 0, EndHour: 24, Location: time.UTC}

	for d := 9; d <= 15; d++ {
		res := w.Check(time.Date(2026, 3, d, 10, 0, 0, 0, time.UTC))
		assert.False(t, res.Valid)
		assert.Contains(t, res.Reason, "allowed days: none")
	}

	_, ok := w.NextOpening(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestNextOpening(t *testing.T) {
	w := Window{Days: weekdays(t), StartHour: 9, EndHour: 17, Location: time.UTC}

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{
			name: "inside window stays",
			from: time.Date(2026, 3, 11, 10, 15, 0, 0, time.UTC),
			want: time.Date(2026, 3, 11, 10, 15, 0, 0, time.UTC),
		},
		{
			name: "before opening same day",
			from: time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "after closing moves to next day",
			from: time.Date(2026, 3, 11, 17, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "friday evening moves to monday",
			from: time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := w.NextOpening(tt.from)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestNextOpeningEmptyWindow(t *testing.T) {
	w := Window{StartHour: 17, EndHour: 9, Location: time.UTC}
	_, ok := w.NextOpening(time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestFromCampaign(t *testing.T) {
	c := models.Campaign{
		ID:              7,
		AllowedDays:     []string{"MON", "FRI"},
		StartHour:       8,
		EndHour:         16,
		EndMinute:       30,
		RespectHolidays: true,
		TargetCountries: []string{"PL", "DE"},
		Timezone:        "Europe/Berlin",
	}

	w, err := FromCampaign(c, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, w.Days)
	assert.Equal(t, "Europe/Berlin", w.Location.String())
	assert.Equal(t, []string{"PL", "DE"}, w.Countries)

	c.Timezone = "Nowhere/Nothing"
	_, err = FromCampaign(c, time.UTC)
	assert.Error(t, err)

	c.Timezone = ""
	w, err = FromCampaign(c, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, w.Location)
}
