// Package window decides whether a campaign may send at a given moment.
package window

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"MailRamp/internal/models"
)

// Window is a campaign's sending schedule in its own timezone.
// An empty Days list allows no weekday at all.
type Window struct {
	Days        []time.Weekday
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int

	RespectHolidays bool
	Countries       []string

	Location *time.Location
}

// Result is the outcome of a send-time check. Reason is set when Valid is false.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

var dayCodes = map[string]time.Weekday{
	"SUN": time.Sunday, "SUNDAY": time.Sunday,
	"MON": time.Monday, "MONDAY": time.Monday,
	"TUE": time.Tuesday, "TUESDAY": time.Tuesday,
	"WED": time.Wednesday, "WEDNESDAY": time.Wednesday,
	"THU": time.Thursday, "THURSDAY": time.Thursday,
	"FRI": time.Friday, "FRIDAY": time.Friday,
	"SAT": time.Saturday, "SATURDAY": time.Saturday,
}

// ParseDays accepts short or long English day names in any case.
func ParseDays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		d, ok := dayCodes[n]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
		days = append(days, d)
	}
	return days, nil
}

// FromCampaign builds the window of c. fallback is used when the campaign
// has no timezone of its own.
func FromCampaign(c models.Campaign, fallback *time.Location) (Window, error) {
	days, err := ParseDays(c.AllowedDays)
	if err != nil {
		return Window{}, fmt.Errorf("campaign %d: %w", c.ID, err)
	}

	loc := fallback
	if c.Timezone != "" {
		loc, err = time.LoadLocation(c.Timezone)
		if err != nil {
			return Window{}, fmt.Errorf("campaign %d timezone: %w", c.ID, err)
		}
	}
	if loc == nil {
		loc = time.UTC
	}

	return Window{
		Days:            days,
		StartHour:       c.StartHour,
		StartMinute:     c.StartMinute,
		EndHour:         c.EndHour,
		EndMinute:       c.EndMinute,
		RespectHolidays: c.RespectHolidays,
		Countries:       c.TargetCountries,
		Location:        loc,
	}, nil
}

func (w Window) loc() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

func (w Window) start() int { return w.StartHour*3600 + w.StartMinute*60 }
func (w Window) end() int   { return w.EndHour*3600 + w.EndMinute*60 }

func (w Window) allows(d time.Weekday) bool {
	return slices.Contains(w.Days, d)
}

// Check applies the weekday and clock rules. Holidays are not consulted.
func (w Window) Check(t time.Time) Result {
	local := t.In(w.loc())

	if !w.allows(local.Weekday()) {
		return Result{Reason: fmt.Sprintf(
			"sending not allowed on %s; allowed days: %s", local.Weekday(), w.dayList())}
	}

	secs := local.Hour()*3600 + local.Minute()*60 + local.Second()
	if secs < w.start() || secs >= w.end() {
		return Result{Reason: fmt.Sprintf(
			"outside sending hours %02d:%02d-%02d:%02d",
			w.StartHour, w.StartMinute, w.EndHour, w.EndMinute)}
	}

	return Result{Valid: true}
}

func (w Window) dayList() string {
	if len(w.Days) == 0 {
		return "none"
	}
	names := make([]string, len(w.Days))
	for i, d := range w.Days {
		names[i] = d.String()[:3]
	}
	return strings.Join(names, ", ")
}

// NextOpening returns the first instant at or after t that passes Check.
// It looks at most 30 days ahead.
func (w Window) NextOpening(t time.Time) (time.Time, bool) {
	if w.end() <= w.start() {
		return time.Time{}, false
	}

	loc := w.loc()
	local := t.In(loc)
	if w.Check(local).Valid {
		return t, true
	}

	y, m, d := local.Date()
	for i := 0; i <= 30; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		if !w.allows(day.Weekday()) {
			continue
		}
		open := time.Date(y, m, d+i, w.StartHour, w.StartMinute, 0, 0, loc)
		if !open.Before(local) {
			return open, true
		}
	}

	return time.Time{}, false
}
