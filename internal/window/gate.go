package window

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// HolidayCalendar reports public holidays by ISO country code.
type HolidayCalendar interface {
	IsHoliday(ctx context.Context, countryCode string, date time.Time) (bool, error)
}

type Gate struct {
	Holidays HolidayCalendar
	Log      *zap.Logger
}

func NewGate(holidays HolidayCalendar, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{Holidays: holidays, Log: logger}
}

// IsValidSendTime checks weekday, clock window and, when the window asks for
// it, public holidays in every target country. A failed holiday lookup is
// reported as invalid together with the error.
func (g *Gate) IsValidSendTime(ctx context.Context, now time.Time, w Window) (Result, error) {
	res := w.Check(now)
	if !res.Valid {
		return res, nil
	}

	if !w.RespectHolidays || len(w.Countries) == 0 || g.Holidays == nil {
		return res, nil
	}

	local := now.In(w.loc())
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	for _, cc := range w.Countries {
		holiday, err := g.Holidays.IsHoliday(ctx, cc, date)
		if err != nil {
			g.Log.Warn("holiday lookup failed",
				zap.String("country", cc),
				zap.Time("date", date),
				zap.Error(err),
			)
			return Result{Reason: fmt.Sprintf("holiday calendar unavailable for %s", cc)},
				fmt.Errorf("holiday lookup %s: %w", cc, err)
		}
		if holiday {
			return Result{Reason: fmt.Sprintf(
				"%s is a public holiday in %s", date.Format(time.DateOnly), cc)}, nil
		}
	}

	return res, nil
}
