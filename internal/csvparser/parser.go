package csvparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"MailRamp/internal/models"
)

// ParseSchedule reads a warmup ramp from a CSV file with the columns
// day, daily_limit, campaign_limit.
func ParseSchedule(path string) (models.WarmupSchedule, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadSchedule(f)
}

// ReadSchedule parses a ramp. Days must run 1..N without gaps and the
// campaign limit of a day may not exceed its daily limit.
func ReadSchedule(r io.Reader) (models.WarmupSchedule, error) {

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) < 2 {
		return nil, errors.New("csv must contain header and at least one row")
	}

	idx := map[string]int{"day": -1, "daily_limit": -1, "campaign_limit": -1}
	for i, h := range records[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := idx[key]; ok {
			idx[key] = i
		}
	}
	for key, i := range idx {
		if i == -1 {
			return nil, fmt.Errorf("csv must contain a %s column", key)
		}
	}

	schedule := make(models.WarmupSchedule, 0, len(records)-1)

	for n, row := range records[1:] {
		line := n + 2

		if len(row) != len(records[0]) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(records[0]), len(row))
		}

		var vals [3]int
		for j, key := range []string{"day", "daily_limit", "campaign_limit"} {
			v, err := strconv.Atoi(strings.TrimSpace(row[idx[key]]))
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, key, err)
			}
			if v < 0 || (key == "day" && v == 0) {
				return nil, fmt.Errorf("line %d: %s out of range: %d", line, key, v)
			}
			vals[j] = v
		}

		if vals[2] > vals[1] {
			return nil, fmt.Errorf("line %d: campaign_limit %d exceeds daily_limit %d", line, vals[2], vals[1])
		}

		schedule = append(schedule, models.WarmupDayConfig{
			Day:           vals[0],
			DailyLimit:    vals[1],
			CampaignLimit: vals[2],
		})
	}

	sort.Slice(schedule, func(i, j int) bool { return schedule[i].Day < schedule[j].Day })
	for i, d := range schedule {
		if d.Day != i+1 {
			return nil, fmt.Errorf("ramp days must run from 1 without gaps; missing or repeated day %d", i+1)
		}
	}

	return schedule, nil
}
