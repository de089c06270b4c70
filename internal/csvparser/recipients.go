package csvparser

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"MailRamp/internal/models"
)

var leadColumns = map[string]string{
	"first_name": "first_name",
	"firstname":  "first_name",
	"last_name":  "last_name",
	"lastname":   "last_name",
	"company":    "company",
	"language":   "language",
	"lang":       "language",
}

// ParseLeads parses a CSV from an io.Reader. The CSV must contain a header row
// with an "Email" column (case-insensitive). First name, last name, company
// and language columns are optional; other columns are ignored.
//
// maxRows limits how many data rows are parsed (excluding header).
func ParseLeads(r io.Reader, maxRows int) ([]models.Lead, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, errors.New("csv header row is empty")
	}

	emailIdx := -1
	fields := make([]string, len(headers))
	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "email" {
			emailIdx = i
			continue
		}
		fields[i] = leadColumns[strings.ReplaceAll(h, " ", "_")]
	}
	if emailIdx == -1 {
		return nil, errors.New("csv must contain an Email column")
	}

	if maxRows <= 0 {
		maxRows = 1000
	}

	seen := make(map[string]struct{})
	leads := make([]models.Lead, 0)
	for len(leads) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) != len(headers) {
			// skip malformed row
			continue
		}

		email := strings.ToLower(strings.TrimSpace(record[emailIdx]))
		if email == "" || !strings.Contains(email, "@") {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}

		lead := models.Lead{Email: email}
		for i, field := range fields {
			v := strings.TrimSpace(record[i])
			switch field {
			case "first_name":
				lead.FirstName = v
			case "last_name":
				lead.LastName = v
			case "company":
				lead.Company = v
			case "language":
				lead.Language = strings.ToLower(v)
			}
		}

		leads = append(leads, lead)
	}

	if len(leads) == 0 {
		return nil, errors.New("csv must contain at least one data row")
	}

	return leads, nil
}
