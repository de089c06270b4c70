package csvparser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MailRamp/internal/models"
)

func TestReadSchedule(t *testing.T) {
	in := "Day, Daily_Limit, Campaign_Limit\n2,20,10\n1,10,5\n3,30,15\n"

	schedule, err := ReadSchedule(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, models.WarmupSchedule{
		{Day: 1, DailyLimit: 10, CampaignLimit: 5},
		{Day: 2, DailyLimit: 20, CampaignLimit: 10},
		{Day: 3, DailyLimit: 30, CampaignLimit: 15},
	}, schedule)
}

func TestReadScheduleErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"header only", "day,daily_limit,campaign_limit\n", "at least one row"},
		{"missing column", "day,daily_limit\n1,10\n", "campaign_limit column"},
		{"not a number", "day,daily_limit,campaign_limit\n1,ten,5\n", "line 2: daily_limit"},
		{"campaign above daily", "day,daily_limit,campaign_limit\n1,10,11\n", "exceeds daily_limit"},
		{"gap", "day,daily_limit,campaign_limit\n1,10,5\n3,10,5\n", "without gaps"},
		{"repeated day", "day,daily_limit,campaign_limit\n1,10,5\n1,10,5\n", "without gaps"},
		{"day zero", "day,daily_limit,campaign_limit\n0,10,5\n", "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSchedule(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScheduleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ramp.csv")
	require.NoError(t, os.WriteFile(path, []byte("day,daily_limit,campaign_limit\n1,15,5\n"), 0o600))

	schedule, err := ParseSchedule(path)
	require.NoError(t, err)
	assert.Equal(t, 1, schedule.Length())

	_, err = ParseSchedule(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestParseLeads(t *testing.T) {
	in := strings.Join([]string{
		"First Name,EMAIL,Company,Lang,Notes",
		"Ada, ADA@Example.com ,Analytical,EN,vip",
		"Bad,not-an-email,X,en,",
		"Dup,ada@example.com,Other,en,",
		"Short,row",
		"Grace,grace@example.com,Navy,,",
	}, "\n")

	leads, err := ParseLeads(strings.NewReader(in), 0)
	require.NoError(t, err)
	assert.Equal(t, []models.Lead{
		{Email: "ada@example.com", FirstName: "Ada", Company: "Analytical", Language: "en"},
		{Email: "grace@example.com", FirstName: "Grace", Company: "Navy"},
	}, leads)
}

func TestParseLeadsLimitsRows(t *testing.T) {
	in := "email\na@x.io\nb@x.io\nc@x.io\n"
	leads, err := ParseLeads(strings.NewReader(in), 2)
	require.NoError(t, err)
	assert.Len(t, leads, 2)
}

func TestParseLeadsRequiresEmailColumn(t *testing.T) {
	_, err := ParseLeads(strings.NewReader("name\nAda\n"), 0)
	assert.ErrorContains(t, err, "Email column")

	_, err = ParseLeads(strings.NewReader("email\n\n"), 0)
	assert.ErrorContains(t, err, "at least one data row")
}
