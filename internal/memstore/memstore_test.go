package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MailRamp/internal/models"
)

var now = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

func TestReserveMailboxSlotResetsOnNewDay(t *testing.T) {
	s := New()
	ctx := context.Background()
	yesterday := models.CivilDate(now.AddDate(0, 0, -1), time.UTC)
	today := models.CivilDate(now, time.UTC)

	id := s.AddMailbox(models.Mailbox{
		Email:            "anna@acme.test",
		IsActive:         true,
		DailyLimit:       2,
		CurrentDailySent: 2,
		WarmupTodaySent:  4,
		LastResetDate:    &yesterday,
	})

	for i := 0; i < 2; i++ {
		ok, err := s.ReserveMailboxSlot(ctx, id, 2, today, now)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := s.ReserveMailboxSlot(ctx, id, 2, today, now)
	require.NoError(t, err)
	assert.False(t, ok)

	mb, err := s.GetMailbox(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, mb.CurrentDailySent)
	assert.Zero(t, mb.WarmupTodaySent)
	assert.True(t, models.SameDay(mb.LastResetDate, today))

	require.NoError(t, s.ReleaseMailboxSlot(ctx, id, today))
	mb, err = s.GetMailbox(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, mb.CurrentDailySent)
}

func TestCreateQueueEntryKeepsOneActivePerMembership(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := &models.QueueEntry{CampaignID: 1, MembershipID: 7, ScheduledAt: now}
	ok, err := s.CreateQueueEntry(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.CreateQueueEntry(ctx, &models.QueueEntry{CampaignID: 1, MembershipID: 7, ScheduledAt: now})
	require.NoError(t, err)
	assert.False(t, ok)

	claimed, err := s.ClaimQueueEntry(ctx, first.ID, now)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = s.ClaimQueueEntry(ctx, first.ID, now)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, s.FinishQueueEntry(ctx, first.ID, models.QueueFailed, "boom", now))

	ok, err = s.CreateQueueEntry(ctx, &models.QueueEntry{CampaignID: 1, MembershipID: 7, ScheduledAt: now})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimCampaignTickOncePerMinute(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := s.AddCampaign(models.Campaign{Status: models.CampaignInProgress})
	minute := now.Truncate(time.Minute)

	ok, err := s.ClaimCampaignTick(ctx, id, minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimCampaignTick(ctx, id, minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ClaimCampaignTick(ctx, id, minute.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.ClaimCampaignTick(ctx, 999, minute)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateLeadMatchesEmailCaseInsensitively(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := &models.Lead{Email: "Nina@Example.com", FirstName: "Nina"}
	require.NoError(t, s.CreateLead(ctx, first))

	again := &models.Lead{Email: "nina@example.com"}
	require.NoError(t, s.CreateLead(ctx, again))
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Nina", again.FirstName)
}
