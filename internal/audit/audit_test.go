package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MailRamp/internal/memstore"
	"MailRamp/internal/models"
)

func TestRecordAndQuery(t *testing.T) {
	store := memstore.New()
	log := New(store, time.UTC, zap.NewNop())
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)

	records := []models.SendRecord{
		{Kind: models.KindCampaign, CampaignID: Ref(1), LeadID: Ref(10), Status: models.SendSent, CreatedAt: yesterday},
		{Kind: models.KindCampaign, CampaignID: Ref(1), LeadID: Ref(11), Status: models.SendSent, CreatedAt: now.Add(-time.Hour)},
		{Kind: models.KindCampaign, CampaignID: Ref(1), LeadID: Ref(12), Status: models.SendError, CreatedAt: now.Add(-30 * time.Minute)},
		{Kind: models.KindCampaign, CampaignID: Ref(1), Status: models.SendSkipped, Error: SkipNoMailbox, CreatedAt: now},
		{Kind: models.KindCampaign, CampaignID: Ref(2), LeadID: Ref(10), Status: models.SendSent, CreatedAt: now},
	}
	for i := range records {
		require.NoError(t, log.Record(ctx, &records[i]))
		assert.NotZero(t, records[i].ID)
	}

	sent, err := log.HasSent(ctx, 1, 11)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = log.HasSent(ctx, 1, 12)
	require.NoError(t, err)
	assert.False(t, sent, "an error record is not a send")

	last, err := log.LastSentAt(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(now.Add(-time.Hour)))

	n, err := log.SentToday(ctx, 1, now, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSentTodayUsesGivenZone(t *testing.T) {
	store := memstore.New()
	log := New(store, time.UTC, zap.NewNop())
	ctx := context.Background()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 16:00 UTC on the 9th is already 01:00 on the 10th in Tokyo.
	earlier := time.Date(2026, 3, 9, 16, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	require.NoError(t, log.Record(ctx, &models.SendRecord{
		Kind: models.KindCampaign, CampaignID: Ref(1), LeadID: Ref(10), Status: models.SendSent, CreatedAt: earlier,
	}))

	n, err := log.SentToday(ctx, 1, now, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "the send was yesterday in UTC")

	n, err = log.SentToday(ctx, 1, now, tokyo)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the send was today in Tokyo")
}

func TestRecordStampsCreatedAt(t *testing.T) {
	store := memstore.New()
	log := New(store, nil, nil)

	r := models.SendRecord{Kind: models.KindTest, ToEmail: "a@example.com", Status: models.SendSent}
	require.NoError(t, log.Record(context.Background(), &r))
	assert.False(t, r.CreatedAt.IsZero())
	assert.Len(t, store.SendRecords(), 1)
}
