package queue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MailRamp/internal/memstore"
	"MailRamp/internal/models"
)

// Wednesday, inside a 09-17 window.
var now = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

func newQueue(store *memstore.Store, buffer, lowWater int) *Queue {
	return New(store, Options{
		BufferSize: buffer,
		LowWater:   lowWater,
		Location:   time.UTC,
		Rand:       rand.New(rand.NewPCG(1, 2)),
	}, zap.NewNop())
}

func seedCampaign(store *memstore.Store, c models.Campaign, leads int) (int64, []int64) {
	if c.AllowedDays == nil {
		c.AllowedDays = []string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}
	}
	if c.EndHour == 0 {
		c.StartHour, c.EndHour = 0, 24
	}
	if c.DelayBetweenEmails == 0 {
		c.DelayBetweenEmails = 120
	}
	c.Status = models.CampaignInProgress
	id := store.AddCampaign(c)

	var memberships []int64
	for i := 0; i < leads; i++ {
		lead := store.AddLead(models.Lead{Email: fmt.Sprintf("lead%d@example.com", i)})
		memberships = append(memberships, store.AddMembership(models.Membership{
			CampaignID: id,
			LeadID:     lead,
			Status:     models.MembershipQueued,
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
		}))
	}
	return id, memberships
}

func TestInitializeQueueCreatesOnlyWhatIsQueued(t *testing.T) {
	store := memstore.New()
	q := newQueue(store, 20, 5)
	id, _ := seedCampaign(store, models.Campaign{}, 5)

	n, err := q.InitializeQueue(context.Background(), id, 20, now)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, store.QueueEntries(id), 5)
}

func TestInitializeQueueRespectsBufferAndOrder(t *testing.T) {
	store := memstore.New()
	q := newQueue(store, 3, 1)
	id, memberships := seedCampaign(store, models.Campaign{}, 6)

	n, err := q.InitializeQueue(context.Background(), id, 0, now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries := store.QueueEntries(id)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, memberships[i], e.MembershipID)
		assert.Equal(t, models.QueuePending, e.Status)
	}
}

func TestInitializeQueueSpacingIsJittered(t *testing.T) {
	store := memstore.New()
	q := newQueue(store, 20, 5)
	id, _ := seedCampaign(store, models.Campaign{DelayBetweenEmails: 100}, 10)

	_, err := q.InitializeQueue(context.Background(), id, 20, now)
	require.NoError(t, err)

	entries := store.QueueEntries(id)
	require.Len(t, entries, 10)
	assert.True(t, entries[0].ScheduledAt.Equal(now))

	for i := 1; i < len(entries); i++ {
		gap := entries[i].ScheduledAt.Sub(entries[i-1].ScheduledAt)
		assert.GreaterOrEqual(t, gap, 80*time.Second)
		assert.Less(t, gap, 120*time.Second)
	}
}

func TestInitializeQueuePushesIntoWindow(t *testing.T) {
	store := memstore.New()
	q := newQueue(store, 20, 5)
	id, _ := seedCampaign(store, models.Campaign{
		AllowedDays:        []string{"MON", "TUE", "WED", "THU", "FRI"},
		StartHour:          9,
		EndHour:            17,
		DelayBetweenEmails: 3600,
	}, 10)

	late := time.Date(2026, 3, 13, 15, 30, 0, 0, time.UTC) // Friday
	_, err := q.InitializeQueue(context.Background(), id, 20, late)
	require.NoError(t, err)

	for _, e := range store.QueueEntries(id) {
		at := e.ScheduledAt
		assert.NotEqual(t, time.Saturday, at.Weekday(), at)
		assert.NotEqual(t, time.Sunday, at.Weekday(), at)
		assert.GreaterOrEqual(t, at.Hour(), 9, at)
		assert.Less(t, at.Hour(), 17, at)
	}
}

func TestInitializeQueueNeverDuplicatesActiveEntries(t *testing.T) {
	store := memstore.New()
	q := newQueue(store, 20, 5)
	id, _ := seedCampaign(store, models.Campaign{}, 4)
	ctx := context.Background()

	_, err := q.InitializeQueue(ctx, id, 20, now)
	require.NoError(t, err)
	n, err := q.InitializeQueue(ctx, id, 20, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	seen := map[int64]int{}
	for _, e := range store.QueueEntries(id) {
		if e.Status.Active() {
			seen[e.MembershipID]++
		}
	}
	for membership, count := range seen {
		assert.Equal(t, 1, count, "membership %d", membership)
	}
}

func TestInitializeQueueAnchors(t *testing.T) {
	t.Run("future scheduled start", func(t *testing.T) {
		store := memstore.New()
		q := newQueue(store, 20, 5)
		start := now.Add(3 * time.Hour)
		id, _ := seedCampaign(store, models.Campaign{ScheduledAt: &start}, 1)

		_, err := q.InitializeQueue(context.Background(), id, 20, now)
		require.NoError(t, err)
		assert.True(t, store.QueueEntries(id)[0].ScheduledAt.Equal(start))
	})

	t.Run("recent send", func(t *testing.T) {
		store := memstore.New()
		q := newQueue(store, 20, 5)
		id, _ := seedCampaign(store, models.Campaign{DelayBetweenEmails: 300}, 1)

		sentAt := now.Add(-2 * time.Minute)
		require.NoError(t, store.InsertSendRecord(context.Background(), &models.SendRecord{
			Kind: models.KindCampaign, CampaignID: &id, Status: models.SendSent, CreatedAt: sentAt,
		}))

		_, err := q.InitializeQueue(context.Background(), id, 20, now)
		require.NoError(t, err)
		assert.True(t, store.QueueEntries(id)[0].ScheduledAt.Equal(sentAt.Add(5*time.Minute)))
	})

	t.Run("old send is ignored", func(t *testing.T) {
		store := memstore.New()
		q := newQueue(store, 20, 5)
		id, _ := seedCampaign(store, models.Campaign{DelayBetweenEmails: 300}, 1)

		require.NoError(t, store.InsertSendRecord(context.Background(), &models.SendRecord{
			Kind: models.KindCampaign, CampaignID: &id, Status: models.SendSent, CreatedAt: now.Add(-time.Hour),
		}))

		_, err := q.InitializeQueue(context.Background(), id, 20, now)
		require.NoError(t, err)
		assert.True(t, store.QueueEntries(id)[0].ScheduledAt.Equal(now))
	})
}

func TestRefillOnlyBelowLowWater(t *testing.T) {
	store := memstore.New()
	q := newQueue(store, 4, 2)
	id, _ := seedCampaign(store, models.Campaign{}, 10)
	ctx := context.Background()

	_, err := q.InitializeQueue(ctx, id, 0, now)
	require.NoError(t, err)

	n, err := q.Refill(ctx, id, now)
	require.NoError(t, err)
	assert.Zero(t, n, "buffer is full")

	original := map[int64]bool{}
	// Resolve three entries so one active entry remains.
	for i, e := range store.QueueEntries(id) {
		original[e.ID] = true
		if i >= 3 {
			continue
		}
		ok, err := store.ClaimQueueEntry(ctx, e.ID, now)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, store.FinishQueueEntry(ctx, e.ID, models.QueueSent, "", now))
		require.NoError(t, store.SetMembershipStatus(ctx, e.MembershipID, models.MembershipSent, &now))
	}

	last, err := store.LastScheduledAt(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, last)

	n, err = q.Refill(ctx, id, now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	active, err := store.CountActiveEntries(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, active)

	for _, e := range store.QueueEntries(id) {
		if !original[e.ID] {
			assert.True(t, e.ScheduledAt.After(*last), "refill continues after the last scheduled entry")
		}
	}
}

func TestCancelAllKeepsHistory(t *testing.T) {
	store := memstore.New()
	q := newQueue(store, 20, 5)
	id, _ := seedCampaign(store, models.Campaign{}, 3)
	ctx := context.Background()

	_, err := q.InitializeQueue(ctx, id, 20, now)
	require.NoError(t, err)

	entries := store.QueueEntries(id)
	ok, err := store.ClaimQueueEntry(ctx, entries[0].ID, now)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := q.CancelAll(ctx, id, "paused", now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	entries = store.QueueEntries(id)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, models.QueueCancelled, e.Status)
		assert.Equal(t, "paused", e.Error)
	}
}
