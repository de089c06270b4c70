package warmup

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MailRamp/internal/audit"
	"MailRamp/internal/email"
	"MailRamp/internal/memstore"
	"MailRamp/internal/models"
)

var now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type fakeTransport struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeTransport) Send(ctx context.Context, creds email.Credentials, msg email.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "<id@test>", nil
}

type fixture struct {
	store     *memstore.Store
	transport *fakeTransport
	machine   *Machine
	sender    int64
	mailbox   int64
	peer      int64
}

func setup(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	transport := &fakeTransport{}
	auditLog := audit.New(store, time.UTC, zap.NewNop())

	m := New(store, transport, auditLog, Options{
		Location: time.UTC,
		Rand:     rand.New(rand.NewPCG(7, 11)),
	}, zap.NewNop())

	sender := store.AddSender(models.Sender{Name: "Acme Sales"})
	mailbox := store.AddMailbox(models.Mailbox{
		SenderID:     sender,
		Email:        "new@acme.test",
		IsActive:     true,
		DailyLimit:   100,
		WarmupStatus: models.WarmupInactive,
	})
	peer := store.AddMailbox(models.Mailbox{
		SenderID:     sender,
		Email:        "old@acme.test",
		IsActive:     true,
		DailyLimit:   100,
		WarmupStatus: models.WarmupReady,
	})

	return &fixture{store: store, transport: transport, machine: m, sender: sender, mailbox: mailbox, peer: peer}
}

func (f *fixture) get(t *testing.T, id int64) models.Mailbox {
	t.Helper()
	mb, err := f.store.GetMailbox(context.Background(), id)
	require.NoError(t, err)
	return *mb
}

func TestStartWarmup(t *testing.T) {
	f := setup(t)

	mb, err := f.machine.StartWarmup(context.Background(), f.mailbox, now)
	require.NoError(t, err)

	assert.Equal(t, models.WarmupWarming, mb.WarmupStatus)
	assert.Equal(t, 1, mb.WarmupDay)
	assert.Equal(t, 15, mb.WarmupDailyLimit)
	require.NotNil(t, mb.WarmupStartDate)
	assert.True(t, mb.WarmupStartDate.Equal(now))

	entries := f.store.WarmupEntries(f.mailbox)
	require.NotEmpty(t, entries)
	assert.LessOrEqual(t, len(entries), 15)
	for i, e := range entries {
		assert.Equal(t, "old@acme.test", e.ToEmail)
		assert.Equal(t, 1, e.WarmupDay)
		assert.False(t, e.ScheduledAt.Before(now))
		assert.Less(t, e.ScheduledAt.Hour(), 22)
		if i > 0 {
			gap := e.ScheduledAt.Sub(entries[i-1].ScheduledAt)
			assert.GreaterOrEqual(t, gap, 10*time.Minute)
			assert.Less(t, gap, 30*time.Minute)
		}
	}
}

func TestStartWarmupRejectsWrongState(t *testing.T) {
	f := setup(t)

	_, err := f.machine.StartWarmup(context.Background(), f.peer, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.WarmupReady, te.From)
}

func TestStopWarmupCancelsTraffic(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.machine.StartWarmup(ctx, f.mailbox, now)
	require.NoError(t, err)
	require.NoError(t, f.machine.StopWarmup(ctx, f.mailbox))

	assert.Equal(t, models.WarmupInactive, f.get(t, f.mailbox).WarmupStatus)
	for _, e := range f.store.WarmupEntries(f.mailbox) {
		assert.Equal(t, models.QueueCancelled, e.Status)
	}

	assert.ErrorIs(t, f.machine.StopWarmup(ctx, f.mailbox), ErrInvalidTransition)
}

func TestAdvanceWarmupDaysIsIdempotentWithinADay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.machine.StartWarmup(ctx, f.mailbox, now)
	require.NoError(t, err)

	dayFive := now.AddDate(0, 0, 4).Add(3 * time.Hour)
	advanced, completed, err := f.machine.AdvanceWarmupDays(ctx, dayFive)
	require.NoError(t, err)
	assert.Equal(t, 1, advanced)
	assert.Zero(t, completed)

	mb := f.get(t, f.mailbox)
	assert.Equal(t, 5, mb.WarmupDay)
	assert.Equal(t, 20, mb.WarmupDailyLimit)

	advanced, _, err = f.machine.AdvanceWarmupDays(ctx, dayFive.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, advanced)
	assert.Equal(t, 5, f.get(t, f.mailbox).WarmupDay)
}

func TestAdvanceWarmupDaysCompletesRamp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.machine.StartWarmup(ctx, f.mailbox, now)
	require.NoError(t, err)

	later := now.AddDate(0, 0, 30)
	_, completed, err := f.machine.AdvanceWarmupDays(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	mb := f.get(t, f.mailbox)
	assert.Equal(t, models.WarmupReady, mb.WarmupStatus)
	assert.Zero(t, mb.WarmupDay)
	assert.Zero(t, mb.WarmupDailyLimit)
	assert.Zero(t, mb.WarmupTodaySent)
	require.NotNil(t, mb.WarmupCompletedAt)
	assert.True(t, mb.WarmupCompletedAt.Equal(later))
}

func TestRollDayRunsOncePerDay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.machine.StartWarmup(ctx, f.mailbox, now)
	require.NoError(t, err)

	today := models.CivilDate(now, time.UTC)
	mb := f.get(t, f.peer)
	mb.CurrentDailySent = 40
	mb.LastResetDate = &today
	f.store.UpdateMailbox(mb)

	tomorrow := now.AddDate(0, 0, 1)
	first, err := f.machine.RollDay(ctx, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Reset)
	assert.Equal(t, 1, first.Advanced)
	assert.Positive(t, first.Scheduled)

	assert.Zero(t, f.get(t, f.peer).CurrentDailySent)
	assert.Equal(t, 2, f.get(t, f.mailbox).WarmupDay)

	second, err := f.machine.RollDay(ctx, tomorrow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, DayReport{}, second)
}

func TestSendDue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.machine.StartWarmup(ctx, f.mailbox, now)
	require.NoError(t, err)

	sent, err := f.machine.SendDue(ctx, now)
	require.NoError(t, err)
	assert.True(t, sent)

	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, "new@acme.test", f.transport.sent[0].From)

	mb := f.get(t, f.mailbox)
	assert.Equal(t, 1, mb.WarmupTodaySent)
	assert.Zero(t, mb.CurrentDailySent, "warmup traffic does not use campaign capacity")

	records := f.store.SendRecords()
	require.Len(t, records, 1)
	assert.Equal(t, models.KindWarmup, records[0].Kind)
	assert.Equal(t, models.SendSent, records[0].Status)

	counts, err := f.store.WarmupDailyCounts(ctx, f.mailbox, models.StartOfDay(now, time.UTC), time.UTC)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 1, counts[0].Sent)
}

func TestSendDueOutsideHours(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.machine.StartWarmup(ctx, f.mailbox, now)
	require.NoError(t, err)

	sent, err := f.machine.SendDue(ctx, time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, f.transport.sent)
}

func TestSendDueCancelsOverLimit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.machine.StartWarmup(ctx, f.mailbox, now)
	require.NoError(t, err)

	today := models.CivilDate(now, time.UTC)
	mb := f.get(t, f.mailbox)
	mb.WarmupTodaySent = mb.WarmupDailyLimit
	mb.LastResetDate = &today
	f.store.UpdateMailbox(mb)

	sent, err := f.machine.SendDue(ctx, now)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, f.transport.sent)
	assert.Equal(t, models.QueueCancelled, f.store.WarmupEntries(f.mailbox)[0].Status)
}

func TestReclaimStaleReturnsAbandonedClaims(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.machine.StartWarmup(ctx, f.mailbox, now)
	require.NoError(t, err)

	entry := f.store.WarmupEntries(f.mailbox)[0]
	claimed, err := f.store.ClaimWarmupEntry(ctx, entry.ID, now)
	require.NoError(t, err)
	require.True(t, claimed)

	n, err := f.machine.ReclaimStale(ctx, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n, "a fresh claim is left alone")

	n, err = f.machine.ReclaimStale(ctx, now.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got := f.store.WarmupEntries(f.mailbox)[0]
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, models.QueuePending, got.Status)
	assert.Nil(t, got.ClaimedAt)
}

func TestRepeatedMailboxFaultsFailWarmup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.machine.StartWarmup(ctx, f.mailbox, now)
	require.NoError(t, err)

	f.transport.err = &email.MailboxFault{Err: errors.New("535 authentication failed")}

	for i := 0; i < 3; i++ {
		sent, err := f.machine.SendDue(ctx, now.Add(time.Duration(i)*30*time.Minute))
		assert.Error(t, err)
		assert.False(t, sent)
	}

	mb := f.get(t, f.mailbox)
	assert.Equal(t, models.WarmupFailed, mb.WarmupStatus)
	assert.False(t, mb.IsActive)
	assert.NotEmpty(t, mb.DeactivatedReason)

	for _, e := range f.store.WarmupEntries(f.mailbox) {
		assert.NotEqual(t, models.QueuePending, e.Status)
	}

	require.NoError(t, f.machine.Force(ctx, f.mailbox))
	mb = f.get(t, f.mailbox)
	assert.True(t, mb.Forced)
	assert.True(t, mb.IsActive)
	assert.Zero(t, mb.ConsecutiveFailures)
}

func TestImportPrewarmed(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.machine.ImportPrewarmed(context.Background(), f.mailbox, now))
	mb := f.get(t, f.mailbox)
	assert.Equal(t, models.WarmupReady, mb.WarmupStatus)
	require.NotNil(t, mb.WarmupCompletedAt)

	assert.ErrorIs(t, f.machine.ImportPrewarmed(context.Background(), f.mailbox, now), ErrInvalidTransition)
}

type fakeResolver struct {
	mx  map[string]bool
	txt map[string][]string
}

func (r *fakeResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	if r.mx[name] {
		return []*net.MX{{Host: "mx." + name, Pref: 10}}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (r *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if txt, ok := r.txt[name]; ok {
		return txt, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func TestCheckDNSSetup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	resolver := &fakeResolver{mx: map[string]bool{}, txt: map[string][]string{}}
	f.machine.DNS = &NetDNS{Resolver: resolver, Selectors: []string{"default"}}

	res, err := f.machine.CheckDNSSetup(ctx, f.mailbox)
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, models.WarmupDNSPending, f.get(t, f.mailbox).WarmupStatus)

	resolver.mx["acme.test"] = true
	resolver.txt["_dmarc.acme.test"] = []string{"v=DMARC1; p=none"}
	resolver.txt["default._domainkey.acme.test"] = []string{"v=DKIM1; k=rsa; p=MIGf"}

	passed, err := f.machine.CheckPendingDNS(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, passed)
	assert.Equal(t, models.WarmupReadyToWarmup, f.get(t, f.mailbox).WarmupStatus)

	res, err = f.machine.CheckDNSSetup(ctx, f.mailbox)
	require.NoError(t, err)
	assert.Equal(t, DNSResult{MX: true, DMARC: true, DKIM: true}, res)
}

type fakeInbox struct {
	unread map[string][]InboundMessage
	seen   map[string][]string
}

func (i *fakeInbox) FetchUnread(ctx context.Context, creds email.Credentials, address string) ([]InboundMessage, error) {
	return i.unread[address], nil
}

func (i *fakeInbox) MarkSeen(ctx context.Context, creds email.Credentials, address string, uids []string) error {
	i.seen[address] = append(i.seen[address], uids...)
	return nil
}

func TestProcessInboxMarksOnlyInternalMail(t *testing.T) {
	f := setup(t)

	inbox := &fakeInbox{
		unread: map[string][]InboundMessage{
			"old@acme.test": {
				{UID: "1", From: "new@acme.test"},
				{UID: "2", From: "customer@example.com"},
			},
		},
		seen: map[string][]string{},
	}
	f.machine.Inbox = inbox

	n, err := f.machine.ProcessInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1"}, inbox.seen["old@acme.test"])
}

func TestRecordFaultDeactivatesReadyMailbox(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	peer := f.get(t, f.peer)

	for i := 0; i < 2; i++ {
		off, err := f.machine.RecordFault(ctx, &peer)
		require.NoError(t, err)
		assert.False(t, off)
	}
	off, err := f.machine.RecordFault(ctx, &peer)
	require.NoError(t, err)
	assert.True(t, off)

	got := f.get(t, f.peer)
	assert.False(t, got.IsActive)
	assert.Equal(t, models.WarmupReady, got.WarmupStatus)
	assert.NotEmpty(t, got.DeactivatedReason)
}
