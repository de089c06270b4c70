package holidays

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	server *httptest.Server
	calls  atomic.Int64
}

func newFakeAPI(t *testing.T, status int) *fakeAPI {
	api := &fakeAPI{}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.calls.Add(1)

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		parts := strings.Split(r.URL.Path, "/")
		cc := parts[len(parts)-1]
		year := parts[len(parts)-2]

		var list []Holiday
		switch cc {
		case "PL":
			list = []Holiday{
				{Date: year + "-01-01", Name: "New Year's Day", CountryCode: "PL"},
				{Date: year + "-11-11", Name: "Independence Day", CountryCode: "PL"},
			}
		case "DE":
			list = []Holiday{{Date: year + "-10-03", Name: "German Unity Day", CountryCode: "DE"}}
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	}))
	t.Cleanup(api.server.Close)
	return api
}

func setupCalendar(t *testing.T, api *fakeAPI) (*Calendar, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := NewClient(api.server.URL, time.Second)
	client.MaxElapsed = time.Second

	return NewCalendar(client, rdb, 24*time.Hour, zap.NewNop()), mr
}

func TestIsHolidayLoadsOnceThenHitsCache(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK)
	cal, mr := setupCalendar(t, api)
	ctx := context.Background()

	ok, err := cal.IsHoliday(ctx, "pl", time.Date(2026, 11, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cal.IsHoliday(ctx, "PL", time.Date(2026, 11, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int64(1), api.calls.Load())
	assert.True(t, mr.Exists("holidays:PL:2026"))
	assert.Equal(t, 24*time.Hour, mr.TTL("holidays:PL:2026"))
}

func TestIsHolidayUnknownCountryIsCachedEmpty(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK)
	cal, _ := setupCalendar(t, api)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := cal.IsHoliday(ctx, "XX", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, int64(1), api.calls.Load())
}

func TestIsHolidayUpstreamFailure(t *testing.T) {
	api := newFakeAPI(t, http.StatusBadGateway)
	cal, mr := setupCalendar(t, api)

	_, err := cal.IsHoliday(context.Background(), "PL", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.GreaterOrEqual(t, api.calls.Load(), int64(2), "5xx responses are retried")
	assert.False(t, mr.Exists("holidays:PL:2026"))
}

func TestClientClientErrorIsNotRetried(t *testing.T) {
	api := newFakeAPI(t, http.StatusBadRequest)
	client := NewClient(api.server.URL, time.Second)

	_, err := client.Fetch(context.Background(), "PL", 2026)
	require.Error(t, err)
	assert.Equal(t, int64(1), api.calls.Load())
}

func TestPrefetchWarmsEveryYear(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK)
	cal, mr := setupCalendar(t, api)

	var reports []int
	progress := func(ctx context.Context, done, total int) {
		assert.Equal(t, 4, total)
		reports = append(reports, done)
	}

	err := cal.Prefetch(context.Background(), []string{"PL", "DE"}, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), progress)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4}, reports)
	for _, key := range []string{"holidays:PL:2026", "holidays:PL:2027", "holidays:DE:2026", "holidays:DE:2027"} {
		assert.True(t, mr.Exists(key), key)
	}

	n, err := cal.Warm(context.Background(), "PL", 2026)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(4), api.calls.Load())
}

func TestBetween(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK)
	cal, _ := setupCalendar(t, api)

	got, err := cal.Between(context.Background(), []string{"PL", "DE"},
		time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, []string{"2026-11-11"}, got["PL"])
	assert.Equal(t, []string{"2026-10-03"}, got["DE"])
}
