// Package api exposes the read-only reports and the operator actions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"MailRamp/internal/capacity"
	"MailRamp/internal/dispatch"
	"MailRamp/internal/holidays"
	"MailRamp/internal/jobs"
	"MailRamp/internal/models"
	"MailRamp/internal/warmup"
)

type Store interface {
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	CountMemberships(ctx context.Context, campaignID int64, statuses ...models.MembershipStatus) (int, error)
	QueueDepth(ctx context.Context, campaignID int64) (map[models.QueueStatus]int, error)
	ListQueueEntries(ctx context.Context, campaignID int64, status models.QueueStatus, limit int) ([]models.QueueEntry, error)

	GetSender(ctx context.Context, id int64) (*models.Sender, error)
	GetMailbox(ctx context.Context, id int64) (*models.Mailbox, error)
	ListSenderMailboxes(ctx context.Context, senderID int64) ([]models.Mailbox, error)
	WarmupDailyCounts(ctx context.Context, mailboxID int64, since time.Time, loc *time.Location) ([]models.DailyCount, error)
}

type Campaigns interface {
	StartCampaign(ctx context.Context, id int64, now time.Time) (int, error)
	PauseCampaign(ctx context.Context, id int64, now time.Time) (int64, error)
	ResumeCampaign(ctx context.Context, id int64, now time.Time) (int, error)
	CancelCampaign(ctx context.Context, id int64, now time.Time) (int64, error)
	RequeueMembership(ctx context.Context, membershipID int64, now time.Time) error
	ImportLeads(ctx context.Context, campaignID int64, leads []models.Lead, now time.Time) (int, error)
	Tick(ctx context.Context, now time.Time) (dispatch.TickReport, error)
}

type Warmup interface {
	StartWarmup(ctx context.Context, mailboxID int64, now time.Time) (*models.Mailbox, error)
	StopWarmup(ctx context.Context, mailboxID int64) error
	ImportPrewarmed(ctx context.Context, mailboxID int64, now time.Time) error
	Force(ctx context.Context, mailboxID int64) error
	CheckDNSSetup(ctx context.Context, mailboxID int64) (warmup.DNSResult, error)
}

type Holidays interface {
	Between(ctx context.Context, countries []string, from, to time.Time) (map[string][]string, error)
	Prefetch(ctx context.Context, countries []string, now time.Time, progress holidays.Progress) error
}

type Jobs interface {
	Go(ctx context.Context, kind string, total int, fn jobs.Func) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
}

// Handler serves the HTTP API. Holidays may be nil.
type Handler struct {
	Store     Store
	Campaigns Campaigns
	Warmup    Warmup
	Capacity  *capacity.Tracker
	Holidays  Holidays
	Jobs      Jobs

	Countries []string
	Location  *time.Location
	Log       *zap.Logger

	// MaxImportRows bounds a single lead import.
	MaxImportRows int

	now func() time.Time
}

func (h *Handler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

func (h *Handler) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func (h *Handler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

// Routes mounts every endpoint on a fresh router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/campaigns/{id}", func(r chi.Router) {
		r.Get("/stats", h.CampaignStats)
		r.Get("/entries", h.ListEntries)
		r.Post("/start", h.StartCampaign)
		r.Post("/pause", h.PauseCampaign)
		r.Post("/resume", h.ResumeCampaign)
		r.Post("/cancel", h.CancelCampaign)
		r.Post("/leads", h.ImportLeads)
	})
	r.Post("/memberships/{id}/requeue", h.RequeueMembership)

	r.Get("/senders/{id}/mailboxes", h.MailboxStats)

	r.Route("/mailboxes/{id}", func(r chi.Router) {
		r.Get("/warmup", h.WarmupStats)
		r.Post("/warmup/start", h.StartWarmup)
		r.Post("/warmup/stop", h.StopWarmup)
		r.Post("/warmup/prewarmed", h.ImportPrewarmed)
		r.Post("/warmup/force", h.ForceMailbox)
		r.Post("/dns-check", h.CheckDNS)
	})

	r.Post("/tick", h.TickNow)
	r.Get("/holidays", h.ListHolidays)
	r.Post("/holidays/prefetch", h.PrefetchHolidays)
	r.Get("/jobs/{id}", h.GetJob)

	return r
}

// ----------------------------
// Helpers
// ----------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrInvalidCampaign):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, dispatch.ErrCampaignState), errors.Is(err, warmup.ErrInvalidTransition):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
