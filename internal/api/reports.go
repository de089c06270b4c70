package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"MailRamp/internal/capacity"
	"MailRamp/internal/models"
)

type campaignStats struct {
	CampaignID  int64                           `json:"campaign_id"`
	Status      models.CampaignStatus           `json:"status"`
	Queue       map[models.QueueStatus]int      `json:"queue"`
	Memberships map[models.MembershipStatus]int `json:"memberships"`
}

var membershipStatuses = []models.MembershipStatus{
	models.MembershipPlanned,
	models.MembershipQueued,
	models.MembershipSent,
	models.MembershipSkipped,
	models.MembershipBlocked,
}

// CampaignStats reports queue depth by entry status and lead counts by
// membership status.
func (h *Handler) CampaignStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	c, err := h.Store.GetCampaign(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	depth, err := h.Store.QueueDepth(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	members := make(map[models.MembershipStatus]int, len(membershipStatuses))
	for _, status := range membershipStatuses {
		n, err := h.Store.CountMemberships(ctx, id, status)
		if err != nil {
			h.writeError(w, err)
			return
		}
		members[status] = n
	}

	writeJSON(w, http.StatusOK, campaignStats{
		CampaignID:  c.ID,
		Status:      c.Status,
		Queue:       depth,
		Memberships: members,
	})
}

// ListEntries lists queue entries, optionally filtered by ?status= and
// bounded by ?limit= (default 100).
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	status := models.QueueStatus(r.URL.Query().Get("status"))

	if _, err := h.Store.GetCampaign(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	entries, err := h.Store.ListQueueEntries(r.Context(), id, status, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

type mailboxStat struct {
	ID           int64               `json:"id"`
	Email        string              `json:"email"`
	Priority     int                 `json:"priority"`
	Active       bool                `json:"active"`
	WarmupStatus models.WarmupStatus `json:"warmup_status"`
	WarmupDay    int                 `json:"warmup_day"`
	Limit        int                 `json:"limit"`
	Sent         int                 `json:"sent"`
	Remaining    int                 `json:"remaining"`
}

type senderStats struct {
	SenderID  int64         `json:"sender_id"`
	Total     int           `json:"total"`
	Active    int           `json:"active"`
	Limit     int           `json:"limit"`
	Sent      int           `json:"sent"`
	Remaining int           `json:"remaining"`
	Mailboxes []mailboxStat `json:"mailboxes"`
}

// MailboxStats sums today's capacity over a sender's mailboxes. Inactive
// mailboxes are listed but contribute no limit.
func (h *Handler) MailboxStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if _, err := h.Store.GetSender(ctx, id); err != nil {
		h.writeError(w, err)
		return
	}

	mailboxes, err := h.Store.ListSenderMailboxes(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	now := h.clock()
	today := h.Capacity.Today(now)
	out := senderStats{SenderID: id, Total: len(mailboxes), Mailboxes: make([]mailboxStat, 0, len(mailboxes))}
	for _, mb := range mailboxes {
		stat := mailboxStat{
			ID:           mb.ID,
			Email:        mb.Email,
			Priority:     mb.Priority,
			Active:       mb.IsActive,
			WarmupStatus: mb.WarmupStatus,
			WarmupDay:    mb.WarmupDay,
			Sent:         capacity.EffectiveCounters(mb, today).Sent,
		}
		if mb.IsActive {
			stat.Limit = h.Capacity.EffectiveDailyLimit(mb)
			stat.Remaining = h.Capacity.Remaining(mb, now)
			out.Active++
		}

		out.Limit += stat.Limit
		out.Sent += stat.Sent
		out.Remaining += stat.Remaining
		out.Mailboxes = append(out.Mailboxes, stat)
	}

	writeJSON(w, http.StatusOK, out)
}

// WarmupStats returns the warmup sends per day over the last ?days= days
// (default 30).
func (h *Handler) WarmupStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	days := 30
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 366 {
			http.Error(w, "invalid days", http.StatusBadRequest)
			return
		}
		days = n
	}

	mb, err := h.Store.GetMailbox(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	loc := h.location()
	since := models.StartOfDay(h.clock(), loc).AddDate(0, 0, -(days - 1))
	counts, err := h.Store.WarmupDailyCounts(r.Context(), id, since, loc)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mailbox_id":    mb.ID,
		"warmup_status": mb.WarmupStatus,
		"warmup_day":    mb.WarmupDay,
		"days":          counts,
	})
}

// ListHolidays lists cached holidays between ?from= and ?to= (YYYY-MM-DD) for
// ?countries= (comma separated, default the configured list).
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	if h.Holidays == nil {
		http.Error(w, "holiday calendar is not configured", http.StatusNotImplemented)
		return
	}

	q := r.URL.Query()
	from, err := time.Parse(time.DateOnly, q.Get("from"))
	if err != nil {
		http.Error(w, "invalid from date", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.DateOnly, q.Get("to"))
	if err != nil || to.Before(from) {
		http.Error(w, "invalid to date", http.StatusBadRequest)
		return
	}

	countries := h.Countries
	if s := q.Get("countries"); s != "" {
		countries = strings.Split(strings.ToUpper(s), ",")
	}

	days, err := h.Holidays.Between(r.Context(), countries, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}
