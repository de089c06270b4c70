package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"MailRamp/internal/csvparser"
	"MailRamp/internal/jobs"
)

// ----------------------------
// Campaigns
// ----------------------------

func (h *Handler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	created, err := h.Campaigns.StartCampaign(r.Context(), id, h.clock())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger().Info("campaign started", zap.Int64("campaign_id", id), zap.Int("queued", created))
	writeJSON(w, http.StatusOK, map[string]any{"campaign_id": id, "queued": created})
}

func (h *Handler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	cancelled, err := h.Campaigns.PauseCampaign(r.Context(), id, h.clock())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaign_id": id, "cancelled": cancelled})
}

func (h *Handler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	created, err := h.Campaigns.ResumeCampaign(r.Context(), id, h.clock())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaign_id": id, "queued": created})
}

func (h *Handler) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	cancelled, err := h.Campaigns.CancelCampaign(r.Context(), id, h.clock())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaign_id": id, "cancelled": cancelled})
}

// ImportLeads reads a CSV either as the raw body or as the "file" field of a
// multipart form.
func (h *Handler) ImportLeads(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file field", http.StatusBadRequest)
			return
		}
		defer file.Close()
		src = file
	}

	leads, err := csvparser.ParseLeads(src, h.MaxImportRows)
	if err != nil {
		http.Error(w, "invalid csv: "+err.Error(), http.StatusBadRequest)
		return
	}

	added, err := h.Campaigns.ImportLeads(r.Context(), id, leads, h.clock())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger().Info("leads imported",
		zap.Int64("campaign_id", id),
		zap.Int("parsed", len(leads)),
		zap.Int("added", added),
	)
	writeJSON(w, http.StatusOK, map[string]any{"campaign_id": id, "parsed": len(leads), "added": added})
}

func (h *Handler) RequeueMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.Campaigns.RequeueMembership(r.Context(), id, h.clock()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"membership_id": id, "status": "queued"})
}

// TickNow runs one dispatch tick. A second call within the same minute does
// not send again.
func (h *Handler) TickNow(w http.ResponseWriter, r *http.Request) {
	report, err := h.Campaigns.Tick(r.Context(), h.clock())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ----------------------------
// Warmup
// ----------------------------

func (h *Handler) StartWarmup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	mb, err := h.Warmup.StartWarmup(r.Context(), id, h.clock())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mb)
}

func (h *Handler) StopWarmup(w http.ResponseWriter, r *http.Request) {
	h.mailboxAction(w, r, h.Warmup.StopWarmup)
}

func (h *Handler) ImportPrewarmed(w http.ResponseWriter, r *http.Request) {
	h.mailboxAction(w, r, func(ctx context.Context, id int64) error {
		return h.Warmup.ImportPrewarmed(ctx, id, h.clock())
	})
}

func (h *Handler) ForceMailbox(w http.ResponseWriter, r *http.Request) {
	h.mailboxAction(w, r, h.Warmup.Force)
}

func (h *Handler) mailboxAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int64) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := action(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	mb, err := h.Store.GetMailbox(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mb)
}

func (h *Handler) CheckDNS(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := h.Warmup.CheckDNSSetup(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mailbox_id": id, "ok": res.OK(), "records": res})
}

// ----------------------------
// Holidays
// ----------------------------

// PrefetchHolidays starts a background cache warm and returns its job.
func (h *Handler) PrefetchHolidays(w http.ResponseWriter, r *http.Request) {
	if h.Holidays == nil {
		http.Error(w, "holiday calendar is not configured", http.StatusNotImplemented)
		return
	}

	countries := h.Countries
	now := h.clock()
	fn := func(ctx context.Context, report jobs.Report) error {
		return h.Holidays.Prefetch(ctx, countries, now, func(_ context.Context, done, _ int) {
			report(done)
		})
	}

	// The job outlives the request.
	j, err := h.Jobs.Go(context.WithoutCancel(r.Context()), "holiday_prefetch", len(countries)*2, fn)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}
