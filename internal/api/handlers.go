// Package api exposes the journaling engine over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/driftline-app/driftline/internal/engagement"
	"github.com/driftline-app/driftline/internal/gaps"
	"github.com/driftline-app/driftline/internal/lifecycle"
	"github.com/driftline-app/driftline/internal/reveal"
	"github.com/driftline-app/driftline/internal/signal"
	"github.com/driftline-app/driftline/internal/storage"
	"github.com/driftline-app/driftline/internal/worker"
)

const maxRequestBodySize = 1 << 20 // 1MB

// defaultUserID is used when the client does not identify itself.
// Driftline is a single-user local service; the header exists so
// shared deployments can partition data without schema changes.
const defaultUserID = "local"

type AppDeps struct {
	Store      *storage.Store
	Engine     *lifecycle.Engine
	Generator  *gaps.Generator
	Engagement *engagement.Manager
	Scheduler  *reveal.Scheduler
	Token      string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/entries", handleCreateEntry(deps))
		r.Get("/entries", handleListEntries(deps))
		r.Get("/entries/{id}", handleGetEntry(deps))
		r.Patch("/entries/{id}", handleUpdateEntry(deps))
		r.Post("/entries/{id}/reprocess", handleReprocessEntry(deps))
		r.Get("/entries/{id}/signals", handleListEntrySignals(deps))

		r.Get("/signals/upcoming", handleUpcomingSignals(deps))

		r.Post("/entities/promote", handlePromoteEntity(deps))
		r.Get("/entities", handleListEntities(deps))
		r.Get("/entities/{id}", handleGetEntity(deps))
		r.Post("/entities/{id}/transition", handleTransitionEntity(deps))

		r.Get("/prompts/gap", handleGapPrompt(deps))

		r.Get("/engagement", handleGetEngagement(deps))
		r.Post("/engagement", handleTrackEngagement(deps))
		r.Post("/engagement/snooze", handleSnoozeDomain(deps))

		r.Put("/coverage", handlePutCoverage(deps))

		r.Post("/insights", handleCreateInsight(deps))
		r.Get("/insights", handleListInsights(deps))
		r.Post("/insights/schedule", handleScheduleInsights(deps))
		r.Post("/insights/{id}/reveal", handleRevealInsight(deps))
	})

	return r
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// requestUserID reads the caller's partition key, falling back to the
// local single-user default.
func requestUserID(r *http.Request) string {
	if uid := r.Header.Get("X-User-ID"); uid != "" {
		return uid
	}
	return defaultUserID
}

type entryRequest struct {
	Content string   `json:"content"`
	Domains []string `json:"domains"`
}

type entryResponse struct {
	ID                string    `json:"id"`
	Content           string    `json:"content"`
	Domains           []string  `json:"domains,omitempty"`
	SafetyFlagged     bool      `json:"safety_flagged,omitempty"`
	WarningIndicator  bool      `json:"warning_indicator,omitempty"`
	ExtractionVersion int       `json:"extraction_version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toEntryResponse(e storage.Entry) entryResponse {
	return entryResponse{
		ID:                e.ID,
		Content:           e.Content,
		Domains:           e.Domains,
		SafetyFlagged:     e.SafetyFlagged,
		WarningIndicator:  e.WarningIndicator,
		ExtractionVersion: e.ExtractionVersion,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func handleCreateEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req entryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		now := time.Now().UTC()
		entry := storage.Entry{
			ID:                uuid.New().String(),
			UserID:            requestUserID(r),
			Content:           req.Content,
			Domains:           req.Domains,
			ExtractionVersion: 1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := deps.Store.SaveEntry(r.Context(), entry); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save entry: %v", err)
			return
		}

		if err := worker.EnqueueExtraction(r.Context(), deps.Store, entry.ID, entry.ExtractionVersion); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saved entry but failed to queue extraction: %v", err)
			return
		}

		writeJSON(w, map[string]string{
			"id":     entry.ID,
			"status": "queued",
		})
	}
}

func handleListEntries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		entries, err := deps.Store.ListRecentEntries(r.Context(), requestUserID(r), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list entries: %v", err)
			return
		}

		out := make([]entryResponse, len(entries))
		for i, e := range entries {
			out[i] = toEntryResponse(e)
		}
		writeJSON(w, out)
	}
}

func handleGetEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		entry, err := deps.Store.GetEntry(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get entry: %v", err)
			return
		}

		writeJSON(w, toEntryResponse(entry))
	}
}

func handleUpdateEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req entryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		err := deps.Store.UpdateEntryContent(r.Context(), id, req.Content)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update entry: %v", err)
			return
		}

		// Bumping the version invalidates any extraction still running
		// against the old text; the new job carries the new version.
		version, err := deps.Store.BumpExtractionVersion(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to bump extraction version: %v", err)
			return
		}
		if err := worker.EnqueueExtraction(r.Context(), deps.Store, id, version); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "updated entry but failed to queue extraction: %v", err)
			return
		}

		writeJSON(w, map[string]any{
			"id":                 id,
			"status":             "queued",
			"extraction_version": version,
		})
	}
}

func handleReprocessEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		version, err := deps.Store.BumpExtractionVersion(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to bump extraction version: %v", err)
			return
		}
		if err := worker.EnqueueExtraction(r.Context(), deps.Store, id, version); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue extraction: %v", err)
			return
		}

		writeJSON(w, map[string]any{
			"id":                 id,
			"status":             "queued",
			"extraction_version": version,
		})
	}
}

func handleListEntrySignals(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Store.GetEntry(r.Context(), id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "entry not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get entry: %v", err)
			return
		}

		signals, err := deps.Store.ListEntrySignals(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list signals: %v", err)
			return
		}
		if signals == nil {
			signals = []signal.Signal{}
		}
		writeJSON(w, signals)
	}
}

func handleUpcomingSignals(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := parseIntParam(r, "days", 30, 365)

		now := time.Now()
		signals, err := deps.Store.ListUpcomingSignals(r.Context(), requestUserID(r), now, now.AddDate(0, 0, days))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list upcoming signals: %v", err)
			return
		}
		if signals == nil {
			signals = []signal.Signal{}
		}
		writeJSON(w, signals)
	}
}

type entityResponse struct {
	ID            string                   `json:"id"`
	Type          lifecycle.EntityType     `json:"type"`
	Topic         string                   `json:"topic"`
	State         lifecycle.State          `json:"state"`
	StateHistory  []lifecycle.HistoryEntry `json:"state_history,omitempty"`
	SourceEntries []string                 `json:"source_entries,omitempty"`
	Metadata      map[string]string        `json:"metadata,omitempty"`
	Feedback      lifecycle.Feedback       `json:"feedback"`
	CreatedAt     time.Time                `json:"created_at"`
	LastUpdated   time.Time                `json:"last_updated"`
}

func toEntityResponse(e *lifecycle.Entity) entityResponse {
	return entityResponse{
		ID:            e.ID,
		Type:          e.Type,
		Topic:         e.Topic,
		State:         e.State,
		StateHistory:  e.StateHistory,
		SourceEntries: e.SourceEntries,
		Metadata:      e.Metadata,
		Feedback:      e.Feedback,
		CreatedAt:     e.CreatedAt,
		LastUpdated:   e.LastUpdated,
	}
}

type promoteRequest struct {
	Type     string            `json:"type"`
	Topic    string            `json:"topic"`
	EntryID  string            `json:"entry_id"`
	Metadata map[string]string `json:"metadata"`
}

func handlePromoteEntity(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req promoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Topic == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "topic is required")
			return
		}
		typ := lifecycle.EntityType(req.Type)
		if !lifecycle.ValidEntityType(typ) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown entity type %q", req.Type)
			return
		}

		entity, err := deps.Engine.Promote(r.Context(), requestUserID(r), typ, req.Topic, req.EntryID, req.Metadata)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to promote: %v", err)
			return
		}

		writeJSON(w, toEntityResponse(entity))
	}
}

func handleListEntities(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typ := lifecycle.EntityType(r.URL.Query().Get("type"))
		if typ != "" && !lifecycle.ValidEntityType(typ) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown entity type %q", string(typ))
			return
		}

		entities, err := deps.Store.ListEntities(r.Context(), requestUserID(r), typ)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list entities: %v", err)
			return
		}

		out := make([]entityResponse, len(entities))
		for i, e := range entities {
			out[i] = toEntityResponse(e)
		}
		writeJSON(w, out)
	}
}

func handleGetEntity(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		entity, err := deps.Store.GetEntity(r.Context(), requestUserID(r), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "entity not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get entity: %v", err)
			return
		}

		writeJSON(w, toEntityResponse(entity))
	}
}

type transitionRequest struct {
	To                 string `json:"to"`
	Reason             string `json:"reason"`
	ExcludePermanently bool   `json:"exclude_permanently"`
}

func handleTransitionEntity(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req transitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.To == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "to is required")
			return
		}

		tctx := map[string]string{}
		if req.Reason != "" {
			tctx[lifecycle.CtxReason] = req.Reason
		}
		if req.ExcludePermanently {
			tctx[lifecycle.CtxExcludePermanently] = "true"
		}

		entity, err := deps.Engine.Transition(r.Context(), requestUserID(r), id, lifecycle.State(req.To), tctx)
		var invalid *lifecycle.InvalidTransitionError
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "entity not found")
			return
		case errors.As(err, &invalid):
			httpError(w, http.StatusConflict, "invalid_transition", "%v", invalid)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to transition: %v", err)
			return
		}

		writeJSON(w, toEntityResponse(entity))
	}
}

type gapPromptResponse struct {
	Domain      string    `json:"domain"`
	Style       string    `json:"style"`
	Text        string    `json:"text"`
	GapScore    float64   `json:"gap_score"`
	GeneratedAt time.Time `json:"generated_at"`
}

func handleGapPrompt(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prompt, err := deps.Generator.GenerateGapPrompt(r.Context(), requestUserID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to generate gap prompt: %v", err)
			return
		}
		if prompt == nil {
			writeJSON(w, map[string]any{"prompt": nil})
			return
		}

		writeJSON(w, map[string]any{"prompt": gapPromptResponse{
			Domain:      prompt.Domain,
			Style:       string(prompt.Style),
			Text:        prompt.Text,
			GapScore:    prompt.GapScore,
			GeneratedAt: prompt.GeneratedAt,
		}})
	}
}

func handleGetEngagement(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefs, err := deps.Engagement.Get(r.Context(), requestUserID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get preferences: %v", err)
			return
		}

		writeJSON(w, map[string]any{
			"style_acceptance": prefs.StyleAcceptance,
			"snooze_until":     prefs.SnoozeUntil,
		})
	}
}

type engagementRequest struct {
	Style    string `json:"style"`
	Accepted bool   `json:"accepted"`
}

func handleTrackEngagement(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req engagementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Style == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "style is required")
			return
		}

		if err := deps.Engagement.TrackEngagement(r.Context(), requestUserID(r), req.Style, req.Accepted); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to track engagement: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": "recorded"})
	}
}

type snoozeRequest struct {
	Domain string `json:"domain"`
}

func handleSnoozeDomain(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req snoozeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Domain == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "domain is required")
			return
		}

		if err := deps.Engagement.SnoozeDomain(r.Context(), requestUserID(r), req.Domain); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to snooze domain: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": "snoozed"})
	}
}

type coverageDomain struct {
	NormalizedCoverage float64   `json:"normalized_coverage"`
	LastMentionDate    time.Time `json:"last_mention_date"`
	EntryCount         int       `json:"entry_count"`
}

type coverageRequest struct {
	Domains        map[string]coverageDomain `json:"domains"`
	FirstEntryDate time.Time                 `json:"first_entry_date"`
}

func handlePutCoverage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req coverageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		snap := gaps.CoverageSnapshot{
			Domains:        make(map[string]gaps.DomainCoverage, len(req.Domains)),
			FirstEntryDate: req.FirstEntryDate,
			LastUpdated:    time.Now().UTC(),
		}
		for name, d := range req.Domains {
			snap.Domains[name] = gaps.DomainCoverage{
				NormalizedCoverage: d.NormalizedCoverage,
				LastMentionDate:    d.LastMentionDate,
				EntryCount:         d.EntryCount,
			}
		}

		if err := deps.Store.SetCoverageSnapshot(r.Context(), requestUserID(r), snap); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save coverage snapshot: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": "updated"})
	}
}

type insightRequest struct {
	Content      string  `json:"content"`
	Confidence   float64 `json:"confidence"`
	IsBackfilled bool    `json:"is_backfilled"`
}

type insightResponse struct {
	ID                  string     `json:"id"`
	Content             string     `json:"content"`
	Confidence          float64    `json:"confidence"`
	IsBackfilled        bool       `json:"is_backfilled"`
	ScheduledRevealDate *time.Time `json:"scheduled_reveal_date,omitempty"`
	Revealed            bool       `json:"revealed"`
	CreatedAt           time.Time  `json:"created_at"`
}

func toInsightResponse(i reveal.Insight) insightResponse {
	resp := insightResponse{
		ID:           i.ID,
		Content:      i.Content,
		Confidence:   i.Confidence,
		IsBackfilled: i.IsBackfilled,
		Revealed:     i.Revealed,
		CreatedAt:    i.CreatedAt,
	}
	if !i.ScheduledRevealDate.IsZero() {
		d := i.ScheduledRevealDate
		resp.ScheduledRevealDate = &d
	}
	return resp
}

func handleCreateInsight(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req insightRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		now := time.Now().UTC()
		insight := reveal.Insight{
			ID:           uuid.New().String(),
			UserID:       requestUserID(r),
			Content:      req.Content,
			Confidence:   req.Confidence,
			IsBackfilled: req.IsBackfilled,
			CreatedAt:    now,
		}
		if insight.IsBackfilled {
			insight.BackfilledAt = now
		}

		if err := deps.Store.SaveInsight(r.Context(), insight); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save insight: %v", err)
			return
		}

		writeJSON(w, toInsightResponse(insight))
	}
}

func handleListInsights(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		insights, err := deps.Store.ListInsights(r.Context(), requestUserID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list insights: %v", err)
			return
		}

		now := time.Now()
		visible := make([]insightResponse, 0, len(insights))
		for _, i := range insights {
			if reveal.IsVisible(i, now) {
				visible = append(visible, toInsightResponse(i))
			}
		}
		counts := reveal.GetInsightCounts(insights, now)

		writeJSON(w, map[string]any{
			"insights": visible,
			"counts": map[string]int{
				"visible": counts.Visible,
				"pending": counts.Pending,
			},
		})
	}
}

// handleScheduleInsights assigns drip-feed reveal dates to every
// backfilled insight that does not have one yet.
func handleScheduleInsights(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		insights, err := deps.Store.ListInsights(r.Context(), requestUserID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list insights: %v", err)
			return
		}

		var pending []reveal.Insight
		for _, i := range insights {
			if i.IsBackfilled && !i.Revealed && i.ScheduledRevealDate.IsZero() {
				pending = append(pending, i)
			}
		}

		scheduled, err := deps.Scheduler.Schedule(r.Context(), pending)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to schedule insights: %v", err)
			return
		}

		writeJSON(w, map[string]any{
			"status":    "scheduled",
			"scheduled": len(scheduled),
		})
	}
}

func handleRevealInsight(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Scheduler.MarkRevealed(r.Context(), requestUserID(r), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "insight not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reveal insight: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": "revealed"})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
