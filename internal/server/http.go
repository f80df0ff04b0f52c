package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/idgen"
	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/projection"
	"github.com/groblegark/wealthd/internal/store"
)

// maxPayloadSize caps ingest request bodies at 1 MiB.
const maxPayloadSize = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/ingest/{source}", s.handleIngest)
	mux.HandleFunc("GET /v1/users/{id}/summary", s.handleGetSummary)
	mux.HandleFunc("GET /v1/users/{id}/accounts", s.handleListAccounts)
	mux.HandleFunc("GET /v1/users/{id}/timeline", s.handleGetTimeline)
	mux.HandleFunc("GET /v1/jobs", s.handleListJobs)
	mux.HandleFunc("POST /v1/jobs/reset-failed", s.handleResetFailedJobs)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// ingestResponse is the body returned by POST /v1/ingest/{source}.
type ingestResponse struct {
	RawEventID   string `json:"raw_event_id"`
	JobID        string `json:"job_id,omitempty"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// handleIngest handles POST /v1/ingest/{source}: store the raw payload,
// enqueue reconciliation, return immediately. Identical payloads for the same
// source and user dedupe against the stored raw event instead of enqueuing
// again.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	source := model.Source(strings.ToUpper(r.PathValue("source")))
	if !source.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown source "+r.PathValue("source"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds 1 MiB")
			return
		}
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	var data model.NormalizedEventData
	if err := json.Unmarshal(body, &data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if data.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := r.Context()
	if existing, err := s.store.FindRawEvent(ctx, source, data.UserID, body); err == nil {
		writeJSON(w, http.StatusOK, ingestResponse{RawEventID: existing.ID, Deduplicated: true})
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rawID, err := idgen.NewRawEventID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	raw := &model.RawEvent{ID: rawID, Source: source, UserID: data.UserID, Payload: body}

	jobPayload, err := json.Marshal(model.ReconcileEventPayload{RawEventID: rawID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	job := &model.Job{
		ID:      uuid.NewString(),
		Type:    model.JobReconcileEvent,
		Payload: jobPayload,
		Status:  model.JobPending,
	}

	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateRawEvent(ctx, raw); err != nil {
			return err
		}
		return tx.CreateJob(ctx, job)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.publisher != nil {
		pubErr := s.publisher.Publish(ctx, events.TopicRawEventReceived, events.RawEventReceived{
			RawEventID: rawID,
			Source:     source,
			UserID:     data.UserID,
		})
		if pubErr != nil {
			s.logger.Warn("failed to publish raw event", "raw_event_id", rawID, "error", pubErr)
		}
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{RawEventID: rawID, JobID: job.ID})
}

// handleGetSummary handles GET /v1/users/{id}/summary. A user with no
// projection yet gets an empty summary, not a 404.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	summary, err := s.store.GetUserSummary(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, projection.EmptySummary(userID))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleListAccounts handles GET /v1/users/{id}/accounts.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	views, err := s.store.ListAccountViews(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if views == nil {
		views = []*model.AccountView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// timelineResponse is the body returned by GET /v1/users/{id}/timeline.
type timelineResponse struct {
	Entries    []*model.TimelineEntry `json:"entries"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// handleGetTimeline handles GET /v1/users/{id}/timeline?limit=&cursor=.
func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	cursor, err := projection.DecodeCursor(q.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.store.ListTimeline(r.Context(), r.PathValue("id"), limit, cursor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*model.TimelineEntry{}
	}

	resp := timelineResponse{Entries: entries}
	if len(entries) == limit {
		last := entries[len(entries)-1]
		resp.NextCursor = projection.EncodeCursor(store.TimelineCursor{
			OccurredAt: last.OccurredAt,
			EventID:    last.EventID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListJobs handles GET /v1/jobs?status=&type=&limit=.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.JobFilter{
		Status: model.JobStatus(q.Get("status")),
		Type:   model.JobType(q.Get("type")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleResetFailedJobs handles POST /v1/jobs/reset-failed.
func (s *Server) handleResetFailedJobs(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.ResetFailedJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
