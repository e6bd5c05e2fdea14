package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/recupero/internal/campaign"
	"github.com/foxzi/recupero/internal/cut"
	"github.com/foxzi/recupero/internal/dispatch"
	"github.com/foxzi/recupero/internal/models"
)

// DispatchRequest is the request body for POST /dispatch
type DispatchRequest struct {
	CampaignID string `json:"campaign_id"`
	CampanaID  string `json:"campana_id"`
}

func (r DispatchRequest) id() string {
	if r.CampaignID != "" {
		return r.CampaignID
	}
	return r.CampanaID
}

// DistanceRequest is the request body for POST /campaigns/{id}/distance
type DistanceRequest struct {
	MaxDistance float64 `json:"distancia_max"`
}

// RetryResponse is the response for POST /campaigns/{id}/retry
type RetryResponse struct {
	CampaignID string `json:"campana_id"`
	Requeued   int    `json:"reencolados"`
	Error      string `json:"error,omitempty"`
}

// CampaignResponse is the response for GET /campaigns/{id}
type CampaignResponse struct {
	*models.Campaign
	ContactEndDate *string    `json:"fecha_fin_contactacion"`
	LastCutAt      *time.Time `json:"ultimo_corte_at"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleDispatch handles POST /api/v1/dispatch
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.id() == "" {
		s.sendError(w, http.StatusBadRequest, "campaign_id is required")
		return
	}

	report, err := s.dispatcher.Run(r.Context(), req.id(), dispatch.TriggerManual)
	if err != nil {
		s.sendServiceError(w, err, "Dispatch failed", "campaign_id", req.id())
		return
	}

	s.sendJSON(w, http.StatusOK, report)
}

// handlePreflight handles OPTIONS /api/v1/dispatch
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleReminders handles POST /api/v1/reminders
func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	report, err := s.dispatcher.RunReminders(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "Reminder run failed")
		return
	}
	s.sendJSON(w, http.StatusOK, report)
}

// handleCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.campaigns.Get(r.Context(), id)
	if err != nil {
		s.sendServiceError(w, err, "Failed to get campaign", "campaign_id", id)
		return
	}

	resp := CampaignResponse{Campaign: c}
	if c.ContactEndDate.Valid {
		resp.ContactEndDate = &c.ContactEndDate.String
	}
	if c.LastCutAt.Valid {
		resp.LastCutAt = &c.LastCutAt.Time
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleDistance handles POST /api/v1/campaigns/{id}/distance
func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DistanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.campaigns.RecomputeDistance(r.Context(), id, req.MaxDistance)
	if err != nil {
		s.sendServiceError(w, err, "Failed to recalculate distances", "campaign_id", id)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// handleCut handles POST /api/v1/campaigns/{id}/cut
func (s *Server) handleCut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := s.cuts.Run(r.Context(), id)
	if err != nil {
		s.sendServiceError(w, err, "Failed to generate daily cut", "campaign_id", id)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// handleRetry handles POST /api/v1/campaigns/{id}/retry
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := s.dispatcher.RequeueFailed(r.Context(), id)
	if err != nil && (n == 0 || errors.Is(err, dispatch.ErrCampaignNotFound)) {
		s.sendServiceError(w, err, "Failed to requeue persons", "campaign_id", id)
		return
	}

	resp := RetryResponse{CampaignID: id, Requeued: n}
	if err != nil {
		s.logger.Warn("requeue finished with errors", "campaign_id", id, "requeued", n, "error", err)
		resp.Error = err.Error()
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handlePerson handles GET /api/v1/persons/{id}
func (s *Server) handlePerson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := s.persons.Detail(r.Context(), id)
	if err != nil {
		s.sendServiceError(w, err, "Failed to get persona", "persona_id", id)
		return
	}
	s.sendJSON(w, http.StatusOK, detail)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).String(),
	})
}

// sendServiceError maps service errors to status codes. Anything unknown is
// logged and reported as a server error.
func (s *Server) sendServiceError(w http.ResponseWriter, err error, message string, attrs ...any) {
	switch {
	case errors.Is(err, dispatch.ErrCampaignNotFound),
		errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, cut.ErrCampaignNotFound):
		s.sendError(w, http.StatusNotFound, "Campaign not found")
	case errors.Is(err, campaign.ErrPersonNotFound):
		s.sendError(w, http.StatusNotFound, "Persona not found")
	case errors.Is(err, campaign.ErrNoPersons):
		s.sendError(w, http.StatusNotFound, "No persons in campaign")
	case errors.Is(err, campaign.ErrInvalidDistance):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrMissingWorkflow):
		s.logger.Error("workflow not configured", append(attrs, "error", err)...)
		s.sendError(w, http.StatusInternalServerError, "Workflow ID not configured")
	default:
		s.logger.Error(message, append(attrs, "error", err)...)
		s.sendError(w, http.StatusInternalServerError, message)
	}
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
