// Package webhook reconciles inbound callbacks (chat replies, analysed voice
// calls, delivery failures and new conversations) into person state. Every
// endpoint verifies an HMAC signature over the raw body before reading it.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/idempotency"
	"github.com/foxzi/recupero/internal/kapso"
	"github.com/foxzi/recupero/internal/metrics"
	"github.com/foxzi/recupero/internal/models"
)

const (
	maxBodySize = 1 << 20

	headerSignature   = "X-Webhook-Signature"
	headerEvent       = "X-Webhook-Event"
	headerBatch       = "X-Webhook-Batch"
	headerIdempotency = "X-Idempotency-Key"
	headerRetellSig   = "X-Retell-Signature"
)

// PersonStore is the person persistence the handlers need
type PersonStore interface {
	GetWithPoint(ctx context.Context, id string) (*models.PersonWithPoint, error)
	FindByPhones(ctx context.Context, candidates []string) (*models.Person, error)
	ApplyPatch(ctx context.Context, id string, patch contact.Patch) error
}

// CallStore records voice calls
type CallStore interface {
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	Create(ctx context.Context, c *models.Call) error
}

// CampaignStore resolves the workflow bindings of a campaign
type CampaignStore interface {
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
}

// CounterRefresher recomputes a campaign's aggregates
type CounterRefresher interface {
	RefreshCounters(ctx context.Context, id string) (models.CampaignCounters, error)
}

// Executor starts upstream workflow runs
type Executor interface {
	ExecuteWorkflow(ctx context.Context, workflowID string, req kapso.ExecutionRequest) (*kapso.Execution, error)
}

// Config holds webhook settings
type Config struct {
	KapsoSecret        string
	RetellSecret       string
	FollowUpWorkflowID string
	// DryRun skips workflow executions triggered by webhooks
	DryRun bool
}

// Handler serves the webhook endpoints
type Handler struct {
	cfg       Config
	persons   PersonStore
	calls     CallStore
	campaigns CampaignStore
	counters  CounterRefresher
	executor  Executor
	idem      idempotency.Store
	validate  *validator.Validate
	logger    *slog.Logger

	now func() time.Time
	wg  sync.WaitGroup
}

// NewHandler creates the webhook handler. idem may be nil to disable replay
// detection.
func NewHandler(cfg Config, persons PersonStore, calls CallStore, campaigns CampaignStore,
	counters CounterRefresher, executor Executor, idem idempotency.Store, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		persons:   persons,
		calls:     calls,
		campaigns: campaigns,
		counters:  counters,
		executor:  executor,
		idem:      idem,
		validate:  validator.New(),
		logger:    logger.With("component", "webhook"),
		now:       time.Now,
	}
}

// Routes returns the webhook router, to be mounted under /webhooks
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/kapso", h.handleChatReply)
	r.Post("/kapso/messages", h.handleInboundMessage)
	r.Post("/kapso/failed", h.handleMessageFailed)
	r.Post("/retell", h.handleCallEvent)
	return r
}

// Wait blocks until background follow-up work has finished
func (h *Handler) Wait() {
	h.wg.Wait()
}

// goAsync runs fn detached from the request
func (h *Handler) goAsync(fn func(ctx context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn(context.Background())
	}()
}

// readVerified reads the raw body and checks its Kapso signature. It writes
// the error response itself and returns nil when the request must stop.
func (h *Handler) readVerified(w http.ResponseWriter, r *http.Request, kind string) []byte {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Failed to read body")
		return nil
	}

	if err := VerifySignature(body, r.Header.Get(headerSignature), h.cfg.KapsoSecret); err != nil {
		h.rejectSignature(w, r, kind, err)
		return nil
	}
	return body
}

func (h *Handler) rejectSignature(w http.ResponseWriter, r *http.Request, kind string, err error) {
	if errors.Is(err, ErrMissingSecret) {
		h.logger.Error("webhook secret not configured", "kind", kind)
		metrics.IncWebhook(kind, "error")
		h.sendError(w, http.StatusInternalServerError, "Server configuration error")
		return
	}
	h.logger.Warn("invalid webhook signature", "kind", kind, "remote_addr", r.RemoteAddr)
	metrics.IncWebhook(kind, "unauthorized")
	h.sendError(w, http.StatusUnauthorized, "Invalid signature")
}

// replay answers a request whose idempotency key was already processed
func (h *Handler) replay(w http.ResponseWriter, r *http.Request, kind string) bool {
	key := r.Header.Get(headerIdempotency)
	if key == "" || h.idem == nil {
		return false
	}

	rec, err := h.idem.Get(r.Context(), kind+":"+key)
	if err != nil {
		h.logger.Warn("idempotency lookup failed", "kind", kind, "key", key, "error", err)
		return false
	}
	if rec == nil {
		return false
	}

	h.logger.Info("replayed webhook", "kind", kind, "key", key)
	metrics.IncWebhook(kind, "replayed")
	if rec.Status == http.StatusNoContent {
		w.WriteHeader(rec.Status)
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rec.Status)
	w.Write(rec.Body)
	return true
}

// respond writes a JSON response and remembers it under the request's
// idempotency key. Server errors are not remembered so retries run again.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, kind string, status int, data any) {
	var body []byte
	if data != nil {
		var err error
		if body, err = json.Marshal(data); err != nil {
			h.sendError(w, http.StatusInternalServerError, "Failed to encode response")
			return
		}
	}

	if key := r.Header.Get(headerIdempotency); key != "" && h.idem != nil && status < http.StatusInternalServerError {
		rec := &idempotency.Record{Status: status, Body: body, StoredAt: h.now()}
		if err := h.idem.Put(r.Context(), kind+":"+key, rec); err != nil {
			h.logger.Warn("failed to store idempotency record", "kind", kind, "key", key, "error", err)
		}
	}

	if body == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// apply runs the shared transition function and persists the result
func (h *Handler) apply(ctx context.Context, p *models.Person, ev contact.Event) (contact.State, error) {
	patch, err := contact.Transition(p.ContactView(), ev)
	if err != nil {
		return p.State, err
	}
	if err := h.persons.ApplyPatch(ctx, p.ID, patch); err != nil {
		return p.State, err
	}
	return patch.NewState(p.State), nil
}

func (h *Handler) refreshCounters(ctx context.Context, campaignID string) {
	if h.counters == nil || campaignID == "" {
		return
	}
	if _, err := h.counters.RefreshCounters(ctx, campaignID); err != nil {
		h.logger.Warn("failed to refresh campaign counters", "campaign_id", campaignID, "error", err)
	}
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// sendJSON sends a JSON response
func (h *Handler) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, ErrorResponse{Error: message})
}
