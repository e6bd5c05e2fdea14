package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/kapso"
	"github.com/foxzi/recupero/internal/metrics"
	"github.com/foxzi/recupero/internal/models"
	"github.com/foxzi/recupero/internal/phone"
	"github.com/foxzi/recupero/internal/repository"
)

const kindCall = "call"

// handleCallEvent records an analysed voice call and applies its outcome
func (h *Handler) handleCallEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	if err := VerifyRetellSignature(body, r.Header.Get(headerRetellSig), h.cfg.RetellSecret, h.now()); err != nil {
		h.rejectSignature(w, r, kindCall, err)
		return
	}
	if h.replay(w, r, kindCall) {
		return
	}

	var event CallEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.IncWebhook(kindCall, "invalid")
		h.respond(w, r, kindCall, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return
	}

	if event.Event != EventCallAnalyzed {
		metrics.IncWebhook(kindCall, "ignored")
		h.respond(w, r, kindCall, http.StatusOK, MessageResponse{Message: "Event ignored"})
		return
	}

	if err := h.validate.Struct(event.Call); err != nil {
		metrics.IncWebhook(kindCall, "invalid")
		h.respond(w, r, kindCall, http.StatusBadRequest, ErrorResponse{Error: "call_id, persona_id and call_analysis are required"})
		return
	}

	ctx := r.Context()
	call := event.Call
	logger := h.logger.With("kind", kindCall, "call_id", call.CallID, "persona_id", call.DynamicVariables.PersonaID)

	exists, err := h.calls.ExistsByExternalID(ctx, call.CallID)
	if err != nil {
		logger.Error("failed to check call", "error", err)
		metrics.IncWebhook(kindCall, "error")
		h.sendError(w, http.StatusInternalServerError, "Failed to check call")
		return
	}
	if exists {
		h.alreadyProcessed(w, r)
		return
	}

	person, err := h.persons.GetWithPoint(ctx, call.DynamicVariables.PersonaID)
	if err != nil {
		logger.Error("failed to load person", "error", err)
		metrics.IncWebhook(kindCall, "error")
		h.sendError(w, http.StatusInternalServerError, "Failed to load person")
		return
	}
	if person == nil {
		logger.Warn("person not found")
		metrics.IncWebhook(kindCall, "not_found")
		h.respond(w, r, kindCall, http.StatusNotFound, ErrorResponse{Error: "Persona not found"})
		return
	}

	data := call.Analysis.CustomData
	record := &models.Call{
		PersonID:        person.ID,
		ExternalID:      call.CallID,
		CalledAt:        h.callTime(call.StartTimestamp),
		DurationSeconds: int(math.Round(float64(call.DurationMS) / 1000)),
		Transcript:      call.Transcript,
		RecordingURL:    call.RecordingURL,
		Outcome:         models.CallOutcome(data.Outcome),
	}

	// The call is recorded only after its outcome is applied
	var decision contact.Decision
	answered := record.Outcome == "" || record.Outcome == models.CallAnswered
	if answered {
		reply := contact.Reply{
			Confirmed:      data.Confirmed.Ptr(),
			CommitmentDate: string(data.CommitmentDate),
			NegativeReason: string(data.NegativeReason),
			HomePickup:     data.HomePickup.Ptr(),
		}
		decision = contact.Interpret(reply)
		state, err := h.apply(ctx, &person.Person, contact.Event{Kind: contact.EventReply, At: h.now(), Reply: reply})
		if err != nil {
			logger.Error("failed to apply call outcome", "error", err)
			metrics.IncWebhook(kindCall, "error")
			h.sendError(w, http.StatusInternalServerError, "Failed to update persona")
			return
		}
		logger.Info("call outcome applied", "outcome", record.Outcome, "new_state", state)
	} else {
		logger.Info("call recorded without contact", "outcome", record.Outcome)
	}

	if err := h.calls.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateCall) {
			h.alreadyProcessed(w, r)
			return
		}
		logger.Error("failed to record call", "error", err)
		metrics.IncWebhook(kindCall, "error")
		h.sendError(w, http.StatusInternalServerError, "Failed to record call")
		return
	}

	// A valid date confirms on its own, without the boolean
	if answered && decision.State == contact.StateConfirmed {
		h.followUp(person, decision.CommitmentDate)
	}

	h.refreshCounters(ctx, person.CampaignID)

	metrics.IncWebhook(kindCall, "ok")
	h.respond(w, r, kindCall, http.StatusNoContent, nil)
}

func (h *Handler) alreadyProcessed(w http.ResponseWriter, r *http.Request) {
	metrics.IncWebhook(kindCall, "duplicate")
	h.respond(w, r, kindCall, http.StatusOK, MessageResponse{Message: "Call already processed"})
}

func (h *Handler) callTime(startMS int64) time.Time {
	if startMS <= 0 {
		return h.now()
	}
	return time.UnixMilli(startMS)
}

// followUp fires the post-call confirmation workflow in the background. Its
// failure never reaches the webhook caller.
func (h *Handler) followUp(person *models.PersonWithPoint, commitmentDate string) {
	logger := h.logger.With("kind", kindCall, "persona_id", person.ID)
	if h.cfg.FollowUpWorkflowID == "" {
		return
	}
	if h.cfg.DryRun {
		logger.Info("dry run: follow-up workflow not executed", "workflow_id", h.cfg.FollowUpWorkflowID)
		return
	}

	h.goAsync(func(ctx context.Context) {
		req := kapso.ExecutionRequest{
			PhoneNumber: phone.Normalize(person.Phone),
			Variables:   kapso.FollowUpVariables(person, commitmentDate),
			Context: kapso.ExecutionContext{
				Source:     kapso.SourceFollowUp,
				CampaignID: person.CampaignID,
				PersonID:   person.ID,
			},
		}
		if c, err := h.campaigns.GetByID(ctx, person.CampaignID); err == nil && c != nil {
			req.PhoneNumberID = c.PhoneNumberID
		}

		if _, err := h.executor.ExecuteWorkflow(ctx, h.cfg.FollowUpWorkflowID, req); err != nil {
			logger.Error("follow-up workflow failed", "error", err)
			return
		}
		logger.Info("follow-up workflow executed")
	})
}
