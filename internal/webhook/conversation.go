package webhook

import (
	"encoding/json"
	"net/http"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/kapso"
	"github.com/foxzi/recupero/internal/metrics"
	"github.com/foxzi/recupero/internal/phone"
)

const kindConversation = "conversation"

// ConversationResponse acknowledges an inbound message
type ConversationResponse struct {
	Success   bool   `json:"success"`
	PersonaID string `json:"persona_id,omitempty"`
	Message   string `json:"message"`
}

// handleInboundMessage starts the initial-contact workflow when a known
// customer opens a conversation on their own. Only the tracking id is stored;
// the contact state moves when the customer answers.
func (h *Handler) handleInboundMessage(w http.ResponseWriter, r *http.Request) {
	body := h.readVerified(w, r, kindConversation)
	if body == nil {
		return
	}
	if h.replay(w, r, kindConversation) {
		return
	}

	var payload InboundMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.IncWebhook(kindConversation, "invalid")
		h.respond(w, r, kindConversation, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return
	}

	if !payload.IsNewConversation {
		metrics.IncWebhook(kindConversation, "ignored")
		h.respond(w, r, kindConversation, http.StatusOK, ConversationResponse{Success: true, Message: "Not a new conversation"})
		return
	}

	if payload.Conversation.PhoneNumber == "" {
		payload.Conversation.PhoneNumber = payload.Message.From
	}
	if err := h.validate.Struct(payload.Conversation); err != nil {
		metrics.IncWebhook(kindConversation, "invalid")
		h.respond(w, r, kindConversation, http.StatusBadRequest, ErrorResponse{Error: "phone_number is required"})
		return
	}

	ctx := r.Context()
	logger := h.logger.With("kind", kindConversation, "phone", payload.Conversation.PhoneNumber)

	found, err := h.persons.FindByPhones(ctx, phone.Candidates(payload.Conversation.PhoneNumber))
	if err != nil {
		logger.Error("failed to resolve person", "error", err)
		metrics.IncWebhook(kindConversation, "error")
		h.sendError(w, http.StatusInternalServerError, "Failed to resolve persona")
		return
	}
	if found == nil {
		logger.Warn("no person found for inbound conversation")
		metrics.IncWebhook(kindConversation, "not_found")
		h.respond(w, r, kindConversation, http.StatusNotFound, ErrorResponse{Error: "Persona not found"})
		return
	}

	person, err := h.persons.GetWithPoint(ctx, found.ID)
	if err != nil || person == nil {
		logger.Error("failed to load person", "persona_id", found.ID, "error", err)
		metrics.IncWebhook(kindConversation, "error")
		h.sendError(w, http.StatusInternalServerError, "Failed to load persona")
		return
	}
	logger = logger.With("persona_id", person.ID, "campaign_id", person.CampaignID)

	resp := ConversationResponse{Success: true, PersonaID: person.ID, Message: "Workflow iniciado"}

	c, err := h.campaigns.GetByID(ctx, person.CampaignID)
	if err != nil || c == nil {
		logger.Error("failed to load campaign", "error", err)
		metrics.IncWebhook(kindConversation, "error")
		resp.Message = "Workflow no iniciado"
		h.respond(w, r, kindConversation, http.StatusOK, resp)
		return
	}

	if h.cfg.DryRun {
		logger.Info("dry run: initial workflow not executed", "workflow_id", c.WorkflowID)
		metrics.IncWebhook(kindConversation, "simulated")
		resp.Message = "Simulado"
		h.respond(w, r, kindConversation, http.StatusOK, resp)
		return
	}

	exec, err := h.executor.ExecuteWorkflow(ctx, c.WorkflowID, kapso.ExecutionRequest{
		PhoneNumber:   phone.Normalize(person.Phone),
		PhoneNumberID: c.PhoneNumberID,
		Variables:     kapso.InitialVariables(person),
		Context: kapso.ExecutionContext{
			Source:     kapso.SourceInitial,
			CampaignID: c.ID,
			PersonID:   person.ID,
		},
	})
	if err != nil {
		logger.Error("initial workflow failed", "error", err)
		metrics.IncWebhook(kindConversation, "error")
		resp.Message = "Workflow no iniciado"
		h.respond(w, r, kindConversation, http.StatusOK, resp)
		return
	}

	if tracking := exec.Tracking(); tracking != "" {
		if err := h.persons.ApplyPatch(ctx, person.ID, contact.Patch{TrackingID: &tracking}); err != nil {
			logger.Warn("failed to store tracking id", "error", err)
		}
	}

	logger.Info("initial workflow started from inbound conversation", "tracking_id", exec.Tracking())
	metrics.IncWebhook(kindConversation, "ok")
	h.respond(w, r, kindConversation, http.StatusOK, resp)
}
