package webhook

import (
	"encoding/json"
	"net/http"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/metrics"
)

const kindChat = "chat"

// ChatReplyResponse acknowledges a processed chat reply
type ChatReplyResponse struct {
	Success   bool          `json:"success"`
	PersonaID string        `json:"persona_id"`
	NewState  contact.State `json:"nuevo_estado"`
	Message   string        `json:"message"`
}

// handleChatReply applies a customer's chat answer. The person is resolved by
// the id echoed in the workflow context, never by phone.
func (h *Handler) handleChatReply(w http.ResponseWriter, r *http.Request) {
	body := h.readVerified(w, r, kindChat)
	if body == nil {
		return
	}
	if h.replay(w, r, kindChat) {
		return
	}

	var payload ChatReply
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.IncWebhook(kindChat, "invalid")
		h.respond(w, r, kindChat, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		metrics.IncWebhook(kindChat, "invalid")
		h.respond(w, r, kindChat, http.StatusBadRequest, ErrorResponse{Error: "persona_id is required"})
		return
	}

	ctx := r.Context()
	personID := payload.Context.ID()
	logger := h.logger.With("kind", kindChat, "persona_id", personID)

	person, err := h.persons.GetWithPoint(ctx, personID)
	if err != nil {
		logger.Error("failed to load person", "error", err)
		metrics.IncWebhook(kindChat, "error")
		h.sendError(w, http.StatusInternalServerError, "Failed to load person")
		return
	}
	if person == nil {
		logger.Warn("person not found")
		metrics.IncWebhook(kindChat, "not_found")
		h.respond(w, r, kindChat, http.StatusNotFound, ErrorResponse{Error: "Persona not found"})
		return
	}

	reply := contact.Reply{
		Confirmed:      payload.Variables.Confirmed.Ptr(),
		CommitmentDate: string(payload.Variables.CommitmentDate),
		NegativeReason: string(payload.Variables.NegativeReason),
		HomePickup:     payload.Variables.HomePickup.Ptr(),
		Text:           payload.UserText(),
	}

	state, err := h.apply(ctx, &person.Person, contact.Event{Kind: contact.EventReply, At: h.now(), Reply: reply})
	if err != nil {
		logger.Error("failed to apply reply", "error", err)
		metrics.IncWebhook(kindChat, "error")
		h.sendError(w, http.StatusInternalServerError, "Failed to update persona")
		return
	}

	campaignID := payload.Context.CampaignID
	if campaignID == "" {
		campaignID = person.CampaignID
	}
	h.refreshCounters(ctx, campaignID)

	logger.Info("chat reply applied", "previous_state", person.State, "new_state", state)
	metrics.IncWebhook(kindChat, "ok")
	h.respond(w, r, kindChat, http.StatusOK, ChatReplyResponse{
		Success:   true,
		PersonaID: person.ID,
		NewState:  state,
		Message:   "Respuesta procesada",
	})
}
