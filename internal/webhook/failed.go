package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/metrics"
	"github.com/foxzi/recupero/internal/phone"
)

const kindFailed = "delivery_failed"

// FailedResult is the outcome for one failure event
type FailedResult struct {
	OK        bool   `json:"ok"`
	PersonaID string `json:"persona_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// FailedBatchResponse answers a batched delivery
type FailedBatchResponse struct {
	OK      bool           `json:"ok"`
	Results []FailedResult `json:"results"`
}

// IgnoredResponse answers events that are not acted upon
type IgnoredResponse struct {
	OK      bool   `json:"ok"`
	Ignored bool   `json:"ignored"`
	Event   string `json:"event"`
}

// handleMessageFailed marks persons whose WhatsApp message could not be
// delivered. A batch is processed item by item; one unresolvable number does
// not affect the others.
func (h *Handler) handleMessageFailed(w http.ResponseWriter, r *http.Request) {
	body := h.readVerified(w, r, kindFailed)
	if body == nil {
		return
	}
	if h.replay(w, r, kindFailed) {
		return
	}

	event := r.Header.Get(headerEvent)
	if event != EventMessageFailed {
		metrics.IncWebhook(kindFailed, "ignored")
		h.respond(w, r, kindFailed, http.StatusOK, IgnoredResponse{OK: true, Ignored: true, Event: event})
		return
	}

	batch := strings.EqualFold(r.Header.Get(headerBatch), "true") || bytes.HasPrefix(bytes.TrimSpace(body), []byte("["))

	var items []FailedMessage
	if batch {
		if err := json.Unmarshal(body, &items); err != nil {
			metrics.IncWebhook(kindFailed, "invalid")
			h.respond(w, r, kindFailed, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
			return
		}
	} else {
		var item FailedMessage
		if err := json.Unmarshal(body, &item); err != nil {
			metrics.IncWebhook(kindFailed, "invalid")
			h.respond(w, r, kindFailed, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
			return
		}
		items = []FailedMessage{item}
	}

	ctx := r.Context()
	results := make([]FailedResult, 0, len(items))
	touched := make(map[string]struct{})
	for _, item := range items {
		res, campaignID := h.markFailed(ctx, item)
		results = append(results, res)
		if campaignID != "" {
			touched[campaignID] = struct{}{}
		}
	}

	for id := range touched {
		h.refreshCounters(ctx, id)
	}

	if batch {
		h.respond(w, r, kindFailed, http.StatusOK, FailedBatchResponse{OK: true, Results: results})
		return
	}
	h.respond(w, r, kindFailed, http.StatusOK, results[0])
}

// markFailed resolves the newest person with a matching phone and moves it to
// error_envio. It returns the person's campaign when state changed.
func (h *Handler) markFailed(ctx context.Context, item FailedMessage) (FailedResult, string) {
	if err := h.validate.Struct(item.Conversation); err != nil {
		metrics.IncWebhook(kindFailed, "invalid")
		return FailedResult{Reason: "missing phone number"}, ""
	}

	number := item.Conversation.PhoneNumber
	logger := h.logger.With("kind", kindFailed, "phone", number, "message_id", item.Message.ID)

	person, err := h.persons.FindByPhones(ctx, phone.Candidates(number))
	if err != nil {
		logger.Error("failed to resolve person", "error", err)
		metrics.IncWebhook(kindFailed, "error")
		return FailedResult{Reason: "lookup failed"}, ""
	}
	if person == nil {
		logger.Warn("no person found for failed message")
		metrics.IncWebhook(kindFailed, "not_found")
		return FailedResult{Reason: "no persona found"}, ""
	}

	errText := string(item.Message.Kapso.Error)
	if errText == "" {
		errText = item.Message.Kapso.Status
	}

	if _, err := h.apply(ctx, person, contact.Event{Kind: contact.EventDeliveryFailed, At: h.now(), Error: errText}); err != nil {
		logger.Error("failed to mark delivery failure", "persona_id", person.ID, "error", err)
		metrics.IncWebhook(kindFailed, "error")
		return FailedResult{PersonaID: person.ID, Reason: "update failed"}, ""
	}

	logger.Info("delivery failure recorded", "persona_id", person.ID, "previous_state", person.State)
	metrics.IncWebhook(kindFailed, "ok")
	return FailedResult{OK: true, PersonaID: person.ID}, person.CampaignID
}
