package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingCorrelation is returned when a payload lacks the id that ties it
// to a person
var ErrMissingCorrelation = errors.New("missing correlation id")

// FlexBool is an optional boolean that decodes true/false, "true"/"false",
// "si"/"no" and 1/0. Upstream workflow variables are not consistently typed.
// null and "" leave it unset.
type FlexBool struct {
	Valid bool
	Value bool
}

// UnmarshalJSON implements json.Unmarshaler
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch s {
	case "null", "":
		*b = FlexBool{}
	case "true", "1", "si", "sí", "yes":
		*b = FlexBool{Valid: true, Value: true}
	case "false", "0", "no":
		*b = FlexBool{Valid: true, Value: false}
	default:
		return fmt.Errorf("invalid boolean value %s", data)
	}
	return nil
}

// Ptr returns the value, or nil when unset
func (b FlexBool) Ptr() *bool {
	if !b.Valid {
		return nil
	}
	v := b.Value
	return &v
}

// FlexString decodes a JSON string, and renders any other value as its raw
// JSON text. null is empty.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = FlexString(str)
		return nil
	}
	*s = FlexString(data)
	return nil
}

// ChatReply is posted by the conversational workflow when a customer answers
type ChatReply struct {
	ExecutionID     string        `json:"execution_id"`
	PhoneNumber     string        `json:"phone_number"`
	Status          string        `json:"status"`
	Variables       ChatVariables `json:"variables"`
	Context         ChatContext   `json:"context"`
	Messages        []ChatMessage `json:"messages"`
	LastUserMessage string        `json:"last_user_message"`
}

// ChatContext echoes the context sent with the workflow execution
type ChatContext struct {
	Source     string `json:"source"`
	CampaignID string `json:"campana_id"`
	PersonaID  string `json:"persona_id" validate:"required_without=PersonID"`
	PersonID   string `json:"person_id"`
}

// ID returns the person id, accepting either key
func (c ChatContext) ID() string {
	if c.PersonaID != "" {
		return c.PersonaID
	}
	return c.PersonID
}

// ChatVariables are the structured answers extracted by the workflow
type ChatVariables struct {
	Confirmed      FlexBool   `json:"confirmado"`
	CommitmentDate FlexString `json:"fecha_compromiso"`
	NegativeReason FlexString `json:"motivo_negativo"`
	HomePickup     FlexBool   `json:"solicita_retiro_domicilio"`
}

// ChatMessage is one turn of the conversation
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// UserText returns the customer's latest literal reply
func (p *ChatReply) UserText() string {
	if p.LastUserMessage != "" {
		return p.LastUserMessage
	}
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == "user" {
			return p.Messages[i].Content
		}
	}
	return ""
}

// CallEvent is a voice-call lifecycle callback
type CallEvent struct {
	Event string `json:"event"`
	Call  Call   `json:"call"`
}

// EventCallAnalyzed is the only call event that carries an outcome
const EventCallAnalyzed = "call_analyzed"

// Call is the call object of a CallEvent
type Call struct {
	CallID           string           `json:"call_id" validate:"required"`
	CallStatus       string           `json:"call_status"`
	DynamicVariables DynamicVariables `json:"retell_llm_dynamic_variables"`
	StartTimestamp   int64            `json:"start_timestamp"`
	EndTimestamp     int64            `json:"end_timestamp"`
	DurationMS       int64            `json:"duration_ms"`
	Transcript       string           `json:"transcript"`
	RecordingURL     string           `json:"recording_url"`
	Analysis         *CallAnalysis    `json:"call_analysis" validate:"required"`
}

// DynamicVariables are the variables the call was started with
type DynamicVariables struct {
	PersonaID string `json:"persona_id" validate:"required"`
}

// CallAnalysis is the post-call analysis
type CallAnalysis struct {
	CallSummary    string             `json:"call_summary"`
	UserSentiment  string             `json:"user_sentiment"`
	CallSuccessful FlexBool           `json:"call_successful"`
	CustomData     CustomAnalysisData `json:"custom_analysis_data"`
}

// CustomAnalysisData is the structured outcome extracted from the call
type CustomAnalysisData struct {
	Outcome        string     `json:"resultado"`
	Confirmed      FlexBool   `json:"confirmado"`
	HomePickup     FlexBool   `json:"solicita_retiro_domicilio"`
	CommitmentDate FlexString `json:"fecha_compromiso"`
	NegativeReason FlexString `json:"motivo_negativo"`
}

// FailedMessage is one provider-level delivery failure
type FailedMessage struct {
	Message       FailedMessageBody `json:"message"`
	Conversation  Conversation      `json:"conversation"`
	PhoneNumberID string            `json:"phone_number_id"`
}

// FailedMessageBody is the failed outbound message
type FailedMessageBody struct {
	ID    string `json:"id"`
	Kapso struct {
		Status string     `json:"status"`
		Error  FlexString `json:"error"`
	} `json:"kapso"`
}

// Conversation identifies the customer side of a chat
type Conversation struct {
	ID            string `json:"id"`
	PhoneNumber   string `json:"phone_number" validate:"required"`
	PhoneNumberID string `json:"phone_number_id"`
}

// EventMessageFailed is the only delivery event acted upon
const EventMessageFailed = "whatsapp.message.failed"

// InboundMessage is posted for every customer message
type InboundMessage struct {
	Message struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		From string `json:"from"`
	} `json:"message"`
	Conversation      Conversation `json:"conversation"`
	IsNewConversation bool         `json:"is_new_conversation"`
}
