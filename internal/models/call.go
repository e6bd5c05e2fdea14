package models

import "time"

// CallOutcome is the voice agent's classification of a call
type CallOutcome string

const (
	CallAnswered    CallOutcome = "contestada"
	CallNotAnswered CallOutcome = "no_contestada"
	CallBusy        CallOutcome = "ocupado"
	CallFailed      CallOutcome = "fallida"
)

// Call is a recorded voice-agent call
type Call struct {
	ID              string      `db:"id" json:"id"`
	PersonID        string      `db:"persona_id" json:"persona_id"`
	ExternalID      string      `db:"external_id" json:"external_id"`
	CalledAt        time.Time   `db:"fecha_llamada" json:"fecha_llamada"`
	DurationSeconds int         `db:"duracion_segundos" json:"duracion_segundos"`
	Transcript      string      `db:"transcript" json:"transcript"`
	RecordingURL    string      `db:"recording_url" json:"recording_url"`
	Outcome         CallOutcome `db:"resultado" json:"resultado"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}
