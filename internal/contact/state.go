// Package contact defines person-level contact states and the single
// transition function shared by the dispatcher and the inbound handlers.
package contact

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// State is where a person is in the outreach pipeline
type State string

const (
	StatePending     State = "pendiente"
	StateQueued      State = "encolado"
	StateSent        State = "enviado_whatsapp"
	StateResponded   State = "respondio"
	StateConfirmed   State = "confirmado"
	StateRejected    State = "rechazado"
	StateNoResponse  State = "no_responde"
	StateDispatchErr State = "error_envio"
)

// AllStates lists every state in pipeline order
var AllStates = []State{
	StatePending, StateQueued, StateSent, StateResponded,
	StateConfirmed, StateRejected, StateNoResponse, StateDispatchErr,
}

// Valid reports whether s is a known state
func (s State) Valid() bool {
	return slices.Contains(AllStates, s)
}

// Contacted reports whether s counts toward a campaign's contacted total
func (s State) Contacted() bool {
	switch s {
	case StateSent, StateResponded, StateConfirmed, StateRejected, StateNoResponse:
		return true
	}
	return false
}

// ErrInvalidTransition is returned when an event does not apply to the current state
var ErrInvalidTransition = errors.New("invalid contact state transition")

// EventKind identifies what happened to a person
type EventKind int

const (
	EventQueued         EventKind = iota // manual trigger outside the window
	EventDispatched                      // initial workflow accepted upstream
	EventDispatchFailed                  // initial workflow rejected or timed out
	EventReply                           // chat reply or analysed call
	EventDeliveryFailed                  // provider reported the message failed
	EventReminderSent                    // reminder workflow accepted upstream
)

func (k EventKind) String() string {
	switch k {
	case EventQueued:
		return "queued"
	case EventDispatched:
		return "dispatched"
	case EventDispatchFailed:
		return "dispatch_failed"
	case EventReply:
		return "reply"
	case EventDeliveryFailed:
		return "delivery_failed"
	case EventReminderSent:
		return "reminder_sent"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one input to the state machine
type Event struct {
	Kind        EventKind
	At          time.Time
	TrackingID  string // EventDispatched
	Error       string // EventDispatchFailed, EventDeliveryFailed
	Unreachable bool   // EventDispatchFailed: upstream says the number cannot be reached
	Reply       Reply  // EventReply
}

// sources lists the states each event may be applied from; nil means any state
var sources = map[EventKind][]State{
	EventQueued:         {StatePending, StateDispatchErr},
	EventDispatched:     {StatePending, StateQueued, StateDispatchErr},
	EventDispatchFailed: {StatePending, StateQueued, StateDispatchErr},
	EventReply:          nil,
	EventDeliveryFailed: nil,
	EventReminderSent:   {StateConfirmed},
}

// Person is the slice of person state the transition function reads
type Person struct {
	State           State
	CommitmentDate  string // YYYY-MM-DD or empty
	ReminderWasSent bool
}

// Patch is the set of field changes produced by a transition. Nil fields are
// left untouched.
type Patch struct {
	State                *State
	HasWhatsApp          *bool
	SendError            *string
	IncrementAttempts    bool
	SentAt               *time.Time
	TrackingID           *string
	RespondedAt          *time.Time
	ReplyText            *string
	CommitmentDate       *string // empty string clears the date
	CommitmentCapturedAt *time.Time
	NegativeReason       *string
	HomePickup           *bool
	ReminderSent         *bool
	ReminderSentAt       *time.Time
}

// NewState returns the target state, or current when the patch keeps it
func (p Patch) NewState(current State) State {
	if p.State == nil {
		return current
	}
	return *p.State
}

// Transition applies ev to a person and returns the resulting field changes
func Transition(p Person, ev Event) (Patch, error) {
	if allowed := sources[ev.Kind]; allowed != nil && !slices.Contains(allowed, p.State) {
		return Patch{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev.Kind, p.State)
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	switch ev.Kind {
	case EventQueued:
		return Patch{State: ptr(StateQueued)}, nil

	case EventDispatched:
		patch := Patch{
			State:             ptr(StateSent),
			SentAt:            &at,
			IncrementAttempts: true,
			SendError:         ptr(""),
		}
		if ev.TrackingID != "" {
			patch.TrackingID = ptr(ev.TrackingID)
		}
		return patch, nil

	case EventDispatchFailed:
		patch := Patch{
			State:             ptr(StateDispatchErr),
			IncrementAttempts: true,
		}
		if ev.Unreachable {
			patch.HasWhatsApp = ptr(false)
			patch.SendError = ptr(ev.Error)
		}
		return patch, nil

	case EventDeliveryFailed:
		patch := Patch{
			State:       ptr(StateDispatchErr),
			HasWhatsApp: ptr(false),
		}
		if ev.Error != "" {
			patch.SendError = ptr(ev.Error)
		}
		// The commitment date only lives alongside the confirmed state
		if p.CommitmentDate != "" {
			patch.CommitmentDate = ptr("")
		}
		return patch, nil

	case EventReminderSent:
		return Patch{ReminderSent: ptr(true), ReminderSentAt: &at}, nil

	case EventReply:
		return replyPatch(p, ev.Reply, at), nil
	}

	return Patch{}, fmt.Errorf("%w: unknown event %s", ErrInvalidTransition, ev.Kind)
}

// replyPatch holds the confirmation, rejection and date rules. The newest
// reply wins, except that an undetermined reply never downgrades a person who
// already confirmed or rejected.
func replyPatch(p Person, r Reply, at time.Time) Patch {
	decision := Interpret(r)

	patch := Patch{RespondedAt: &at}
	if r.Text != "" {
		patch.ReplyText = ptr(r.Text)
	}
	if r.NegativeReason != "" {
		patch.NegativeReason = ptr(r.NegativeReason)
	}
	if r.HomePickup != nil {
		patch.HomePickup = ptr(*r.HomePickup)
	}

	next := decision.State
	if next == StateResponded && (p.State == StateConfirmed || p.State == StateRejected) {
		next = p.State
	}
	patch.State = ptr(next)

	switch {
	case next == StateConfirmed && decision.CommitmentDate != "":
		patch.CommitmentDate = ptr(decision.CommitmentDate)
		patch.CommitmentCapturedAt = &at
		if decision.CommitmentDate != p.CommitmentDate && p.ReminderWasSent {
			patch.ReminderSent = ptr(false)
		}
	case next != StateConfirmed && p.CommitmentDate != "":
		patch.CommitmentDate = ptr("")
	}

	return patch
}

func ptr[T any](v T) *T {
	return &v
}
