package contact

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestInterpret(t *testing.T) {
	tests := []struct {
		name     string
		reply    Reply
		want     State
		wantDate string
	}{
		{"date beats false flag", Reply{Confirmed: boolPtr(false), CommitmentDate: "2025-06-10"}, StateConfirmed, "2025-06-10"},
		{"date alone", Reply{CommitmentDate: "10/06/2025"}, StateConfirmed, "2025-06-10"},
		{"dashed date", Reply{CommitmentDate: "10-06-2025"}, StateConfirmed, "2025-06-10"},
		{"invalid date ignored", Reply{CommitmentDate: "next tuesday", Confirmed: boolPtr(false)}, StateRejected, ""},
		{"flag true", Reply{Confirmed: boolPtr(true)}, StateConfirmed, ""},
		{"flag false", Reply{Confirmed: boolPtr(false)}, StateRejected, ""},
		{"flag beats text", Reply{Confirmed: boolPtr(false), Text: "si dale"}, StateRejected, ""},
		{"reason means rejection", Reply{NegativeReason: "ya lo devolví"}, StateRejected, ""},
		{"keyword confirm", Reply{Text: "Si, confirmo que voy"}, StateConfirmed, ""},
		{"keyword accented", Reply{Text: "Sí!"}, StateConfirmed, ""},
		{"keyword reject", Reply{Text: "No, gracias"}, StateRejected, ""},
		{"negative phrase before voy", Reply{Text: "no voy a poder"}, StateRejected, ""},
		{"no puedo", Reply{Text: "No puedo esta semana"}, StateRejected, ""},
		{"imposible is not si", Reply{Text: "imposible"}, StateRejected, ""},
		{"stem cancel", Reply{Text: "quiero cancelar"}, StateRejected, ""},
		{"stem rechaz", Reply{Text: "lo rechazo"}, StateRejected, ""},
		{"undetermined", Reply{Text: "quién habla?"}, StateResponded, ""},
		{"empty", Reply{}, StateResponded, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interpret(tt.reply)
			assert.Equal(t, tt.want, got.State)
			assert.Equal(t, tt.wantDate, got.CommitmentDate)
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"2025-06-10", "2025-06-10", true},
		{" 2025-06-10 ", "2025-06-10", true},
		{"10/06/2025", "2025-06-10", true},
		{"10-06-2025", "2025-06-10", true},
		{"2025/06/10", "", false},
		{"31/02/2025", "", false},
		{"06/10/25", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeDate(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransitionDispatch(t *testing.T) {
	at := time.Date(2025, 6, 3, 13, 0, 0, 0, time.UTC)

	patch, err := Transition(Person{State: StatePending}, Event{Kind: EventDispatched, At: at, TrackingID: "trk-1"})
	require.NoError(t, err)
	assert.Equal(t, StateSent, patch.NewState(StatePending))
	assert.True(t, patch.IncrementAttempts)
	assert.Equal(t, at, *patch.SentAt)
	assert.Equal(t, "trk-1", *patch.TrackingID)

	patch, err = Transition(Person{State: StateQueued}, Event{Kind: EventDispatchFailed, Error: "timeout"})
	require.NoError(t, err)
	assert.Equal(t, StateDispatchErr, *patch.State)
	assert.True(t, patch.IncrementAttempts)
	assert.Nil(t, patch.HasWhatsApp)

	patch, err = Transition(Person{State: StateQueued}, Event{Kind: EventDispatchFailed, Error: "invalid number", Unreachable: true})
	require.NoError(t, err)
	require.NotNil(t, patch.HasWhatsApp)
	assert.False(t, *patch.HasWhatsApp)
	assert.Equal(t, "invalid number", *patch.SendError)
}

func TestTransitionRejectsWrongSource(t *testing.T) {
	tests := []struct {
		name  string
		state State
		kind  EventKind
	}{
		{"dispatch confirmed", StateConfirmed, EventDispatched},
		{"fail sent", StateSent, EventDispatchFailed},
		{"queue sent", StateSent, EventQueued},
		{"reminder pending", StatePending, EventReminderSent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transition(Person{State: tt.state}, Event{Kind: tt.kind})
			assert.True(t, errors.Is(err, ErrInvalidTransition))
		})
	}
}

func TestTransitionDeliveryFailedFromAnyState(t *testing.T) {
	for _, s := range AllStates {
		t.Run(string(s), func(t *testing.T) {
			patch, err := Transition(Person{State: s}, Event{Kind: EventDeliveryFailed, Error: "131026"})
			require.NoError(t, err)
			assert.Equal(t, StateDispatchErr, *patch.State)
			assert.False(t, *patch.HasWhatsApp)
			assert.Nil(t, patch.CommitmentDate)
		})
	}

	t.Run("confirmed clears commitment date", func(t *testing.T) {
		patch, err := Transition(Person{State: StateConfirmed, CommitmentDate: "2025-06-10", ReminderWasSent: true},
			Event{Kind: EventDeliveryFailed, Error: "131026"})
		require.NoError(t, err)
		assert.Equal(t, StateDispatchErr, *patch.State)
		require.NotNil(t, patch.CommitmentDate)
		assert.Equal(t, "", *patch.CommitmentDate)
	})
}

func TestTransitionReply(t *testing.T) {
	at := time.Date(2025, 6, 3, 13, 0, 0, 0, time.UTC)

	t.Run("confirmation with date", func(t *testing.T) {
		patch, err := Transition(Person{State: StateSent}, Event{Kind: EventReply, At: at, Reply: Reply{
			Confirmed:      boolPtr(false),
			CommitmentDate: "12/06/2025",
			Text:           "el jueves",
		}})
		require.NoError(t, err)
		assert.Equal(t, StateConfirmed, *patch.State)
		assert.Equal(t, "2025-06-12", *patch.CommitmentDate)
		assert.Equal(t, at, *patch.CommitmentCapturedAt)
		assert.Equal(t, at, *patch.RespondedAt)
		assert.Equal(t, "el jueves", *patch.ReplyText)
	})

	t.Run("undetermined keeps confirmation", func(t *testing.T) {
		patch, err := Transition(Person{State: StateConfirmed, CommitmentDate: "2025-06-12"}, Event{Kind: EventReply, Reply: Reply{Text: "gracias"}})
		require.NoError(t, err)
		assert.Equal(t, StateConfirmed, *patch.State)
		assert.Nil(t, patch.CommitmentDate)
	})

	t.Run("rejection clears date", func(t *testing.T) {
		patch, err := Transition(Person{State: StateConfirmed, CommitmentDate: "2025-06-12"}, Event{Kind: EventReply, Reply: Reply{
			Confirmed:      boolPtr(false),
			NegativeReason: "me mudé",
			HomePickup:     boolPtr(true),
		}})
		require.NoError(t, err)
		assert.Equal(t, StateRejected, *patch.State)
		assert.Equal(t, "", *patch.CommitmentDate)
		assert.Equal(t, "me mudé", *patch.NegativeReason)
		assert.True(t, *patch.HomePickup)
	})

	t.Run("new date resets reminder", func(t *testing.T) {
		patch, err := Transition(Person{State: StateConfirmed, CommitmentDate: "2025-06-12", ReminderWasSent: true}, Event{Kind: EventReply, Reply: Reply{
			CommitmentDate: "2025-06-20",
		}})
		require.NoError(t, err)
		assert.Equal(t, "2025-06-20", *patch.CommitmentDate)
		require.NotNil(t, patch.ReminderSent)
		assert.False(t, *patch.ReminderSent)
	})

	t.Run("generic reply from sent", func(t *testing.T) {
		patch, err := Transition(Person{State: StateSent}, Event{Kind: EventReply, Reply: Reply{Text: "hola"}})
		require.NoError(t, err)
		assert.Equal(t, StateResponded, *patch.State)
	})
}

func TestTransitionReminder(t *testing.T) {
	at := time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)
	patch, err := Transition(Person{State: StateConfirmed}, Event{Kind: EventReminderSent, At: at})
	require.NoError(t, err)
	assert.Nil(t, patch.State)
	assert.True(t, *patch.ReminderSent)
	assert.Equal(t, at, *patch.ReminderSentAt)
	assert.Equal(t, StateConfirmed, patch.NewState(StateConfirmed))
}

func TestStateHelpers(t *testing.T) {
	assert.True(t, StateSent.Contacted())
	assert.True(t, StateNoResponse.Contacted())
	assert.False(t, StatePending.Contacted())
	assert.False(t, StateDispatchErr.Contacted())
	assert.True(t, StateQueued.Valid())
	assert.False(t, State("borrado").Valid())
}
