package webhook

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"persona_id":"p-1"}`)
	sig := Sign(body, "secret")

	assert.NoError(t, VerifySignature(body, sig, "secret"))
	assert.NoError(t, VerifySignature(body, " "+strings.ToUpper(sig)+" ", "secret"))
	assert.ErrorIs(t, VerifySignature(body, sig, "other"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, "", "secret"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(append(body, ' '), sig, "secret"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, sig, ""), ErrMissingSecret)
}

func TestVerifyRetellSignature(t *testing.T) {
	body := []byte(`{"event":"call_analyzed"}`)
	now := time.Date(2025, 6, 3, 16, 0, 0, 0, time.UTC)

	t.Run("plain digest", func(t *testing.T) {
		assert.NoError(t, VerifyRetellSignature(body, Sign(body, "rs"), "rs", now))
	})

	t.Run("timestamped", func(t *testing.T) {
		ts := strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10)
		sig := "v=" + ts + ",d=" + Sign(append(append([]byte{}, body...), ts...), "rs")
		assert.NoError(t, VerifyRetellSignature(body, sig, "rs", now))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		ts := strconv.FormatInt(now.Add(-10*time.Minute).UnixMilli(), 10)
		sig := "v=" + ts + ",d=" + Sign(append(append([]byte{}, body...), ts...), "rs")
		assert.ErrorIs(t, VerifyRetellSignature(body, sig, "rs", now), ErrInvalidSignature)
	})

	t.Run("malformed", func(t *testing.T) {
		assert.ErrorIs(t, VerifyRetellSignature(body, "v=abc,d=00", "rs", now), ErrInvalidSignature)
		assert.ErrorIs(t, VerifyRetellSignature(body, "v=123", "rs", now), ErrInvalidSignature)
	})

	t.Run("missing secret", func(t *testing.T) {
		assert.ErrorIs(t, VerifyRetellSignature(body, Sign(body, "rs"), "", now), ErrMissingSecret)
	})
}

func TestFlexBool(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		value bool
	}{
		{`true`, true, true},
		{`"true"`, true, true},
		{`"Si"`, true, true},
		{`"sí"`, true, true},
		{`1`, true, true},
		{`false`, true, false},
		{`"no"`, true, false},
		{`0`, true, false},
		{`null`, false, false},
		{`""`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var v struct {
				B FlexBool `json:"b"`
			}
			require.NoError(t, json.Unmarshal([]byte(`{"b":`+tt.in+`}`), &v))
			assert.Equal(t, tt.valid, v.B.Valid)
			assert.Equal(t, tt.value, v.B.Value)
		})
	}

	var v struct {
		B FlexBool `json:"b"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"b":"maybe"}`), &v))
	assert.Nil(t, FlexBool{}.Ptr())
}

func TestFlexString(t *testing.T) {
	var v struct {
		S FlexString `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"2025-06-10"}`), &v))
	assert.Equal(t, FlexString("2025-06-10"), v.S)

	require.NoError(t, json.Unmarshal([]byte(`{"s":{"code":131026}}`), &v))
	assert.Equal(t, FlexString(`{"code":131026}`), v.S)

	require.NoError(t, json.Unmarshal([]byte(`{"s":null}`), &v))
	assert.Equal(t, FlexString(""), v.S)
}

func TestChatReplyUserText(t *testing.T) {
	p := ChatReply{Messages: []ChatMessage{
		{Role: "user", Content: "hola"},
		{Role: "user", Content: "el jueves"},
		{Role: "assistant", Content: "perfecto"},
	}}
	assert.Equal(t, "el jueves", p.UserText())

	p.LastUserMessage = "si"
	assert.Equal(t, "si", p.UserText())
}
