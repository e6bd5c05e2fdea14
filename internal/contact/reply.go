package contact

import (
	"strings"
	"time"
	"unicode"
)

// Reply is an inbound human answer, from chat or from call analysis
type Reply struct {
	Confirmed      *bool  // structured confirmation flag
	CommitmentDate string // raw date as supplied upstream
	NegativeReason string
	HomePickup     *bool
	Text           string // literal user text, used only without structured signals
}

// Decision is the interpreted outcome of a reply
type Decision struct {
	State          State
	CommitmentDate string // normalized YYYY-MM-DD, empty when absent
	FromKeywords   bool
}

// Interpret classifies a reply. Structured fields win over the free text, and
// a valid commitment date forces confirmation on its own.
func Interpret(r Reply) Decision {
	if date, ok := NormalizeDate(r.CommitmentDate); ok {
		return Decision{State: StateConfirmed, CommitmentDate: date}
	}

	if r.Confirmed != nil {
		if *r.Confirmed {
			return Decision{State: StateConfirmed}
		}
		return Decision{State: StateRejected}
	}

	if strings.TrimSpace(r.NegativeReason) != "" {
		return Decision{State: StateRejected}
	}

	if state, ok := classifyText(r.Text); ok {
		return Decision{State: state, FromKeywords: true}
	}

	return Decision{State: StateResponded}
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006"}

// NormalizeDate accepts YYYY-MM-DD, DD/MM/YYYY and DD-MM-YYYY and returns the
// date as YYYY-MM-DD. Anything else, including impossible calendar dates, is
// reported as absent.
func NormalizeDate(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

var (
	rejectPhrases  = [][]string{{"no", "puedo"}, {"no", "voy"}}
	confirmWords   = []string{"si", "sí", "confirmo", "acepto", "ok", "dale", "genial", "perfecto", "voy"}
	rejectWords    = []string{"no", "imposible"}
	rejectPrefixes = []string{"rechaz", "cancel"}
)

// classifyText is the keyword fallback. Words are matched whole so that
// "imposible" does not read as "si"; negative phrases are checked before the
// confirmation words they contain.
func classifyText(text string) (State, bool) {
	words := tokenize(text)
	if len(words) == 0 {
		return "", false
	}

	for _, phrase := range rejectPhrases {
		if containsPhrase(words, phrase) {
			return StateRejected, true
		}
	}

	for _, w := range words {
		for _, kw := range confirmWords {
			if w == kw {
				return StateConfirmed, true
			}
		}
	}

	for _, w := range words {
		for _, kw := range rejectWords {
			if w == kw {
				return StateRejected, true
			}
		}
		for _, prefix := range rejectPrefixes {
			if strings.HasPrefix(w, prefix) {
				return StateRejected, true
			}
		}
	}

	return "", false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j := range phrase {
			if words[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
