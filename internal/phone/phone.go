// Package phone normalizes Argentine WhatsApp numbers and builds the lookup
// candidates used to match provider numbers against stored ones.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country code
const DefaultRegion = "AR"

const (
	countryPrefix = "54"
	mobilePrefix  = "549"
)

// Normalize converts a stored or ingested number to the +549 mobile form.
// A 12-digit 54 number is missing the mobile 9 and gets it inserted; other
// inputs are reduced to "+" and their digits.
func Normalize(raw string) string {
	digits := onlyDigits(raw)

	switch {
	case strings.HasPrefix(digits, mobilePrefix) && len(digits) == 13:
		return "+" + digits
	case strings.HasPrefix(digits, countryPrefix) && len(digits) == 12:
		return "+" + mobilePrefix + digits[len(countryPrefix):]
	case digits == "":
		return raw
	}
	return "+" + digits
}

// Candidates returns every stored form a provider number may take: the number
// itself with a leading +, and the variant with the Argentine mobile 9 toggled.
// 00-prefixed international numbers are rewritten to +.
func Candidates(raw string) []string {
	s := strings.TrimSpace(raw)
	s = strings.Map(func(r rune) rune {
		if r == '+' || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, s)
	if s == "" {
		return nil
	}

	if !strings.HasPrefix(s, "+") {
		if strings.HasPrefix(s, "00") {
			s = "+" + s[2:]
		} else {
			s = "+" + s
		}
	}

	out := []string{s}
	add := func(v string) {
		for _, existing := range out {
			if existing == v {
				return
			}
		}
		out = append(out, v)
	}

	switch {
	case strings.HasPrefix(s, "+"+mobilePrefix):
		add("+" + countryPrefix + s[len("+"+mobilePrefix):])
	case strings.HasPrefix(s, "+"+countryPrefix):
		add("+" + mobilePrefix + s[len("+"+countryPrefix):])
	}

	if e164, err := E164(s); err == nil {
		add(e164)
	}

	return out
}

// E164 parses a number and formats it as E.164. Numbers without a country
// code are read as DefaultRegion.
func E164(raw string) (string, error) {
	parsed, err := phonenumbers.Parse(raw, DefaultRegion)
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number: %w", err)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
