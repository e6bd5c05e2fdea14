package kapso

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Meta error codes meaning the recipient cannot be reached on WhatsApp
var unreachableCodes = []int{
	1357045, // invalid phone number parameter
	131026,  // message undeliverable
	131047,  // re-engagement window closed
}

// APIError is a non-2xx response from Kapso
type APIError struct {
	StatusCode int
	Message    string
	Codes      []int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("kapso: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("kapso: HTTP %d: %s", e.StatusCode, e.Message)
}

// Unreachable reports whether the error says the number itself is bad, as
// opposed to a transient or credential problem
func (e *APIError) Unreachable() bool {
	if e.StatusCode < 400 || e.StatusCode >= 500 {
		return false
	}
	for _, code := range e.Codes {
		if slices.Contains(unreachableCodes, code) {
			return true
		}
	}
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// IsUnreachable reports whether err is an APIError classified as unreachable
func IsUnreachable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Unreachable()
	}
	return false
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		e.Message = truncate(strings.TrimSpace(string(body)), 500)
		return e
	}

	e.Message = truncate(findMessage(decoded), 500)
	collectCodes(decoded, &e.Codes)
	return e
}

// findMessage extracts a human-readable message from the common error shapes:
// {"error":"..."}, {"error":{"message":"..."}} and {"message":"..."}
func findMessage(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	switch errVal := m["error"].(type) {
	case string:
		return errVal
	case map[string]any:
		if msg, ok := errVal["message"].(string); ok {
			return msg
		}
	}
	if msg, ok := m["message"].(string); ok {
		return msg
	}
	return ""
}

// collectCodes walks the decoded body for numeric "code" and "error_code" keys
func collectCodes(v any, out *[]int) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if k == "code" || k == "error_code" {
				if n, ok := child.(float64); ok {
					*out = append(*out, int(n))
					continue
				}
			}
			collectCodes(child, out)
		}
	case []any:
		for _, child := range val {
			collectCodes(child, out)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
