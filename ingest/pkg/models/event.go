package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NDJSONContentType is the media type of stored partition objects.
const NDJSONContentType = "application/x-ndjson"

// Event is one LLM usage record as accepted by the ingest endpoint.
// Field order matches the wire schema and is preserved when the event is serialized.
type Event struct {
	TS        string          `json:"ts"`
	ProjectID string          `json:"project_id"`
	RequestID string          `json:"request_id"`
	UserID    *string         `json:"user_id,omitempty"`
	Route     string          `json:"route"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	TokensIn  float64         `json:"tokens_in"`
	TokensOut float64         `json:"tokens_out"`
	CostUSD   float64         `json:"cost_usd"`
	LatencyMS float64         `json:"latency_ms"`
	Status    string          `json:"status"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Issue describes one problem found while validating a request body.
type Issue struct {
	Code     string   `json:"code"`
	Path     []string `json:"path"`
	Message  string   `json:"message"`
	Expected string   `json:"expected,omitempty"`
	Received string   `json:"received,omitempty"`
	Keys     []string `json:"keys,omitempty"`
}

// Issue codes.
const (
	IssueInvalidJSON      = "invalid_json"
	IssueInvalidType      = "invalid_type"
	IssueUnrecognizedKeys = "unrecognized_keys"
	IssueInvalidDate      = "invalid_date"
	IssueInvalidString    = "invalid_string"
)

// ValidationError is returned when a request body does not describe a valid Event.
// It is a caller fault and maps to 400.
type ValidationError struct {
	Issues []Issue
}

// NewValidationError builds a ValidationError from one or more issues.
func NewValidationError(issues ...Issue) *ValidationError {
	return &ValidationError{Issues: issues}
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid event"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if len(is.Path) == 0 {
			parts = append(parts, is.Message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(is.Path, "."), is.Message))
	}
	return "invalid event: " + strings.Join(parts, "; ")
}

// HasPath reports whether any issue points at the given top-level field.
func (e *ValidationError) HasPath(field string) bool {
	for _, is := range e.Issues {
		if len(is.Path) > 0 && is.Path[0] == field {
			return true
		}
	}
	return false
}

// ErrorResponse is the JSON body returned for rejected events.
type ErrorResponse struct {
	Error   string  `json:"error"`
	Details []Issue `json:"details,omitempty"`
}
