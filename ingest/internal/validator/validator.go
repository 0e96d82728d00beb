// Package validator checks raw request bodies against the usage event schema.
package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/lensai/lensai-stack/ingest/pkg/models"
)

type kind int

const (
	kindString kind = iota
	kindNumber
	kindObject
)

func (k kind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	default:
		return "object"
	}
}

type field struct {
	name     string
	kind     kind
	required bool
}

// schema lists event fields in wire order; issues are reported in this order.
var schema = []field{
	{"ts", kindString, true},
	{"project_id", kindString, true},
	{"request_id", kindString, true},
	{"user_id", kindString, false},
	{"route", kindString, true},
	{"provider", kindString, true},
	{"model", kindString, true},
	{"tokens_in", kindNumber, true},
	{"tokens_out", kindNumber, true},
	{"cost_usd", kindNumber, true},
	{"latency_ms", kindNumber, true},
	{"status", kindString, true},
	{"metadata", kindObject, false},
}

var known = func() map[string]struct{} {
	m := make(map[string]struct{}, len(schema))
	for _, f := range schema {
		m[f.name] = struct{}{}
	}
	return m
}()

// Validator turns raw request bodies into events.
type Validator struct {
	rejectUnknown bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithRejectUnknownFields controls whether top-level fields outside the schema
// are rejected (true) or silently dropped (false).
func WithRejectUnknownFields(reject bool) Option {
	return func(v *Validator) {
		v.rejectUnknown = reject
	}
}

// New returns a Validator. Unknown fields are rejected unless configured otherwise.
func New(opts ...Option) *Validator {
	v := &Validator{rejectUnknown: true}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate parses raw as JSON and checks it against the event schema.
// On failure the returned error is a *models.ValidationError.
func (v *Validator) Validate(raw []byte) (*models.Event, error) {
	var obj map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&obj); err != nil {
		return nil, parseError(raw, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, models.NewValidationError(models.Issue{
			Code:    models.IssueInvalidJSON,
			Path:    []string{},
			Message: "Unexpected data after JSON value",
		})
	}
	if obj == nil {
		return nil, models.NewValidationError(typeIssue(nil, "object", "null"))
	}

	var issues []models.Issue
	for _, f := range schema {
		val, ok := obj[f.name]
		if !ok {
			if f.required {
				issues = append(issues, models.Issue{
					Code:     models.IssueInvalidType,
					Path:     []string{f.name},
					Message:  "Required",
					Expected: f.kind.String(),
					Received: "undefined",
				})
			}
			continue
		}
		if got := jsonType(val); got != f.kind.String() {
			issues = append(issues, typeIssue([]string{f.name}, f.kind.String(), got))
			continue
		}
		if f.kind == kindNumber {
			if _, err := number(val); err != nil {
				issues = append(issues, models.Issue{
					Code:     models.IssueInvalidType,
					Path:     []string{f.name},
					Message:  "Expected finite number",
					Expected: "number",
					Received: "infinity",
				})
			}
		}
	}

	if v.rejectUnknown {
		var extra []string
		for k := range obj {
			if _, ok := known[k]; !ok {
				extra = append(extra, k)
			}
		}
		if len(extra) > 0 {
			sort.Strings(extra)
			issues = append(issues, models.Issue{
				Code:    models.IssueUnrecognizedKeys,
				Path:    []string{},
				Message: "Unrecognized key(s) in object: '" + strings.Join(extra, "', '") + "'",
				Keys:    extra,
			})
		}
	}

	if len(issues) > 0 {
		return nil, models.NewValidationError(issues...)
	}

	return build(obj)
}

// build copies the validated fields into an Event. Types were checked by the caller.
func build(obj map[string]json.RawMessage) (*models.Event, error) {
	ev := &models.Event{}
	strs := map[string]*string{
		"ts":         &ev.TS,
		"project_id": &ev.ProjectID,
		"request_id": &ev.RequestID,
		"route":      &ev.Route,
		"provider":   &ev.Provider,
		"model":      &ev.Model,
		"status":     &ev.Status,
	}
	for name, dst := range strs {
		if err := json.Unmarshal(obj[name], dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}

	nums := map[string]*float64{
		"tokens_in":  &ev.TokensIn,
		"tokens_out": &ev.TokensOut,
		"cost_usd":   &ev.CostUSD,
		"latency_ms": &ev.LatencyMS,
	}
	for name, dst := range nums {
		n, err := number(obj[name])
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		*dst = n
	}

	if raw, ok := obj["user_id"]; ok {
		var uid string
		if err := json.Unmarshal(raw, &uid); err != nil {
			return nil, fmt.Errorf("decode user_id: %w", err)
		}
		ev.UserID = &uid
	}
	if raw, ok := obj["metadata"]; ok {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		ev.Metadata = json.RawMessage(buf.Bytes())
	}

	return ev, nil
}

func number(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, errors.New("number out of range")
	}
	return n, nil
}

// jsonType names the JSON type of raw the way the issue messages expect.
func jsonType(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "undefined"
	}
	switch c := trimmed[0]; {
	case c == '"':
		return "string"
	case c == '{':
		return "object"
	case c == '[':
		return "array"
	case c == 't' || c == 'f':
		return "boolean"
	case c == 'n':
		return "null"
	default:
		return "number"
	}
}

func typeIssue(path []string, expected, received string) models.Issue {
	if path == nil {
		path = []string{}
	}
	return models.Issue{
		Code:     models.IssueInvalidType,
		Path:     path,
		Message:  fmt.Sprintf("Expected %s, received %s", expected, received),
		Expected: expected,
		Received: received,
	}
}

// parseError maps a json decoding failure onto a ValidationError. A well-formed
// document that is not an object is reported as a type mismatch.
func parseError(raw []byte, err error) *models.ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return models.NewValidationError(typeIssue(nil, "object", jsonType(raw)))
	}
	msg := err.Error()
	if errors.Is(err, io.EOF) || len(bytes.TrimSpace(raw)) == 0 {
		msg = "Unexpected end of JSON input"
	}
	return models.NewValidationError(models.Issue{
		Code:    models.IssueInvalidJSON,
		Path:    []string{},
		Message: msg,
	})
}
