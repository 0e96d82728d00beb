package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensai/lensai-stack/common/logging"
	"github.com/lensai/lensai-stack/common/signing"
	"github.com/lensai/lensai-stack/ingest/internal/auth"
	"github.com/lensai/lensai-stack/ingest/internal/objectstore"
	"github.com/lensai/lensai-stack/ingest/internal/validator"
	"github.com/lensai/lensai-stack/ingest/internal/writer"
	"github.com/lensai/lensai-stack/ingest/pkg/models"
)

const canonicalBody = `{"ts":"2024-03-01T14:23:00Z","project_id":"proj1","request_id":"r1","route":"/chat","provider":"openai","model":"gpt-4","tokens_in":10,"tokens_out":20,"cost_usd":0.002,"latency_ms":450,"status":"ok"}`

// Mock writer for testing
type mockWriter struct {
	mu     sync.Mutex
	events []*models.Event
	ctxErr error
	err    error
}

func (m *mockWriter) Write(ctx context.Context, ev *models.Event) (*writer.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	m.ctxErr = ctx.Err()
	if m.err != nil {
		return nil, m.err
	}
	return &writer.Ack{Key: "k", Bytes: 1}, nil
}

func (m *mockWriter) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func newHandler(w EventWriter, verifier auth.Verifier) *EventHandler {
	return NewEventHandler(w, validator.New(), verifier, Options{Logger: logging.Discard()})
}

func post(h *EventHandler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.HandleEvent(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

func TestHandleEvent_Valid(t *testing.T) {
	mw := &mockWriter{}
	rr := post(newHandler(mw, nil), canonicalBody, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	require.Equal(t, 1, mw.calls())
	assert.Equal(t, "proj1", mw.events[0].ProjectID)
	assert.Equal(t, 0.002, mw.events[0].CostUSD)
}

func TestHandleEvent_CanonicalScenarioAppendsLine(t *testing.T) {
	store := objectstore.NewMemoryStore()
	w := writer.New(store, nil, writer.Config{Backend: "memory"}, logging.Discard())

	rr := post(newHandler(w, nil), canonicalBody, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	data, ct, err := store.Get(context.Background(), "dt=2024-03-01/project_id=proj1/events-14.ndjson")
	require.NoError(t, err)
	assert.Equal(t, models.NDJSONContentType, ct)
	assert.JSONEq(t, canonicalBody, strings.TrimSuffix(string(data), "\n"))
}

func TestHandleEvent_Options(t *testing.T) {
	mw := &mockWriter{}
	h := newHandler(mw, nil)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rr := httptest.NewRecorder()
	h.HandleEvent(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Zero(t, mw.calls())
}

func TestHandleEvent_MethodNotAllowed(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead} {
		t.Run(method, func(t *testing.T) {
			mw := &mockWriter{}
			h := newHandler(mw, nil)

			req := httptest.NewRequest(method, "/", strings.NewReader(canonicalBody))
			rr := httptest.NewRecorder()
			h.HandleEvent(rr, req)

			assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
			if method != http.MethodHead {
				assert.Equal(t, "Method not allowed", rr.Body.String())
			}
			assert.Equal(t, "POST, OPTIONS", rr.Header().Get("Allow"))
			assert.Zero(t, mw.calls())
		})
	}
}

func TestHandleEvent_MissingField(t *testing.T) {
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(canonicalBody), &m))
	delete(m, "cost_usd")
	body, _ := json.Marshal(m)

	mw := &mockWriter{}
	rr := post(newHandler(mw, nil), string(body), nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	resp := decodeError(t, rr)
	assert.Equal(t, "Invalid event format", resp.Error)
	require.Len(t, resp.Details, 1)
	assert.Equal(t, []string{"cost_usd"}, resp.Details[0].Path)
	assert.Zero(t, mw.calls())
}

func TestHandleEvent_WrongTypes(t *testing.T) {
	tests := map[string]string{
		"tokens_in as string":  strings.Replace(canonicalBody, `"tokens_in":10`, `"tokens_in":"100"`, 1),
		"tokens_in as boolean": strings.Replace(canonicalBody, `"tokens_in":10`, `"tokens_in":true`, 1),
		"not json":             `{"ts":`,
		"array body":           `[]`,
		"empty body":           ``,
		"unknown field":        strings.Replace(canonicalBody, `"status":"ok"`, `"status":"ok","extra":1`, 1),
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			mw := &mockWriter{}
			rr := post(newHandler(mw, nil), body, nil)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			resp := decodeError(t, rr)
			assert.Equal(t, "Invalid event format", resp.Error)
			assert.NotEmpty(t, resp.Details)
			assert.Zero(t, mw.calls())
		})
	}
}

func TestHandleEvent_DetailsShape(t *testing.T) {
	body := strings.Replace(canonicalBody, `"tokens_in":10`, `"tokens_in":"100"`, 1)
	rr := post(newHandler(&mockWriter{}, nil), body, nil)

	var raw map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&raw))
	details := raw["details"].([]any)
	require.Len(t, details, 1)
	issue := details[0].(map[string]any)
	assert.Equal(t, "invalid_type", issue["code"])
	assert.Equal(t, []any{"tokens_in"}, issue["path"])
	assert.Equal(t, "number", issue["expected"])
	assert.Equal(t, "string", issue["received"])
	assert.Equal(t, "Expected number, received string", issue["message"])
}

func TestHandleEvent_InvalidDate(t *testing.T) {
	store := objectstore.NewMemoryStore()
	w := writer.New(store, nil, writer.Config{}, logging.Discard())
	body := strings.Replace(canonicalBody, `"2024-03-01T14:23:00Z"`, `"soon"`, 1)

	rr := post(newHandler(w, nil), body, nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeError(t, rr)
	require.Len(t, resp.Details, 1)
	assert.Equal(t, models.IssueInvalidDate, resp.Details[0].Code)
	assert.Empty(t, store.Keys())
}

func TestHandleEvent_StoreFault(t *testing.T) {
	mw := &mockWriter{err: &writer.StoreError{Key: "k", Attempts: 1, Err: errors.New("bucket unavailable")}}
	rr := post(newHandler(mw, nil), canonicalBody, nil)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Internal server error", rr.Body.String())
	assert.Equal(t, 1, mw.calls())
}

func TestHandleEvent_UnknownFault(t *testing.T) {
	mw := &mockWriter{err: errors.New("unexpected")}
	rr := post(newHandler(mw, nil), canonicalBody, nil)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Internal server error", rr.Body.String())
}

func TestHandleEvent_WriteOutlivesClient(t *testing.T) {
	mw := &mockWriter{}
	h := newHandler(mw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(canonicalBody)).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.HandleEvent(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NoError(t, mw.ctxErr)
}

func TestHandleEvent_BodyTooLarge(t *testing.T) {
	mw := &mockWriter{}
	h := NewEventHandler(mw, nil, nil, Options{MaxBodyBytes: 64, Logger: logging.Discard()})

	rr := post(h, canonicalBody, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "Request body too large", decodeError(t, rr).Error)
	assert.Zero(t, mw.calls())
}

func TestHandleEvent_HMAC(t *testing.T) {
	signer := signing.NewBodySigner("secret")
	verifier, err := auth.New("hmac", "secret")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   int
		calls  int
	}{
		{"valid signature", signer.AuthorizationHeader([]byte(canonicalBody)), http.StatusOK, 1},
		{"missing signature", "", http.StatusUnauthorized, 0},
		{"bad signature", "HMAC-SHA256 " + strings.Repeat("0", 64), http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := &mockWriter{}
			rr := post(newHandler(mw, verifier), canonicalBody, map[string]string{"Authorization": tt.header})

			assert.Equal(t, tt.code, rr.Code)
			if tt.code == http.StatusUnauthorized {
				assert.Equal(t, "Unauthorized", rr.Body.String())
			}
			assert.Equal(t, tt.calls, mw.calls())
		})
	}
}

func TestHandleEvent_AuthRunsBeforeValidation(t *testing.T) {
	verifier, err := auth.New("hmac", "secret")
	require.NoError(t, err)

	rr := post(newHandler(&mockWriter{}, verifier), `not json`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

type brokenVerifier struct{}

func (brokenVerifier) Verify(*http.Request, []byte) error { return errors.New("key service down") }

func TestHandleEvent_VerifierFault(t *testing.T) {
	rr := post(newHandler(&mockWriter{}, brokenVerifier{}), canonicalBody, nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func (s *stubLimiter) Close() error { return nil }

func limitedHandler(w EventWriter, l *stubLimiter) *EventHandler {
	return NewEventHandler(w, validator.New(), nil, Options{
		Logger:     logging.Discard(),
		Limiter:    l,
		RetryAfter: time.Minute,
	})
}

func TestHandleEvent_RateLimited(t *testing.T) {
	mw := &mockWriter{}
	l := &stubLimiter{allow: false}
	rr := post(limitedHandler(mw, l), canonicalBody, nil)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, "Rate limit exceeded", decodeError(t, rr).Error)
	assert.Equal(t, []string{"proj1"}, l.keys)
	assert.Zero(t, mw.calls())
}

func TestHandleEvent_RateLimitAdmits(t *testing.T) {
	mw := &mockWriter{}
	rr := post(limitedHandler(mw, &stubLimiter{allow: true}), canonicalBody, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, mw.calls())
}

func TestHandleEvent_RateLimiterFaultAdmits(t *testing.T) {
	mw := &mockWriter{}
	rr := post(limitedHandler(mw, &stubLimiter{err: errors.New("redis down")}), canonicalBody, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, mw.calls())
}

func TestHandleEvent_InvalidEventSkipsRateLimit(t *testing.T) {
	l := &stubLimiter{allow: false}
	rr := post(limitedHandler(&mockWriter{}, l), `{"ts":1}`, nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, l.keys)
}

func TestHandleEvent_UnplaceableTimestampSkipsRateLimit(t *testing.T) {
	mw := &mockWriter{}
	l := &stubLimiter{allow: true}
	body := strings.Replace(canonicalBody, `"2024-03-01T14:23:00Z"`, `"yesterday"`, 1)

	rr := post(limitedHandler(mw, l), body, nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeError(t, rr)
	require.Len(t, resp.Details, 1)
	assert.Equal(t, models.IssueInvalidDate, resp.Details[0].Code)
	assert.Empty(t, l.keys)
	assert.Zero(t, mw.calls())
}

func TestHandleEvent_JWTScopeUsesStoredProjectID(t *testing.T) {
	store := objectstore.NewMemoryStore()
	w := writer.New(store, nil, writer.Config{}, logging.Discard())
	h := NewEventHandler(w, validator.New(validator.WithRejectUnknownFields(false)), auth.NewJWT("s"),
		Options{Logger: logging.Discard()})
	token, err := signing.IssueToken("s", "mine", "sdk", time.Hour)
	require.NoError(t, err)
	headers := map[string]string{"Authorization": "Bearer " + token}

	foreign := strings.Replace(canonicalBody, `"project_id":"proj1"`, `"project_id":"victim","PROJECT_ID":"mine"`, 1)
	rr := post(h, foreign, headers)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, store.Keys())

	own := strings.Replace(canonicalBody, `"project_id":"proj1"`, `"project_id":"mine"`, 1)
	rr = post(h, own, headers)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"dt=2024-03-01/project_id=mine/events-14.ndjson"}, store.Keys())
}

func TestHealth(t *testing.T) {
	h := newHandler(&mockWriter{}, nil)
	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
}

func TestReady(t *testing.T) {
	healthy := func(ctx context.Context) (map[string]interface{}, error) {
		return map[string]interface{}{"backend": "memory"}, nil
	}
	failing := func(ctx context.Context) (map[string]interface{}, error) {
		return nil, errors.New("connection refused")
	}

	t.Run("all dependencies up", func(t *testing.T) {
		h := NewEventHandler(&mockWriter{}, nil, nil, Options{
			Logger: logging.Discard(),
			Checks: map[string]ReadinessCheck{"store": healthy},
		})
		rr := httptest.NewRecorder()
		h.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ready","dependencies":{"store":{"backend":"memory"}}}`, rr.Body.String())
	})

	t.Run("dependency down", func(t *testing.T) {
		h := NewEventHandler(&mockWriter{}, nil, nil, Options{
			Logger: logging.Discard(),
			Checks: map[string]ReadinessCheck{"store": healthy, "dlq": failing},
		})
		rr := httptest.NewRecorder()
		h.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		body, _ := io.ReadAll(rr.Body)
		assert.Contains(t, string(body), `"not_ready"`)
		assert.Contains(t, string(body), "connection refused")
	})
}
