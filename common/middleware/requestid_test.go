package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name        string
		existing    string
		expectNewID bool
	}{
		{name: "generates new request ID when not present", existing: "", expectNewID: true},
		{name: "propagates existing request ID", existing: "existing-req-123", expectNewID: false},
		{name: "replaces oversized request ID", existing: strings.Repeat("x", 200), expectNewID: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.existing != "" {
				req.Header.Set("X-Request-ID", tt.existing)
			}
			rr := httptest.NewRecorder()

			RequestID(handler).ServeHTTP(rr, req)

			require.NotEmpty(t, captured)
			assert.Equal(t, captured, rr.Header().Get("X-Request-ID"))
			if tt.expectNewID {
				_, err := uuid.Parse(captured)
				assert.NoError(t, err, "expected a generated UUID")
			} else {
				assert.Equal(t, tt.existing, captured)
			}
		})
	}
}

func TestRequestID_UniqueIDs(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		id := rr.Header().Get("X-Request-ID")
		assert.False(t, seen[id], "duplicate request ID %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 100)
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetRequestID(req.Context()))
}
