package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensai/lensai-stack/common/signing"
)

const body = `{"ts":"2024-03-01T14:23:00Z","project_id":"proj1"}`

func request(authorization string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	return r
}

func TestNew(t *testing.T) {
	tests := []struct {
		mode    string
		secret  string
		want    Verifier
		wantErr string
	}{
		{mode: "", want: None{}},
		{mode: "none", secret: "ignored", want: None{}},
		{mode: "HMAC", secret: "s", want: &HMAC{}},
		{mode: "jwt", secret: "s", want: &JWT{}},
		{mode: "hmac", wantErr: "requires a secret"},
		{mode: "jwt", wantErr: "requires a secret"},
		{mode: "basic", secret: "s", wantErr: "unknown auth mode"},
	}

	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.secret, func(t *testing.T) {
			v, err := New(tt.mode, tt.secret)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, v)
		})
	}
}

func TestNone(t *testing.T) {
	assert.NoError(t, None{}.Verify(request(""), []byte(body)))
}

func TestHMAC_Verify(t *testing.T) {
	v := NewHMAC("secret")
	signer := signing.NewBodySigner("secret")

	tests := []struct {
		name   string
		header string
		ok     bool
	}{
		{"scheme header", signer.AuthorizationHeader([]byte(body)), true},
		{"sha256 prefix", "sha256=" + signer.Sign([]byte(body)), true},
		{"bare hex", signer.Sign([]byte(body)), true},
		{"missing", "", false},
		{"wrong secret", signing.NewBodySigner("other").AuthorizationHeader([]byte(body)), false},
		{"signature of other body", signer.AuthorizationHeader([]byte(`{}`)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(request(tt.header), []byte(body))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnauthorized)
			}
		})
	}
}

func TestJWT_Verify(t *testing.T) {
	v := NewJWT("secret")

	valid, err := signing.IssueToken("secret", "", "sdk", time.Hour)
	require.NoError(t, err)
	scoped, err := signing.IssueToken("secret", "proj1", "sdk", time.Hour)
	require.NoError(t, err)
	otherProject, err := signing.IssueToken("secret", "proj2", "sdk", time.Hour)
	require.NoError(t, err)
	noExpiry, err := signing.IssueToken("secret", "", "sdk", 0)
	require.NoError(t, err)
	wrongKey, err := signing.IssueToken("other", "", "sdk", time.Hour)
	require.NoError(t, err)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, signing.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		ok     bool
	}{
		{"valid", "Bearer " + valid, true},
		{"lowercase scheme", "bearer " + valid, true},
		{"no expiry", "Bearer " + noExpiry, true},
		{"project claim matches", "Bearer " + scoped, true},
		{"project claim mismatch", "Bearer " + otherProject, false},
		{"wrong key", "Bearer " + wrongKey, false},
		{"expired", "Bearer " + expired, false},
		{"unexpected algorithm", "Bearer " + hs512, false},
		{"missing", "", false},
		{"not bearer", "Basic dXNlcjpwYXNz", false},
		{"empty token", "Bearer ", false},
		{"garbage", "Bearer abc.def.ghi", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(request(tt.header), []byte(body))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
			}
		})
	}
}

func TestJWT_ProjectClaimIgnoresUndecodableBody(t *testing.T) {
	v := NewJWT("secret")
	scoped, err := signing.IssueToken("secret", "proj1", "sdk", time.Hour)
	require.NoError(t, err)

	for _, b := range []string{`not json`, `{"project_id":7}`, `{}`} {
		assert.NoError(t, v.Verify(request("Bearer "+scoped), []byte(b)), b)
	}
}

func TestJWT_ProjectClaimMatchesExactKey(t *testing.T) {
	v := NewJWT("secret")
	scoped, err := signing.IssueToken("secret", "mine", "sdk", time.Hour)
	require.NoError(t, err)

	for _, b := range []string{
		`{"project_id":"victim","PROJECT_ID":"mine"}`,
		`{"PROJECT_ID":"mine","project_id":"victim"}`,
		`{"Project_Id":"mine","project_id":"victim"}`,
	} {
		err := v.Verify(request("Bearer "+scoped), []byte(b))
		assert.True(t, errors.Is(err, ErrUnauthorized), "body %s: got %v", b, err)
	}
	assert.NoError(t, v.Verify(request("Bearer "+scoped), []byte(`{"project_id":"mine","PROJECT_ID":"victim"}`)))
}
