package signing

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by ingest tokens. ProjectID, when set, restricts the token to one project.
type Claims struct {
	ProjectID string `json:"project_id,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 ingest token. A zero ttl produces a token without expiry.
func IssueToken(secret, projectID, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ProjectID: projectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   "lensai",
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
