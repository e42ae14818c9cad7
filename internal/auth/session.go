// Package auth implements the three credential classes of §3/§4.9: API
// Key, PAT, and Session, plus HMAC-signed request authentication. Each
// resolves a request down to the capability interface {project_id,
// user_id?, scopes?}.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrTokenInvalid = errors.New("auth: invalid session token")
	ErrTokenExpired = errors.New("auth: session token expired")
)

// Context is the resolved identity attached to the request context on
// successful authentication.
type Context struct {
	ProjectID string
	UserID    string
	Scopes    []string
	Method    string // "session", "api_key", "pat", "hmac"
}

// SessionClaims is the JWT payload for a short-lived dashboard session,
// carrying the same tenant/subject/scope shape the token provider used to
// hand-roll, now expressed as jwt.RegisteredClaims fields plus the
// project-scoping extensions runtime auth needs.
type SessionClaims struct {
	jwt.RegisteredClaims
	ProjectID string   `json:"project_id"`
	Scopes    []string `json:"scopes,omitempty"`
}

// SessionProvider issues and verifies HS256 session tokens via
// golang-jwt/jwt/v4, replacing the hand-rolled HS256 provider with the
// library the rest of the pack reaches for.
type SessionProvider struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionProvider builds a provider with the given signing secret and
// session lifetime (short-lived per §3's "Session: ... short-lived").
func NewSessionProvider(secret []byte, ttl time.Duration) (*SessionProvider, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: secret required", ErrTokenInvalid)
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionProvider{secret: append([]byte{}, secret...), ttl: ttl}, nil
}

// Issue signs a new session token for (projectID, userID, scopes).
func (p *SessionProvider) Issue(projectID, userID string, scopes []string) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		ProjectID: projectID,
		Scopes:    normalizeScopes(scopes),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(p.secret)
}

// Verify parses and validates a session token, returning the resolved
// Context on success.
func (p *SessionProvider) Verify(raw string) (Context, error) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method", ErrTokenInvalid)
		}
		return p.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Context{}, ErrTokenExpired
		}
		return Context{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tok.Valid || claims.ProjectID == "" {
		return Context{}, ErrTokenInvalid
	}
	return Context{
		ProjectID: claims.ProjectID,
		UserID:    claims.Subject,
		Scopes:    claims.Scopes,
		Method:    "session",
	}, nil
}
