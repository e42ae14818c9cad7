package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned when no credential class could authenticate
// the request.
var ErrUnauthorized = errors.New("auth: unauthorized")

// RouteClass gates which credential classes a route accepts (§4.9).
type RouteClass int

const (
	RouteDashboard  RouteClass = iota // session only
	RouteManagement                  // session or PAT
	RouteRuntime                     // session, PAT, API key, or HMAC
)

const sessionCookieName = "orbicheck_session"

// Resolver composes the three credential classes plus HMAC into the single
// capability interface the request envelope needs: authenticate(request) →
// (tenant, user, scopes).
type Resolver struct {
	Sessions *SessionProvider
	APIKeys  *APIKeyVerifier
	PATs     *PATVerifier
	HMAC     *HMACVerifier
}

// Authenticate resolves r's credential in the detection order mandated by
// §4.9: session cookie → Bearer token prefix → HMAC scheme. class bounds
// which credential kinds are acceptable for the route being served.
func (res *Resolver) Authenticate(r *http.Request, class RouteClass) (Context, error) {
	ctx := r.Context()

	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		sc, err := res.Sessions.Verify(cookie.Value)
		if err != nil {
			return Context{}, ErrUnauthorized
		}
		return sc, nil
	}

	if class == RouteDashboard {
		return Context{}, ErrUnauthorized
	}

	authz := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(authz, "Bearer "):
		token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
		return res.authenticateBearer(ctx, token, class)
	case strings.HasPrefix(authz, "HMAC "):
		if class != RouteRuntime {
			return Context{}, ErrUnauthorized
		}
		return res.authenticateHMAC(ctx, r, authz)
	default:
		return Context{}, ErrUnauthorized
	}
}

func (res *Resolver) authenticateBearer(ctx context.Context, token string, class RouteClass) (Context, error) {
	if strings.Contains(token, ".") {
		if c, err := res.PATs.Verify(ctx, token, ""); err == nil {
			return c, nil
		}
	}
	if class != RouteRuntime {
		return Context{}, ErrUnauthorized
	}
	if c, err := res.APIKeys.Verify(ctx, token); err == nil {
		return c, nil
	}
	return Context{}, ErrUnauthorized
}

func (res *Resolver) authenticateHMAC(ctx context.Context, r *http.Request, authz string) (Context, error) {
	c, err := res.HMAC.Verify(ctx, r.Method, r.URL.Path, r.URL.RawQuery, authz)
	if err != nil {
		return Context{}, ErrUnauthorized
	}
	return c, nil
}
