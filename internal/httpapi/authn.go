package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"nashra.news/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// accessCookieOrder is the lookup priority when several role sessions
// coexist in one browser. Admin wins over writer wins over reader.
var accessCookieOrder = []string{adminAccessCookie, writerAccessCookie, userAccessCookie}

// requireCapability is the authorization gate. It extracts the access token
// (role cookies in priority order, then a bearer header for API clients),
// verifies it against the live user record, and checks the capability.
// A failed or missing token is 401; a valid token without the capability
// is 403.
func (a *API) requireCapability(cap auth.Capability, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := accessTokenFromRequest(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		identity, err := a.svc.VerifyAccess(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrForbidden):
				writeError(w, r, http.StatusForbidden, "account is deactivated")
			case errors.Is(err, auth.ErrUnavailable):
				writeError(w, r, http.StatusInternalServerError, "authentication service unavailable")
			default:
				writeError(w, r, http.StatusUnauthorized, "authentication required")
			}
			return
		}

		if !identity.User.Role.Satisfies(cap) {
			writeError(w, r, http.StatusForbidden, "insufficient permissions")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

func accessTokenFromRequest(r *http.Request) (string, bool) {
	for _, name := range accessCookieOrder {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	if token, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
		return token, true
	}
	return "", false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
