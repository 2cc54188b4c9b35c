package httpapi

import (
	"net/http"
	"time"

	"nashra.news/internal/auth"
)

// Cookie names are role-namespaced so an editor can hold admin, writer, and
// reader sessions in the same browser without collision.
const (
	adminAccessCookie  = "admin-token"
	adminRefreshCookie = "admin-refresh"

	writerAccessCookie  = "writer-token"
	writerRefreshCookie = "writer-refresh"

	userAccessCookie  = "auth-token"
	userRefreshCookie = "auth-refresh"
)

// legacyCookies existed before role namespacing; clearAllKnownSessions still
// sweeps them so stale browsers end up fully logged out.
var legacyCookies = []string{"token", "refresh-token"}

type cookiePolicy struct {
	secure bool
}

// cookieNamesFor is the total role → cookie pair mapping.
func cookieNamesFor(role auth.Role) (accessName, refreshName string) {
	switch role {
	case auth.RoleAdmin:
		return adminAccessCookie, adminRefreshCookie
	case auth.RoleWriter:
		return writerAccessCookie, writerRefreshCookie
	default:
		return userAccessCookie, userRefreshCookie
	}
}

// setSession writes the role-namespaced access+refresh pair. The access
// cookie is SameSite=Lax so top-level navigations keep working; the refresh
// cookie is only ever read by POST /auth/refresh and stays Strict.
func (p cookiePolicy) setSession(w http.ResponseWriter, role auth.Role, pair auth.TokenPair, now time.Time) {
	accessName, refreshName := cookieNamesFor(role)
	http.SetCookie(w, &http.Cookie{
		Name:     accessName,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   maxAge(now, pair.AccessExpiresAt),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshName,
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   maxAge(now, pair.RefreshExpiresAt),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSession expires the role's cookie pair.
func (p cookiePolicy) clearSession(w http.ResponseWriter, role auth.Role) {
	accessName, refreshName := cookieNamesFor(role)
	p.expire(w, accessName)
	p.expire(w, refreshName)
}

// clearAllKnownSessions expires every role-namespaced cookie plus the legacy
// names. Idempotent: clearing an absent cookie is a no-op for the browser.
func (p cookiePolicy) clearAllKnownSessions(w http.ResponseWriter) {
	for _, role := range []auth.Role{auth.RoleAdmin, auth.RoleWriter, auth.RoleUser} {
		p.clearSession(w, role)
	}
	for _, name := range legacyCookies {
		p.expire(w, name)
	}
}

func (p cookiePolicy) expire(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func maxAge(now, exp time.Time) int {
	d := exp.Sub(now)
	if d <= 0 {
		return -1
	}
	return int(d / time.Second)
}
