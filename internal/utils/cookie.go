package utils

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// CookieBinder manages the per-tenant refresh token cookie. The cookie name
// is derived from the first label of the request host, so two tenants
// served from different subdomains of one deployment never collide in the
// cookie jar even though both go through this same code path. Clearing uses
// the identical name, domain and flags as setting, otherwise browsers keep
// the cookie.
type CookieBinder struct {
	Suffix string        // e.g. "sm_management" -> cookie "acme_sm_management"
	MaxAge time.Duration // matches the refresh token TTL so both age out together
}

// NewCookieBinder builds a binder for the given suffix and lifetime.
func NewCookieBinder(suffix string, maxAge time.Duration) *CookieBinder {
	return &CookieBinder{Suffix: suffix, MaxAge: maxAge}
}

// Name derives the tenant-scoped cookie name from a request host. The port
// is stripped; the tenant is the first dot-separated label.
func (b *CookieBinder) Name(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	sub := host
	if i := strings.IndexByte(host, '.'); i > 0 {
		sub = host[:i]
	}
	return sub + "_" + b.Suffix
}

// Set writes the refresh token cookie for the request's tenant.
func (b *CookieBinder) Set(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, b.cookie(r, token, int(b.MaxAge/time.Second)))
}

// Read returns the refresh token from the tenant cookie, if present.
func (b *CookieBinder) Read(r *http.Request) (string, bool) {
	ck, err := r.Cookie(b.Name(r.Host))
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

// Clear expires the tenant cookie using the exact attributes it was set
// with.
func (b *CookieBinder) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, b.cookie(r, "", -1))
}

func (b *CookieBinder) cookie(r *http.Request, value string, maxAge int) *http.Cookie {
	domain := r.Host
	if h, _, err := net.SplitHostPort(domain); err == nil {
		domain = h
	}
	return &http.Cookie{
		Name:     b.Name(r.Host),
		Value:    value,
		Domain:   domain,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
}
