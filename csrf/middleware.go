package csrf

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

const (
	// HeaderName carries tokens in both directions.
	HeaderName = "X-CSRF-Token"
	// CookieName exposes the current token to browser clients. The cookie
	// is intentionally readable from script so the client can echo it in
	// the request header.
	CookieName = "csrf_token"
)

// sessionIDFunc extracts the session binding for a request. Empty string
// means the token is unbound.
type sessionIDFunc func(*http.Request) string

// Middleware wires Protection into an HTTP handler chain.
type Middleware struct {
	protection *Protection
	sessionID  sessionIDFunc
	secure     bool
	rejected   func(*http.Request)
	log        zerolog.Logger
}

// NewMiddleware builds a Middleware. sessionID may be nil for unbound
// tokens; secure controls the cookie's Secure attribute.
func NewMiddleware(p *Protection, sessionID func(*http.Request) string, secure bool, log zerolog.Logger) *Middleware {
	if sessionID == nil {
		sessionID = func(*http.Request) string { return "" }
	}
	return &Middleware{protection: p, sessionID: sessionID, secure: secure, log: log}
}

// OnRejected registers fn to run whenever a state-changing request fails
// the token check, before the 403 is written. Feeds metrics and audit
// surfaces; nil disables the hook.
func (m *Middleware) OnRejected(fn func(*http.Request)) *Middleware {
	m.rejected = fn
	return m
}

// Handler enforces the protection scheme. Safe methods pass through and
// receive a fresh token. State-changing methods must present a valid
// unconsumed token or are rejected with 403; on success a fresh token is
// issued so the client always holds exactly one usable token.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := m.sessionID(r)

		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			m.issue(w, sid)
			next.ServeHTTP(w, r)
			return
		}

		token := requestToken(r)
		if err := m.protection.ConsumeToken(token, sid); err != nil {
			m.log.Warn().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("csrf check failed")
			if m.rejected != nil {
				m.rejected(r)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "CSRF token validation failed"})
			return
		}

		m.issue(w, sid)
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) issue(w http.ResponseWriter, sessionID string) {
	token, err := m.protection.GenerateToken(sessionID)
	if err != nil {
		m.log.Error().Err(err).Msg("csrf token generation failed")
		return
	}
	w.Header().Set(HeaderName, token)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.protection.ttl.Seconds()),
		Secure:   m.secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func requestToken(r *http.Request) string {
	if t := r.Header.Get(HeaderName); t != "" {
		return t
	}
	return r.PostFormValue("_csrf")
}
