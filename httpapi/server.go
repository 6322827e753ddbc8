package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	authmode "github.com/authmode/authmode"
	"github.com/authmode/authmode/csrf"
	"github.com/authmode/authmode/middleware"
)

// Handler serves the authentication API over an AuthMode.
type Handler struct {
	mode         authmode.AuthMode
	verifier     middleware.Verifier
	protection   *csrf.Protection
	csrfRejected func(*http.Request)
	log          zerolog.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithCSRFRejectionHook registers fn to run whenever the CSRF middleware
// rejects a request. Typically wired to [authmode.Factory.CSRFRejected].
func WithCSRFRejectionHook(fn func(*http.Request)) Option {
	return func(h *Handler) { h.csrfRejected = fn }
}

// New builds a Handler. protection may be nil to disable CSRF checks
// (non-browser deployments).
func New(mode authmode.AuthMode, verifier middleware.Verifier, protection *csrf.Protection, log zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{mode: mode, verifier: verifier, protection: protection, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns the mounted route tree.
//
//	POST /auth/register  create account            201
//	POST /auth/login     authenticate               200
//	POST /auth/refresh   rotate token pair          200
//	POST /auth/logout    invalidate refresh tokens  200 (requires bearer token)
//	GET  /auth/csrf      fetch a fresh CSRF token   204
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", h.register)
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("POST /auth/refresh", h.refresh)
	mux.Handle("POST /auth/logout", middleware.Guard(h.verifier)(http.HandlerFunc(h.logout)))
	mux.HandleFunc("GET /auth/csrf", h.csrfToken)

	var handler http.Handler = mux
	if h.protection != nil {
		mw := csrf.NewMiddleware(h.protection, nil, true, h.log)
		if h.csrfRejected != nil {
			mw.OnRejected(h.csrfRejected)
		}
		handler = mw.Handler(handler)
	}
	return handler
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req authmode.CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.mode.CreateUser(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"id":          user.ID,
		"email":       user.Email,
		"tenantId":    user.TenantID,
		"permissions": user.Permissions,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var creds authmode.Credentials
	if !h.decode(w, r, &creds) {
		return
	}

	result, err := h.mode.AuthenticateUser(r.Context(), creds)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.mode.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, authmode.ErrTokenInvalid)
		return
	}

	if err := h.mode.Logout(r.Context(), claims.Subject); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// csrfToken exists so clients can bootstrap a token before their first
// mutating call; the middleware already sets the header and cookie.
func (h *Handler) csrfToken(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":  string(authmode.CodeValidation),
			"error": "malformed request body",
		})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	typed := authmode.Classify(err)
	if typed.Status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		h.log.Debug().Str("code", string(typed.Code)).Str("path", r.URL.Path).Msg("request rejected")
	}

	h.writeJSON(w, typed.Status, map[string]string{
		"code":  string(typed.Code),
		"error": typed.Message,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		h.log.Warn().Err(err).Msg("write response")
	}
}
