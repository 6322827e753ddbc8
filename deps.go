package authmode

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/authmode/authmode/encryption"
	"github.com/authmode/authmode/internal/audit"
	"github.com/authmode/authmode/internal/metrics"
	"github.com/authmode/authmode/password"
	"github.com/authmode/authmode/store"
	"github.com/authmode/authmode/token"
)

// modeDeps bundles the services every mode needs. Built once by the
// factory and shared read-only by the active mode.
type modeDeps struct {
	cfg     *Config
	tokens  *token.Service
	hasher  *password.Hasher
	crypto  *encryption.Service
	users   store.UserStore
	keys    store.KeyStore
	audit   *audit.Dispatcher
	metrics *metrics.Registry
	log     zerolog.Logger
}

// userActive is the StatusFunc handed to token refresh: the subject
// must still exist and be active for the rotation to complete.
func (d *modeDeps) userActive(ctx context.Context, userID string) error {
	u, err := d.users.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if !u.Active {
		return ErrInvalidCredentials
	}
	return nil
}

// refresh runs the rotation flow shared by both modes, with metrics and
// audit on the reuse path.
func (d *modeDeps) refresh(ctx context.Context, mode, refreshToken string) (token.Pair, error) {
	pair, err := d.tokens.Refresh(ctx, refreshToken, d.userActive)
	if err != nil {
		if errors.Is(err, token.ErrTokenReused) {
			d.metrics.ReuseDetected()
			d.audit.Emit(audit.Event{
				Type:   audit.EventTokenReuse,
				Mode:   mode,
				Detail: "refresh token presented after consumption",
			})
		}
		// Classify so callers match the typed sentinels without importing
		// the token package.
		return token.Pair{}, Classify(err)
	}

	d.metrics.Refresh()
	d.audit.Emit(audit.Event{Type: audit.EventTokenRefresh, Mode: mode, Success: true})
	return pair, nil
}

// logout invalidates the user's refresh lineage.
func (d *modeDeps) logout(ctx context.Context, mode, userID string) error {
	if err := d.tokens.InvalidateUser(ctx, userID); err != nil {
		return err
	}
	d.metrics.Logout()
	d.audit.Emit(audit.Event{
		Type:    audit.EventLogout,
		Mode:    mode,
		UserID:  userID,
		Success: true,
	})
	return nil
}
