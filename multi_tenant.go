package authmode

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/authmode/authmode/internal/audit"
	"github.com/authmode/authmode/sanitize"
	"github.com/authmode/authmode/store"
	"github.com/authmode/authmode/token"
)

var multiTenantPermissions = []string{"read", "write"}

// multiTenantMode serves many users over a shared store with per-tenant
// scoping. Every lookup is bound to the request's tenant; no operation
// can cross tenants.
type multiTenantMode struct {
	deps modeDeps
}

func newMultiTenantMode(deps modeDeps) *multiTenantMode {
	return &multiTenantMode{deps: deps}
}

func (m *multiTenantMode) Name() string { return string(ModeMultiTenant) }

func (m *multiTenantMode) RequiresMasterKey() bool     { return false }
func (m *multiTenantMode) SupportsMultipleUsers() bool { return true }

// Initialize verifies the store is reachable. Schema migration happens
// when the store is opened, so there is nothing to create here.
func (m *multiTenantMode) Initialize(ctx context.Context) error {
	if _, err := m.deps.users.CountUsers(ctx, ""); err != nil {
		return err
	}
	m.deps.log.Info().
		Str("isolation", string(m.deps.cfg.MultiTenant.Isolation)).
		Int("max_users_per_tenant", m.deps.cfg.MultiTenant.MaxUsersPerTenant).
		Msg("multi-tenant mode initialized")
	return nil
}

// CreateUser registers an account in the request's tenant. Input is
// sanitized before any store access; the per-tenant cap and email
// uniqueness are both enforced.
func (m *multiTenantMode) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	email, err := sanitize.Email(req.Email)
	if err != nil {
		return nil, validationError(err)
	}
	pwd, err := sanitize.Password(req.Password)
	if err != nil {
		return nil, validationError(err)
	}

	count, err := m.deps.users.CountUsers(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if count >= m.deps.cfg.MultiTenant.MaxUsersPerTenant {
		m.deps.audit.Emit(audit.Event{
			Type:     audit.EventModeViolation,
			Mode:     m.Name(),
			TenantID: req.TenantID,
			Detail:   "per-tenant user limit reached",
		})
		return nil, ErrUserLimitExceeded
	}

	hash, err := m.deps.hasher.Hash(pwd)
	if err != nil {
		return nil, err
	}

	permissions := req.Permissions
	if len(permissions) == 0 {
		permissions = multiTenantPermissions
	}

	user := &store.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		TenantID:     req.TenantID,
		Permissions:  permissions,
		Active:       true,
	}
	if err := m.deps.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrConflict
		}
		return nil, err
	}

	m.deps.metrics.Registration()
	m.deps.audit.Emit(audit.Event{
		Type:     audit.EventUserCreated,
		Mode:     m.Name(),
		UserID:   user.ID,
		TenantID: user.TenantID,
		Success:  true,
	})

	return user, nil
}

// AuthenticateUser verifies an email/password login within the tenant.
// Unknown email, inactive account, and wrong password are all reported
// as the same invalid-credentials error.
func (m *multiTenantMode) AuthenticateUser(ctx context.Context, creds Credentials) (*AuthResult, error) {
	email, err := sanitize.Email(creds.Email)
	if err != nil {
		return nil, m.loginFailed(creds.TenantID, "malformed email")
	}

	user, err := m.deps.users.UserByEmail(ctx, creds.TenantID, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, m.loginFailed(creds.TenantID, "unknown email")
	}
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, m.loginFailed(creds.TenantID, "account inactive")
	}

	ok, err := m.deps.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil || !ok {
		return nil, m.loginFailed(creds.TenantID, "password mismatch")
	}

	m.maybeRehash(ctx, user, creds.Password)

	pair, err := m.deps.tokens.GeneratePair(user.ID, user.Permissions, user.TenantID)
	if err != nil {
		return nil, err
	}

	m.deps.metrics.Login()
	m.deps.audit.Emit(audit.Event{
		Type:     audit.EventLogin,
		Mode:     m.Name(),
		UserID:   user.ID,
		TenantID: user.TenantID,
		Success:  true,
	})

	return &AuthResult{
		User:        user,
		Tokens:      pair,
		Permissions: user.Permissions,
	}, nil
}

// maybeRehash upgrades the stored hash after a successful verification
// when cost parameters have been raised. Failure is logged, not
// surfaced: the login already succeeded.
func (m *multiTenantMode) maybeRehash(ctx context.Context, user *store.User, password string) {
	needs, err := m.deps.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := m.deps.hasher.Hash(password)
	if err == nil {
		err = m.deps.users.UpdatePasswordHash(ctx, user.ID, newHash)
	}
	if err != nil {
		m.deps.log.Warn().Err(err).Str("user_id", user.ID).Msg("password rehash failed")
		return
	}
	user.PasswordHash = newHash
}

func (m *multiTenantMode) RefreshToken(ctx context.Context, refreshToken string) (token.Pair, error) {
	return m.deps.refresh(ctx, m.Name(), refreshToken)
}

func (m *multiTenantMode) Logout(ctx context.Context, userID string) error {
	return m.deps.logout(ctx, m.Name(), userID)
}

// DeleteUser removes the account and revokes its refresh lineage.
func (m *multiTenantMode) DeleteUser(ctx context.Context, userID string) error {
	user, err := m.deps.users.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	if err := m.deps.users.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := m.deps.tokens.InvalidateUser(ctx, userID); err != nil {
		return err
	}

	m.deps.audit.Emit(audit.Event{
		Type:     audit.EventUserDeleted,
		Mode:     m.Name(),
		UserID:   userID,
		TenantID: user.TenantID,
		Success:  true,
	})
	return nil
}

func (m *multiTenantMode) loginFailed(tenantID, detail string) error {
	m.deps.metrics.LoginFailure()
	m.deps.audit.Emit(audit.Event{
		Type:     audit.EventLoginFailed,
		Mode:     m.Name(),
		TenantID: tenantID,
		Detail:   detail,
	})
	return ErrInvalidCredentials
}
