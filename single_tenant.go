package authmode

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"

	"github.com/authmode/authmode/encryption"
	"github.com/authmode/authmode/internal/audit"
	"github.com/authmode/authmode/store"
	"github.com/authmode/authmode/token"
)

// singleTenantUserID is the fixed identity of the mode's one account.
const singleTenantUserID = "owner"

var singleTenantPermissions = []string{"all"}

// singleTenantMode unlocks one personal database with a master key.
// At most one account exists; a second registration is a mode
// violation.
type singleTenantMode struct {
	deps       modeDeps
	databaseID string
}

func newSingleTenantMode(deps modeDeps) *singleTenantMode {
	return &singleTenantMode{
		deps:       deps,
		databaseID: deps.cfg.SingleTenant.DatabasePath,
	}
}

func (m *singleTenantMode) Name() string { return string(ModeSingleTenant) }

func (m *singleTenantMode) RequiresMasterKey() bool     { return true }
func (m *singleTenantMode) SupportsMultipleUsers() bool { return false }

// Initialize verifies the stores are reachable. Account and key material
// are created by CreateUser, so a restart over existing state is a
// no-op.
func (m *singleTenantMode) Initialize(ctx context.Context) error {
	if _, err := m.deps.users.UserByID(ctx, singleTenantUserID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	m.deps.log.Info().Str("database", m.databaseID).Msg("single-tenant mode initialized")
	return nil
}

// CreateUser provisions the one account and its key material: the master
// key is hashed for verification, and a random database key is wrapped
// under a key derived from it. A second call is a mode violation.
func (m *singleTenantMode) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	if _, err := m.deps.users.UserByID(ctx, singleTenantUserID); err == nil {
		m.deps.audit.Emit(audit.Event{
			Type:   audit.EventModeViolation,
			Mode:   m.Name(),
			Detail: "second registration attempted in single-tenant mode",
		})
		return nil, ErrModeViolation
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if req.DatabaseID != "" && req.DatabaseID != m.databaseID {
		return nil, validationError(errors.New("unknown database id"))
	}
	if req.MasterKey != "" &&
		subtle.ConstantTimeCompare([]byte(req.MasterKey), []byte(m.deps.cfg.SingleTenant.MasterKey)) != 1 {
		return nil, ErrInvalidCredentials
	}
	masterKey := m.deps.cfg.SingleTenant.MasterKey

	keyHash, err := m.deps.hasher.Hash(masterKey)
	if err != nil {
		return nil, err
	}

	// The database key is random and independent of the master key; the
	// master key only wraps it, so the master key can later be rotated
	// without re-encrypting the database.
	dbKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, dbKey); err != nil {
		return nil, err
	}
	wrapKey, err := m.deps.crypto.DeriveKey(ctx, masterKey)
	if err != nil {
		return nil, err
	}
	wrapped, err := m.deps.crypto.Encrypt(wrapKey, dbKey)
	if err != nil {
		return nil, err
	}

	if err := m.deps.keys.SaveKey(ctx, &store.Key{
		LocatorHash:  m.locatorHash(masterKey),
		DatabaseID:   m.databaseID,
		KeyHash:      keyHash,
		EncryptedKey: wrapped,
		ACL:          ACLOwner,
	}); err != nil {
		return nil, err
	}

	email := req.Email
	if email == "" {
		email = "owner@" + m.databaseID
	}
	user := &store.User{
		ID:          singleTenantUserID,
		Email:       email,
		Permissions: singleTenantPermissions,
		Active:      true,
	}
	if err := m.deps.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	m.deps.metrics.Registration()
	m.deps.audit.Emit(audit.Event{
		Type:    audit.EventUserCreated,
		Mode:    m.Name(),
		UserID:  user.ID,
		Success: true,
	})

	return user, nil
}

// AuthenticateUser checks the presented master key against the
// configured one in constant time. Missing registration, wrong database,
// and key mismatch all report the same invalid-credentials error.
func (m *singleTenantMode) AuthenticateUser(ctx context.Context, creds Credentials) (*AuthResult, error) {
	if creds.MasterKey == "" {
		return nil, m.loginFailed("missing master key")
	}
	if creds.DatabaseID != "" && creds.DatabaseID != m.databaseID {
		return nil, m.loginFailed("unknown database")
	}
	if subtle.ConstantTimeCompare([]byte(creds.MasterKey), []byte(m.deps.cfg.SingleTenant.MasterKey)) != 1 {
		return nil, m.loginFailed("master key mismatch")
	}

	if _, err := m.deps.keys.KeyByLocator(ctx, m.locatorHash(creds.MasterKey)); errors.Is(err, store.ErrNotFound) {
		return nil, m.loginFailed("database not provisioned")
	} else if err != nil {
		return nil, err
	}

	user, err := m.deps.users.UserByID(ctx, singleTenantUserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, m.loginFailed("no registered account")
	}
	if err != nil {
		return nil, err
	}

	pair, err := m.deps.tokens.GeneratePair(user.ID, singleTenantPermissions, "")
	if err != nil {
		return nil, err
	}

	m.deps.metrics.Login()
	m.deps.audit.Emit(audit.Event{
		Type:    audit.EventLogin,
		Mode:    m.Name(),
		UserID:  user.ID,
		Success: true,
	})

	return &AuthResult{
		User:        user,
		Tokens:      pair,
		Permissions: singleTenantPermissions,
	}, nil
}

func (m *singleTenantMode) RefreshToken(ctx context.Context, refreshToken string) (token.Pair, error) {
	return m.deps.refresh(ctx, m.Name(), refreshToken)
}

func (m *singleTenantMode) Logout(ctx context.Context, userID string) error {
	return m.deps.logout(ctx, m.Name(), userID)
}

// DeleteUser removes the account and its key material and revokes all
// outstanding tokens. A later CreateUser may re-provision.
func (m *singleTenantMode) DeleteUser(ctx context.Context, userID string) error {
	if userID != singleTenantUserID {
		return ErrUserNotFound
	}
	if err := m.deps.users.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := m.deps.keys.DeleteKey(ctx, m.locatorHash(m.deps.cfg.SingleTenant.MasterKey)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := m.deps.tokens.InvalidateUser(ctx, userID); err != nil {
		return err
	}

	m.deps.audit.Emit(audit.Event{
		Type:    audit.EventUserDeleted,
		Mode:    m.Name(),
		UserID:  userID,
		Success: true,
	})
	return nil
}

// locatorHash binds the key record to both the database and the master
// key, so a lookup needs the credential without storing it.
func (m *singleTenantMode) locatorHash(masterKey string) string {
	return encryption.HashSHA256(m.databaseID + ":" + masterKey)
}

func (m *singleTenantMode) loginFailed(detail string) error {
	m.deps.metrics.LoginFailure()
	m.deps.audit.Emit(audit.Event{
		Type:   audit.EventLoginFailed,
		Mode:   m.Name(),
		Detail: detail,
	})
	return ErrInvalidCredentials
}
