package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned when a create collides with an
	// existing account in the same tenant.
	ErrDuplicateEmail = errors.New("email already registered")
)

// User is a stored account. Email is unique per tenant; TenantID is
// empty in single-tenant deployments.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	TenantID     string
	Permissions  []string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key is a stored database access key. LocatorHash is a digest of the
// credential that allows lookup without persisting the credential
// itself; KeyHash is a slow verification hash; EncryptedKey is the
// AEAD-wrapped database key released on successful authentication.
type Key struct {
	LocatorHash  string
	DatabaseID   string
	KeyHash      string
	EncryptedKey []byte
	ACL          string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}

// UserStore persists accounts. Implementations must enforce per-tenant
// email uniqueness atomically.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	UserByEmail(ctx context.Context, tenantID, email string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetActive(ctx context.Context, id string, active bool) error
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context, tenantID string) (int, error)
}

// KeyStore persists database access keys, addressed by locator hash.
type KeyStore interface {
	SaveKey(ctx context.Context, k *Key) error
	KeyByLocator(ctx context.Context, locatorHash string) (*Key, error)
	DeleteKey(ctx context.Context, locatorHash string) error
}
