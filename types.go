package authmode

import (
	"context"

	"github.com/authmode/authmode/store"
	"github.com/authmode/authmode/token"
)

// User is a stored account, re-exported from the persistence layer so
// callers only import this package.
type User = store.User

// Key is stored database-key material, re-exported from the
// persistence layer.
type Key = store.Key

// Access levels recorded on stored keys. A key's ACL bounds what its
// holder may do with the database it unlocks.
const (
	ACLOwner = "owner"
	ACLAdmin = "admin"
	ACLWrite = "write"
	ACLRead  = "read"
)

// CreateUserRequest carries registration input. Multi-tenant mode reads
// Email, Password, and TenantID; single-tenant mode reads DatabaseID and
// MasterKey, which must match the configured values. Empty Permissions
// select the mode's defaults.
type CreateUserRequest struct {
	Email       string   `json:"email,omitempty"`
	Password    string   `json:"password,omitempty"`
	TenantID    string   `json:"tenantId,omitempty"`
	DatabaseID  string   `json:"databaseId,omitempty"`
	MasterKey   string   `json:"masterKey,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Credentials carries authentication input. Which fields matter depends
// on the active mode: single-tenant reads DatabaseID and MasterKey,
// multi-tenant reads TenantID, Email, and Password.
type Credentials struct {
	Email      string `json:"email,omitempty"`
	Password   string `json:"password,omitempty"`
	TenantID   string `json:"tenantId,omitempty"`
	DatabaseID string `json:"databaseId,omitempty"`
	MasterKey  string `json:"masterKey,omitempty"`
}

// AuthResult is a successful authentication: the resolved user, a fresh
// token pair, and the effective permissions baked into those tokens.
type AuthResult struct {
	User        *User      `json:"user"`
	Tokens      token.Pair `json:"tokens"`
	Permissions []string   `json:"permissions"`
}

// AuthMode is one tenancy strategy. Exactly one mode is active per
// engine instance; modes hold no mutable request state, so a single
// instance serves concurrent requests.
type AuthMode interface {
	// Name reports the mode identifier ("single-tenant" or "multi-tenant").
	Name() string

	// Initialize verifies mode-owned state is reachable. Must be called
	// once before any other operation; safe to call again after that.
	Initialize(ctx context.Context) error

	// CreateUser registers an account. Single-tenant mode provisions its
	// one account and key material here; a second call is a mode
	// violation.
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)

	// AuthenticateUser verifies credentials and issues a token pair. All
	// credential failures are reported uniformly as invalid credentials.
	AuthenticateUser(ctx context.Context, creds Credentials) (*AuthResult, error)

	// RefreshToken exchanges a refresh token for a new pair, consuming
	// the presented token permanently.
	RefreshToken(ctx context.Context, refreshToken string) (token.Pair, error)

	// Logout invalidates every refresh token issued to userID before now.
	Logout(ctx context.Context, userID string) error

	// DeleteUser removes an account and invalidates its tokens.
	DeleteUser(ctx context.Context, userID string) error

	// RequiresMasterKey reports whether this mode authenticates with a
	// database master key instead of per-user credentials.
	RequiresMasterKey() bool

	// SupportsMultipleUsers reports whether the mode can hold more than
	// one account.
	SupportsMultipleUsers() bool
}
