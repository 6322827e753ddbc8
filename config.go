package authmode

import (
	"net/http"
	"time"
)

// Mode selects the tenancy strategy.
type Mode string

const (
	// ModeSingleTenant serves one personal database unlocked by a master
	// key. No registration, no user management.
	ModeSingleTenant Mode = "single-tenant"
	// ModeMultiTenant serves many users over a shared database with
	// per-tenant isolation.
	ModeMultiTenant Mode = "multi-tenant"
)

// IsolationLevel controls how tenants share the multi-tenant database.
type IsolationLevel string

const (
	// IsolationRow scopes every query by tenant column.
	IsolationRow IsolationLevel = "row"
	// IsolationSchema gives each tenant its own schema.
	IsolationSchema IsolationLevel = "schema"
)

// Default token lifetimes, used when the corresponding settings are
// absent from every source.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// SessionConfig covers token issuance and CSRF protection.
type SessionConfig struct {
	Secret            string        `yaml:"secret"`
	AccessTTL         time.Duration `yaml:"access_ttl"`
	RefreshTTL        time.Duration `yaml:"refresh_ttl"`
	Issuer            string        `yaml:"issuer"`
	Audience          string        `yaml:"audience"`
	CSRFTTL           time.Duration `yaml:"csrf_ttl"`
	ReplayRedisURL    string        `yaml:"replay_redis_url"`
	ReplayMemoryLimit int           `yaml:"replay_memory_limit"`
}

// EncryptionConfig covers key derivation.
type EncryptionConfig struct {
	Salt       string `yaml:"salt"`
	Iterations int    `yaml:"iterations"`
}

// SingleTenantConfig is read only when Mode is single-tenant.
type SingleTenantConfig struct {
	MasterKey    string `yaml:"master_key"`
	DatabasePath string `yaml:"database_path"`
}

// MultiTenantConfig is read only when Mode is multi-tenant.
type MultiTenantConfig struct {
	DatabaseURL       string         `yaml:"database_url"`
	MaxUsersPerTenant int            `yaml:"max_users_per_tenant"`
	Isolation         IsolationLevel `yaml:"isolation"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

// Config is the full engine configuration. Exactly one mode section is
// consulted, decided by Mode; the other is ignored entirely.
type Config struct {
	Mode         Mode               `yaml:"mode"`
	Session      SessionConfig      `yaml:"session"`
	Encryption   EncryptionConfig   `yaml:"encryption"`
	SingleTenant SingleTenantConfig `yaml:"single_tenant"`
	MultiTenant  MultiTenantConfig  `yaml:"multi_tenant"`
	Audit        AuditConfig        `yaml:"audit"`
}

func defaultConfig() Config {
	return Config{
		Mode: ModeSingleTenant,
		Session: SessionConfig{
			AccessTTL:  DefaultAccessTTL,
			RefreshTTL: DefaultRefreshTTL,
			Issuer:     "authmode",
			CSRFTTL:    time.Hour,
		},
		Encryption: EncryptionConfig{
			Iterations: 100_000,
		},
		MultiTenant: MultiTenantConfig{
			MaxUsersPerTenant: 10,
			Isolation:         IsolationRow,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
		},
	}
}

// Validate checks the configuration once, up front. Every failure names
// the missing or malformed field; nothing is validated lazily later.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSingleTenant, ModeMultiTenant:
	case "":
		return configError("mode")
	default:
		return &Error{
			Code:    CodeInvalidConfiguration,
			Status:  http.StatusInternalServerError,
			Message: "invalid auth mode: " + string(c.Mode),
		}
	}

	if c.Session.Secret == "" {
		return configError("session.secret")
	}
	if len(c.Session.Secret) < 32 {
		return &Error{
			Code:    CodeInvalidConfiguration,
			Status:  http.StatusInternalServerError,
			Message: "session.secret must be at least 32 bytes",
		}
	}
	if c.Session.AccessTTL <= 0 || c.Session.RefreshTTL <= 0 {
		return configError("session.access_ttl / session.refresh_ttl")
	}
	if c.Session.RefreshTTL <= c.Session.AccessTTL {
		return &Error{
			Code:    CodeInvalidConfiguration,
			Status:  http.StatusInternalServerError,
			Message: "session.refresh_ttl must exceed session.access_ttl",
		}
	}

	if c.Encryption.Salt == "" {
		return configError("encryption.salt")
	}
	if c.Encryption.Iterations <= 0 {
		return configError("encryption.iterations")
	}

	switch c.Mode {
	case ModeSingleTenant:
		if c.SingleTenant.MasterKey == "" {
			return configError("single_tenant.master_key")
		}
		if c.SingleTenant.DatabasePath == "" {
			return configError("single_tenant.database_path")
		}
	case ModeMultiTenant:
		if c.MultiTenant.DatabaseURL == "" {
			return configError("multi_tenant.database_url")
		}
		if c.MultiTenant.MaxUsersPerTenant <= 0 {
			return configError("multi_tenant.max_users_per_tenant")
		}
		switch c.MultiTenant.Isolation {
		case IsolationRow, IsolationSchema:
		default:
			return &Error{
				Code:    CodeInvalidConfiguration,
				Status:  http.StatusInternalServerError,
				Message: "invalid multi_tenant.isolation: " + string(c.MultiTenant.Isolation),
			}
		}
	}

	return nil
}
