package authmode

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigService loads engine configuration once and caches it. Sources
// are merged in fixed precedence: defaults, then an optional YAML file,
// then environment variables. Environment always wins.
type ConfigService struct {
	path string

	mu     sync.Mutex
	cached *Config
}

// NewConfigService creates a service. path may be empty to skip the
// file source entirely.
func NewConfigService(path string) *ConfigService {
	return &ConfigService{path: path}
}

// Load returns the validated configuration, reading sources on first
// call and the cache afterwards.
func (s *ConfigService) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}
	cfg, err := s.read()
	if err != nil {
		return nil, err
	}
	s.cached = cfg
	return cfg, nil
}

// Reload discards the cache and re-reads all sources.
func (s *ConfigService) Reload() (*Config, error) {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	return s.Load()
}

func (s *ConfigService) read() (*Config, error) {
	cfg := defaultConfig()

	if s.path != "" {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	var firstErr error
	setDuration := func(key string, dst *time.Duration) {
		v, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("parse %s: %w", key, err)
			return
		}
		*dst = d
	}
	setInt := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("parse %s: %w", key, err)
			return
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("AUTH_MODE"); ok {
		cfg.Mode = Mode(v)
	}
	setString("SESSION_SECRET", &cfg.Session.Secret)
	setDuration("ACCESS_TOKEN_EXPIRATION", &cfg.Session.AccessTTL)
	setDuration("REFRESH_TOKEN_EXPIRATION", &cfg.Session.RefreshTTL)
	setString("SESSION_ISSUER", &cfg.Session.Issuer)
	setString("SESSION_AUDIENCE", &cfg.Session.Audience)
	setDuration("CSRF_TOKEN_EXPIRATION", &cfg.Session.CSRFTTL)
	setString("REPLAY_REDIS_URL", &cfg.Session.ReplayRedisURL)

	setString("ENCRYPTION_SALT", &cfg.Encryption.Salt)
	setInt("ENCRYPTION_ITERATIONS", &cfg.Encryption.Iterations)

	setString("SINGLE_TENANT_KEY", &cfg.SingleTenant.MasterKey)
	setString("SINGLE_TENANT_DB_PATH", &cfg.SingleTenant.DatabasePath)

	setString("MULTI_TENANT_DB_URL", &cfg.MultiTenant.DatabaseURL)
	setInt("MAX_USERS_PER_TENANT", &cfg.MultiTenant.MaxUsersPerTenant)
	if v, ok := os.LookupEnv("TENANT_ISOLATION_LEVEL"); ok {
		cfg.MultiTenant.Isolation = IsolationLevel(v)
	}

	return firstErr
}
