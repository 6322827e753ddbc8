package authmode

import (
	"context"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/authmode/authmode/encryption"
	"github.com/authmode/authmode/internal/audit"
	"github.com/authmode/authmode/internal/metrics"
	"github.com/authmode/authmode/password"
	"github.com/authmode/authmode/store"
	"github.com/authmode/authmode/token"
)

// Factory builds the AuthMode selected by configuration. Construction
// is explicit: callers create a Factory, inject what they want to
// replace, and ask for the mode. The built mode is cached; Reset drops
// it so the next request rebuilds from current configuration.
type Factory struct {
	cfg *Config
	log zerolog.Logger

	// test/deployment overrides; nil selects the config-driven default
	users     store.UserStore
	keys      store.KeyStore
	replay    token.ReplayStore
	auditSink audit.Sink

	mu         sync.Mutex
	mode       AuthMode
	tokens     *token.Service
	dispatcher *audit.Dispatcher
	registry   *metrics.Registry
	closers    []func() error
}

// Option customizes a Factory.
type Option func(*Factory)

// WithLogger sets the structured logger used by all built components.
func WithLogger(log zerolog.Logger) Option {
	return func(f *Factory) { f.log = log }
}

// WithUserStore overrides the config-driven user store.
func WithUserStore(s store.UserStore) Option {
	return func(f *Factory) { f.users = s }
}

// WithKeyStore overrides the config-driven key store.
func WithKeyStore(s store.KeyStore) Option {
	return func(f *Factory) { f.keys = s }
}

// WithReplayStore overrides the config-driven replay store.
func WithReplayStore(s token.ReplayStore) Option {
	return func(f *Factory) { f.replay = s }
}

// WithAuditSink overrides the default log-backed audit sink.
func WithAuditSink(s audit.Sink) Option {
	return func(f *Factory) { f.auditSink = s }
}

// NewFactory validates cfg and returns a Factory. Nothing is connected
// or allocated until Mode is first called.
func NewFactory(cfg *Config, opts ...Option) (*Factory, error) {
	if cfg == nil {
		return nil, configError("config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &Factory{
		cfg:      cfg,
		log:      zerolog.Nop(),
		registry: metrics.NewRegistry(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Mode returns the configured AuthMode, building and initializing it on
// first call. Subsequent calls return the same instance.
func (f *Factory) Mode(ctx context.Context) (AuthMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mode != nil {
		return f.mode, nil
	}

	mode, err := f.build(ctx)
	if err != nil {
		f.closeLocked()
		return nil, err
	}
	if err := mode.Initialize(ctx); err != nil {
		f.closeLocked()
		return nil, err
	}

	f.mode = mode
	return mode, nil
}

func (f *Factory) build(ctx context.Context) (AuthMode, error) {
	replay := f.replay
	if replay == nil {
		if url := f.cfg.Session.ReplayRedisURL; url != "" {
			opts, err := redis.ParseURL(url)
			if err != nil {
				return nil, &Error{
					Code:    CodeInvalidConfiguration,
					Status:  http.StatusInternalServerError,
					Message: "invalid session.replay_redis_url",
					Err:     err,
				}
			}
			client := redis.NewClient(opts)
			f.closers = append(f.closers, client.Close)
			replay = token.NewRedisStore(client, "")
		} else {
			replay = token.NewMemoryStore(f.cfg.Session.ReplayMemoryLimit)
		}
	}

	tokens, err := token.NewService(token.Config{
		Secret:     []byte(f.cfg.Session.Secret),
		AccessTTL:  f.cfg.Session.AccessTTL,
		RefreshTTL: f.cfg.Session.RefreshTTL,
		Issuer:     f.cfg.Session.Issuer,
		Audience:   f.cfg.Session.Audience,
	}, replay)
	if err != nil {
		return nil, err
	}
	f.tokens = tokens

	hasher, err := password.NewHasher(password.DefaultConfig())
	if err != nil {
		return nil, err
	}

	crypto, err := encryption.NewService(encryption.Config{
		Salt:       []byte(f.cfg.Encryption.Salt),
		Iterations: f.cfg.Encryption.Iterations,
	})
	if err != nil {
		return nil, err
	}

	users, keys, err := f.buildStores(ctx)
	if err != nil {
		return nil, err
	}

	if f.cfg.Audit.Enabled {
		sink := f.auditSink
		if sink == nil {
			sink = audit.NewZerologSink(f.log)
		}
		f.dispatcher = audit.NewDispatcher(sink, f.cfg.Audit.BufferSize)
	}

	deps := modeDeps{
		cfg:     f.cfg,
		tokens:  tokens,
		hasher:  hasher,
		crypto:  crypto,
		users:   users,
		keys:    keys,
		audit:   f.dispatcher,
		metrics: f.registry,
		log:     f.log,
	}

	switch f.cfg.Mode {
	case ModeSingleTenant:
		return newSingleTenantMode(deps), nil
	case ModeMultiTenant:
		return newMultiTenantMode(deps), nil
	default:
		// Validate already rejected anything else.
		return nil, ErrInvalidConfiguration
	}
}

func (f *Factory) buildStores(ctx context.Context) (store.UserStore, store.KeyStore, error) {
	users, keys := f.users, f.keys
	if users != nil && keys != nil {
		return users, keys, nil
	}

	switch f.cfg.Mode {
	case ModeMultiTenant:
		pg, err := store.OpenPostgres(ctx, f.cfg.MultiTenant.DatabaseURL, f.log)
		if err != nil {
			return nil, nil, err
		}
		f.closers = append(f.closers, pg.Close)
		if users == nil {
			users = pg
		}
		if keys == nil {
			keys = pg
		}
	default:
		mem := store.NewMemory()
		if users == nil {
			users = mem
		}
		if keys == nil {
			keys = mem
		}
	}
	return users, keys, nil
}

// Reset drops the cached mode and releases its resources. The next Mode
// call rebuilds everything from the current configuration.
func (f *Factory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
	f.mode = nil
}

// Close releases all resources held by the built mode.
func (f *Factory) Close() {
	f.Reset()
}

func (f *Factory) closeLocked() {
	f.dispatcher.Close()
	f.dispatcher = nil
	f.tokens = nil
	for _, c := range f.closers {
		if err := c(); err != nil {
			f.log.Warn().Err(err).Msg("factory: close resource")
		}
	}
	f.closers = nil
}

// Tokens returns the token service behind the built mode, for mounting
// HTTP guards. Returns nil until Mode has been called.
func (f *Factory) Tokens() *token.Service {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens
}

// CSRFRejected records one request rejected by CSRF protection, feeding
// the csrf counter and the audit stream. Wire it into the HTTP layer's
// rejection hook; r may be nil.
func (f *Factory) CSRFRejected(r *http.Request) {
	f.registry.CSRFRejected()

	event := audit.Event{
		Type: audit.EventCSRFRejected,
		Mode: string(f.cfg.Mode),
	}
	if r != nil {
		event.Detail = r.Method + " " + r.URL.Path
	}

	f.mu.Lock()
	dispatcher := f.dispatcher
	f.mu.Unlock()
	dispatcher.Emit(event)
}

// MetricsSnapshot reports current counter values. Survives Reset.
func (f *Factory) MetricsSnapshot() metrics.Snapshot {
	return f.registry.Snapshot()
}

// AuditDropped reports audit events discarded under backpressure.
func (f *Factory) AuditDropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dispatcher.Dropped()
}
