package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid is returned for any signature, structure, or claim
	// failure. Verification failures are reported uniformly so callers
	// cannot probe which check failed.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when the signature is valid but exp has
	// elapsed. Callers may merge this with ErrTokenInvalid at the
	// boundary.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenReused is returned when a refresh token is presented after
	// it has already been consumed. This indicates possible token theft.
	ErrTokenReused = errors.New("refresh token reuse detected")
)

// Type discriminates access from refresh tokens in the type claim.
type Type string

const (
	// TypeAccess marks short-lived bearer tokens.
	TypeAccess Type = "access"
	// TypeRefresh marks long-lived rotation tokens.
	TypeRefresh Type = "refresh"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the payload carried by both token types.
type Claims struct {
	TokenType   Type     `json:"type"`
	Permissions []string `json:"permissions,omitempty"`
	TenantID    string   `json:"tenantId,omitempty"`
	jwt.RegisteredClaims
}

// Pair is an issued access/refresh token pair. ExpiresIn is the access
// token lifetime in seconds.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Config configures the Service. Secret is required; TTLs default to
// 15m access / 7d refresh.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// StatusFunc checks that the subject of a refresh token is still active.
// A non-nil return aborts the refresh before a new pair is issued.
type StatusFunc func(ctx context.Context, userID string) error

// Service signs and verifies token pairs. Safe for concurrent use.
type Service struct {
	config Config
	store  ReplayStore
}

// NewService validates cfg and builds a Service backed by store.
func NewService(cfg Config, store ReplayStore) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 256 bits")
	}
	if store == nil {
		return nil, errors.New("replay store is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Service{config: cfg, store: store}, nil
}

// AccessTTL reports the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.config.AccessTTL }

// GeneratePair issues an access/refresh pair for userID. The two tokens
// always carry distinct jti values, and the refresh token's iat is one
// second after the access token's, so no two tokens of a pair are ever
// bit-identical even under rapid successive calls.
func (s *Service) GeneratePair(userID string, permissions []string, tenantID string) (Pair, error) {
	now := time.Now()

	access, err := s.sign(userID, permissions, tenantID, TypeAccess, now, s.config.AccessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.sign(userID, permissions, tenantID, TypeRefresh, now.Add(time.Second), s.config.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTTL / time.Second),
	}, nil
}

func (s *Service) sign(userID string, permissions []string, tenantID string, typ Type, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		TokenType:   typ,
		Permissions: permissions,
		TenantID:    tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			Issuer:    s.config.Issuer,
		},
	}
	if s.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Secret)
}

// Verify checks signature, structure, expiry, and the type claim. All
// failures map to ErrTokenInvalid except a valid-but-expired token, which
// maps to ErrTokenExpired.
func (s *Service) Verify(tokenStr string, expected Type) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}
	if s.config.Audience != "" {
		options = append(options, jwt.WithAudience(s.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != expected || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Refresh consumes refreshToken and issues a new pair. The presented
// token is verified, atomically marked used (rejecting replays with
// ErrTokenReused), checked against the subject's status via check, and
// only then exchanged. The returned pair never contains the input token.
func (s *Service) Refresh(ctx context.Context, refreshToken string, check StatusFunc) (Pair, error) {
	claims, err := s.Verify(refreshToken, TypeRefresh)
	if err != nil {
		return Pair{}, err
	}

	key := claims.ID
	if key == "" {
		key = refreshToken
	}
	var issuedAt time.Time
	if claims.IssuedAt != nil {
		// The refresh iat is skewed one second past the access iat at
		// signing; subtract it back so the invalidation watermark compares
		// against the instant the pair was actually generated.
		issuedAt = claims.IssuedAt.Add(-time.Second)
	}
	retain := s.config.RefreshTTL
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 && remaining < retain {
			retain = remaining
		}
	}

	// Check-and-mark is a single critical section inside the store; a
	// concurrent refresh of the same token loses here, not after issuing.
	if err := s.store.MarkUsed(ctx, claims.Subject, key, issuedAt, retain); err != nil {
		if errors.Is(err, ErrTokenReused) {
			// Replay means the token leaked. Revoke the subject's whole
			// refresh lineage, not just this token.
			if invErr := s.InvalidateUser(ctx, claims.Subject); invErr != nil {
				return Pair{}, errors.Join(err, invErr)
			}
		}
		return Pair{}, err
	}

	if check != nil {
		if err := check(ctx, claims.Subject); err != nil {
			return Pair{}, err
		}
	}

	return s.GeneratePair(claims.Subject, claims.Permissions, claims.TenantID)
}

// InvalidateUser rejects every refresh token issued to userID before now.
// Used on logout and account deletion; scoped to the one user so other
// principals' tokens are unaffected.
func (s *Service) InvalidateUser(ctx context.Context, userID string) error {
	return s.store.InvalidateUser(ctx, userID, time.Now(), s.config.RefreshTTL)
}
