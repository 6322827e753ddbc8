package token

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T, store ReplayStore) *Service {
	t.Helper()
	if store == nil {
		store = NewMemoryStore(0)
	}
	svc, err := NewService(Config{
		Secret:     testSecret,
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Issuer:     "test",
	}, store)
	require.NoError(t, err)
	return svc
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(Config{Secret: []byte("short")}, NewMemoryStore(0))
	require.Error(t, err)

	_, err = NewService(Config{Secret: testSecret}, nil)
	require.Error(t, err)
}

func TestGeneratePairDistinctTokens(t *testing.T) {
	svc := newTestService(t, nil)

	pair, err := svc.GeneratePair("user-1", []string{"read"}, "")
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(60), pair.ExpiresIn)

	access, err := svc.Verify(pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	refresh, err := svc.Verify(pair.RefreshToken, TypeRefresh)
	require.NoError(t, err)

	assert.NotEqual(t, access.ID, refresh.ID)
	assert.True(t, refresh.IssuedAt.After(access.IssuedAt.Time))
}

func TestGeneratePairUniqueAcrossCalls(t *testing.T) {
	svc := newTestService(t, nil)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		pair, err := svc.GeneratePair("user-1", nil, "")
		require.NoError(t, err)
		require.False(t, seen[pair.AccessToken], "duplicate access token")
		require.False(t, seen[pair.RefreshToken], "duplicate refresh token")
		seen[pair.AccessToken] = true
		seen[pair.RefreshToken] = true
	}
}

func TestVerifyTypeMismatch(t *testing.T) {
	svc := newTestService(t, nil)
	pair, err := svc.GeneratePair("user-1", nil, "")
	require.NoError(t, err)

	_, err = svc.Verify(pair.AccessToken, TypeRefresh)
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = svc.Verify(pair.RefreshToken, TypeAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyGarbageAndWrongKey(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Verify("not.a.token", TypeAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)

	other := newTestService(t, nil)
	otherSigned, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	_, err = other.Verify(otherSigned, TypeAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsAlgNone(t *testing.T) {
	svc := newTestService(t, nil)
	pair, err := svc.GeneratePair("user-1", nil, "")
	require.NoError(t, err)

	// Forge an unsigned token reusing the valid payload.
	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)
	forged := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." + parts[1] + "."

	_, err = svc.Verify(forged, TypeAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyExpired(t *testing.T) {
	store := NewMemoryStore(0)
	svc, err := NewService(Config{
		Secret:     testSecret,
		AccessTTL:  -time.Minute,
		RefreshTTL: time.Hour,
	}, store)
	require.NoError(t, err)
	// Negative TTL is replaced by the default, so sign one manually.
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	_, err = svc.Verify(expired, TypeAccess)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefreshRotatesAndConsumes(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	pair, err := svc.GeneratePair("user-1", []string{"read", "write"}, "tenant-a")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken, nil)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, next.AccessToken)

	claims, err := svc.Verify(next.AccessToken, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, []string{"read", "write"}, claims.Permissions)
	assert.Equal(t, "tenant-a", claims.TenantID)

	// The consumed token is dead forever.
	_, err = svc.Refresh(ctx, pair.RefreshToken, nil)
	require.ErrorIs(t, err, ErrTokenReused)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc := newTestService(t, nil)
	pair, err := svc.GeneratePair("user-1", nil, "")
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.AccessToken, nil)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshStatusCheckBlocks(t *testing.T) {
	svc := newTestService(t, nil)
	pair, err := svc.GeneratePair("user-1", nil, "")
	require.NoError(t, err)

	wantErr := errors.New("account disabled")
	_, err = svc.Refresh(context.Background(), pair.RefreshToken, func(context.Context, string) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestConcurrentRefreshExactlyOneWins(t *testing.T) {
	svc := newTestService(t, nil)
	pair, err := svc.GeneratePair("user-1", nil, "")
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		successes atomicCounter
		reuses    atomicCounter
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), pair.RefreshToken, nil)
			switch {
			case err == nil:
				successes.inc()
			case errors.Is(err, ErrTokenReused):
				reuses.inc()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes.load(), "exactly one refresh must win")
	assert.Equal(t, int64(workers-1), reuses.load())
}

func TestInvalidateUserScopedToUser(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	alice, err := svc.GeneratePair("alice", nil, "")
	require.NoError(t, err)
	bob, err := svc.GeneratePair("bob", nil, "")
	require.NoError(t, err)

	require.NoError(t, svc.InvalidateUser(ctx, "alice"))

	_, err = svc.Refresh(ctx, alice.RefreshToken, nil)
	require.ErrorIs(t, err, ErrTokenReused)

	_, err = svc.Refresh(ctx, bob.RefreshToken, nil)
	require.NoError(t, err)
}

type atomicCounter struct {
	mu sync.Mutex
	n  int64
}

func (c *atomicCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *atomicCounter) load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
