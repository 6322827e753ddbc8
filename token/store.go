package token

import (
	"context"
	"time"
)

// ReplayStore records consumed refresh tokens and per-user invalidation
// watermarks. Implementations must make MarkUsed a single atomic
// check-and-mark: of N concurrent calls with the same jti, exactly one
// succeeds.
type ReplayStore interface {
	// MarkUsed consumes jti for userID. It returns ErrTokenReused when the
	// jti was already consumed, or when issuedAt is not after the user's
	// invalidation watermark. retain bounds how long the mark is kept; it
	// only needs to outlive the token's own expiry.
	MarkUsed(ctx context.Context, userID, jti string, issuedAt time.Time, retain time.Duration) error

	// InvalidateUser moves userID's watermark to at, rejecting every
	// refresh token issued at or before that instant. Other users are
	// unaffected.
	InvalidateUser(ctx context.Context, userID string, at time.Time, retain time.Duration) error
}
