package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrTokenMissing is returned when a state-changing request carries no
	// token at all.
	ErrTokenMissing = errors.New("csrf token missing")
	// ErrTokenInvalid covers every other failure: bad signature, malformed
	// structure, expiry, unknown to the issuer, or already consumed.
	// Deliberately indistinguishable to the caller.
	ErrTokenInvalid = errors.New("csrf token invalid")
)

const (
	defaultTTL    = time.Hour
	randomBytes   = 32
	tokenSegments = 3
)

// Config tunes Protection. Secret is required.
type Config struct {
	Secret []byte
	TTL    time.Duration
}

type issuedToken struct {
	sessionID string
	expires   time.Time
}

// Protection issues and redeems tokens. Outstanding tokens are tracked
// in process; a token is only ever good for one state-changing request.
// Safe for concurrent use.
type Protection struct {
	secret []byte
	ttl    time.Duration

	mu     sync.Mutex
	issued map[string]issuedToken
}

// NewProtection builds a Protection from cfg.
func NewProtection(cfg Config) (*Protection, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("csrf secret must be at least 256 bits")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Protection{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    ttl,
		issued: make(map[string]issuedToken),
	}, nil
}

// GenerateToken mints a token bound to sessionID (optional). The token
// is random:timestamp:signature, where signature authenticates the
// random value, issue time, and session binding together.
func (p *Protection) GenerateToken(sessionID string) (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	random := hex.EncodeToString(buf)
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	token := fmt.Sprintf("%s:%s:%s", random, ts, p.sign(random, ts, sessionID))

	now := time.Now()
	p.mu.Lock()
	p.sweepLocked(now)
	p.issued[token] = issuedToken{sessionID: sessionID, expires: now.Add(p.ttl)}
	p.mu.Unlock()

	return token, nil
}

// ValidateToken checks token without consuming it. Same acceptance rules
// as ConsumeToken.
func (p *Protection) ValidateToken(token, sessionID string) error {
	if err := p.verify(token, sessionID); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.issued[token]
	if !ok || rec.sessionID != sessionID || !rec.expires.After(time.Now()) {
		return ErrTokenInvalid
	}
	return nil
}

// ConsumeToken redeems token exactly once. A second consume of the same
// token fails with ErrTokenInvalid regardless of remaining lifetime.
func (p *Protection) ConsumeToken(token, sessionID string) error {
	if err := p.verify(token, sessionID); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.issued[token]
	if !ok || rec.sessionID != sessionID || !rec.expires.After(time.Now()) {
		return ErrTokenInvalid
	}
	delete(p.issued, token)
	return nil
}

// Outstanding reports how many unconsumed, unexpired tokens exist.
func (p *Protection) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked(time.Now())
	return len(p.issued)
}

func (p *Protection) verify(token, sessionID string) error {
	if token == "" {
		return ErrTokenMissing
	}

	parts := strings.Split(token, ":")
	if len(parts) != tokenSegments {
		return ErrTokenInvalid
	}
	random, ts, sig := parts[0], parts[1], parts[2]

	expected := p.sign(random, ts, sessionID)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrTokenInvalid
	}

	millis, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrTokenInvalid
	}
	if time.Since(time.UnixMilli(millis)) > p.ttl {
		return ErrTokenInvalid
	}
	return nil
}

func (p *Protection) sign(random, ts, sessionID string) string {
	mac := hmac.New(sha256.New, p.secret)
	io.WriteString(mac, random)
	io.WriteString(mac, ":")
	io.WriteString(mac, ts)
	io.WriteString(mac, ":")
	io.WriteString(mac, sessionID)
	return hex.EncodeToString(mac.Sum(nil))
}

// sweepLocked drops expired tokens. Called with p.mu held.
func (p *Protection) sweepLocked(now time.Time) {
	for tok, rec := range p.issued {
		if !rec.expires.After(now) {
			delete(p.issued, tok)
		}
	}
}
