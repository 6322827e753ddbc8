package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrDecryptionFailed is returned when the authentication tag does not
	// verify: the ciphertext was tampered with or the key is wrong. The
	// operation is never retried with the same ciphertext and key.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
	// ErrInvalidCiphertext is returned for ciphertexts too short to carry
	// a nonce.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

const (
	defaultIterations = 100_000
	keyLength         = 32
	nonceLength       = 12
)

// Config tunes key derivation. Zero values fall back to the defaults
// (100k PBKDF2-SHA256 iterations, 32-byte keys).
type Config struct {
	Salt       []byte
	Iterations int
}

// Service derives keys and encrypts/decrypts payloads. Derived keys are
// cached per secret; the cache entry is replaced when the same Service is
// asked to derive for a changed secret set. Safe for concurrent use.
type Service struct {
	salt       []byte
	iterations int

	mu    sync.RWMutex
	cache map[string][]byte
}

// NewService creates a Service. The salt must be non-empty so deployments
// cannot silently share the library default.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Salt) == 0 {
		return nil, errors.New("encryption salt is required")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = defaultIterations
	}

	return &Service{
		salt:       append([]byte(nil), cfg.Salt...),
		iterations: iterations,
		cache:      make(map[string][]byte),
	}, nil
}

// DeriveKey derives a 256-bit key from secret. Deterministic for the same
// secret and parameters. The first derivation for a secret is CPU-bound
// (~100k hash iterations) and runs off the calling goroutine so the
// caller's context deadline is honored; subsequent calls hit the cache.
func (s *Service) DeriveKey(ctx context.Context, secret string) ([]byte, error) {
	s.mu.RLock()
	key, ok := s.cache[secret]
	s.mu.RUnlock()
	if ok {
		return key, nil
	}

	done := make(chan []byte, 1)
	go func() {
		done <- pbkdf2.Key([]byte(secret), s.salt, s.iterations, keyLength, sha256.New)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case key = <-done:
	}

	s.mu.Lock()
	s.cache[secret] = key
	s.mu.Unlock()

	return key, nil
}

// InvalidateKey drops the cached key for secret, forcing re-derivation.
func (s *Service) InvalidateKey(secret string) {
	s.mu.Lock()
	delete(s.cache, secret)
	s.mu.Unlock()
}

// Encrypt seals plaintext under key with AES-256-GCM. A fresh random
// nonce is generated per call and prepended to the returned ciphertext.
func (s *Service) Encrypt(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Returns
// ErrDecryptionFailed when the tag does not verify; never returns
// unauthenticated plaintext.
func (s *Service) Decrypt(key, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < nonceLength {
		return nil, ErrInvalidCiphertext
	}

	nonce, sealed := ciphertext[:nonceLength], ciphertext[nonceLength:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// HashSHA256 returns the hex-encoded SHA-256 digest of input. Used for
// key locator hashes that allow lookup without storing the credential.
func HashSHA256(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns n random bytes hex-encoded (2n characters).
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
