// Package encryption derives symmetric keys from secrets with a slow KDF
// and performs authenticated encryption of arbitrary payloads. Derivation
// is deliberately expensive (anti-brute-force) and cached per secret; all
// ciphertexts are AES-256-GCM with a fresh random nonce prepended.
package encryption
