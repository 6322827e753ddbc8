// Package authmode provides a mode-polymorphic authentication engine with
// JWT access/refresh token pairs, refresh-token replay detection, HMAC-signed
// CSRF tokens, and per-tenant symmetric key derivation.
//
// Two tenancy strategies implement the [AuthMode] interface: single-tenant
// (one user per encrypted database, authenticated by a master key) and
// multi-tenant (many users in a shared database with row-level isolation,
// authenticated by email/username and password). The [Factory] selects and
// caches exactly one initialized strategy from a validated [Config].
//
// # Architecture boundaries
//
// authmode is the public surface. It exposes [Factory], [AuthMode], [Config],
// the value types (User, Key, Credentials, AuthResult), and typed errors.
// Token issuance lives in the token subpackage, CSRF in csrf, key material in
// encryption, input policy in sanitize, password hashing in password, and
// persistence contracts in store. Audit dispatch and metrics counters live
// under internal/ and are never exported directly.
//
// # Concurrency contract
//
// All AuthMode methods are safe for concurrent use after Initialize. The
// refresh-token check-and-mark and CSRF consume operations are single
// critical sections; key derivation is the only deliberately slow path and
// honors the caller's context.
package authmode
