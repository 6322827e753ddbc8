// Package password hashes and verifies credentials with argon2id.
//
// Hashes are PHC strings ($argon2id$v=19$m=...,t=...,p=...$salt$digest),
// so parameters travel with the hash and can be raised over time;
// NeedsUpgrade tells callers when to rehash after a successful login.
//
// Policy (length, character classes) lives in the sanitize package; this
// package accepts whatever credential it is given and never logs it.
package password
