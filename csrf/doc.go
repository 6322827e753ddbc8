// Package csrf implements stateful double-submit protection with
// HMAC-signed, time-bound, single-use tokens. Tokens are issued on safe
// requests and must be consumed exactly once by the state-changing
// request they protect.
package csrf
