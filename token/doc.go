// Package token issues and verifies signed, time-bound access/refresh
// token pairs and enforces single-use refresh semantics through a
// pluggable ReplayStore. Refresh rotation is mandatory: a successful
// refresh always returns a new pair and permanently consumes the
// presented token.
package token
