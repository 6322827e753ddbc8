// Package sanitize is the pure validation and normalization boundary for
// untrusted strings entering the authentication engine. Every function is
// side-effect free: input either passes whole (possibly normalized) or the
// call fails with a *ValidationError. Nothing is partially sanitized and
// forwarded.
package sanitize
