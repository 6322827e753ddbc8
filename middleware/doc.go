// Package middleware adapts HTTP requests to token verification. Guard
// reads the Authorization header, verifies the access token, and
// injects the claims into the request context; RequirePermission layers
// coarse permission checks on top. All authentication decisions live in
// the verifier, never here.
package middleware
