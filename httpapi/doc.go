// Package httpapi mounts the authentication engine over HTTP: register,
// login, refresh, and logout endpoints with JSON bodies, CSRF
// protection on state-changing routes, and uniform error mapping.
package httpapi
