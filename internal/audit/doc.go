// Package audit emits structured security events for authentication
// activity. Emission is asynchronous and lossy under pressure: the
// authentication path is never blocked by a slow sink.
package audit
