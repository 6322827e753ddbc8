package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// EventType names a security-relevant occurrence.
type EventType string

const (
	EventUserCreated   EventType = "user.created"
	EventUserDeleted   EventType = "user.deleted"
	EventLogin         EventType = "auth.login"
	EventLoginFailed   EventType = "auth.login_failed"
	EventTokenRefresh  EventType = "token.refreshed"
	EventTokenReuse    EventType = "token.reuse_detected"
	EventLogout        EventType = "auth.logout"
	EventCSRFRejected  EventType = "csrf.rejected"
	EventModeViolation EventType = "mode.violation"
)

// Event is one audit record. UserID and TenantID are included when
// known; Detail carries a short, credential-free description.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Mode      string    `json:"mode,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail,omitempty"`
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ZerologSink logs each event as one structured log line.
type ZerologSink struct {
	log zerolog.Logger
}

func NewZerologSink(log zerolog.Logger) *ZerologSink {
	return &ZerologSink{log: log}
}

func (s *ZerologSink) Emit(_ context.Context, e Event) {
	evt := s.log.Info()
	if !e.Success {
		evt = s.log.Warn()
	}
	evt.
		Str("audit", string(e.Type)).
		Str("mode", e.Mode).
		Str("user_id", e.UserID).
		Str("tenant_id", e.TenantID).
		Bool("success", e.Success).
		Str("detail", e.Detail).
		Msg("audit event")
}

// ChannelSink buffers events in a channel, mainly for tests and custom
// consumers.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}
