// Package audit defines the audit event model and the publishers that carry
// events out of the service: a structured-log sink, an in-memory store, a
// buffered fan-out, and a Kafka producer.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"accman/pkg/requestcontext"
)

// Publisher accepts audit events. Implementations must not block the caller
// for long; services treat a publish failure as non-fatal.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Prepare fills the fields every event carries from the request context.
func Prepare(ctx context.Context, event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	return event
}

// LogPublisher writes events to a structured logger. It is the default sink
// when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Emit(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "audit event",
		"event_id", event.ID,
		"action", string(event.Action),
		"category", string(event.Category),
		"user_id", event.UserID.String(),
		"subject", event.Subject,
		"count", event.Count,
		"reason", event.Reason,
		"request_id", event.RequestID,
	)
	return nil
}
