package ports

import (
	"context"

	"github.com/mailgate/gate-service/internal/core/domain"
)

// AuditSink accepts decision events. Record must not block the caller.
type AuditSink interface {
	Record(event domain.DecisionEvent)
}

// AuditWriter persists decision events; it is what the dispatcher drains into.
type AuditWriter interface {
	Write(ctx context.Context, event domain.DecisionEvent) error
}
