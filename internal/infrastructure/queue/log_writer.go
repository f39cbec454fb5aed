package queue

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mailgate/gate-service/internal/core/domain"
)

// LogWriter writes decision events to the structured log. It is the audit
// writer used when no database is configured.
type LogWriter struct {
	log zerolog.Logger
}

func NewLogWriter(log zerolog.Logger) *LogWriter {
	return &LogWriter{log: log.With().Str("component", "audit").Logger()}
}

func (w *LogWriter) Write(_ context.Context, ev domain.DecisionEvent) error {
	w.log.Info().
		Time("at", ev.At).
		Str("stage", string(ev.Stage)).
		Str("outcome", ev.Outcome).
		Str("reason", ev.Reason).
		Str("identity_fp", ev.IdentityFingerprint).
		Str("remote_ip", ev.RemoteIP).
		Str("request_id", ev.RequestID).
		Msg("decision")
	return nil
}
