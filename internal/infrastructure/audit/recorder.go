// Package audit turns credential lifecycle events into log lines and counters.
package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/flightdesk/auth-service/internal/core/domain"
	"github.com/flightdesk/auth-service/internal/core/ports"
	"github.com/flightdesk/auth-service/internal/infrastructure/metrics"
)

// Recorder writes one structured line per event and updates the event counters.
type Recorder struct {
	log zerolog.Logger
}

// NewRecorder writes through log as given; callers tag it with a component.
func NewRecorder(log zerolog.Logger) *Recorder {
	return &Recorder{log: log}
}

var _ ports.AuditRecorder = (*Recorder)(nil)

func (r *Recorder) Record(_ context.Context, event domain.AuditEvent) error {
	metrics.AuthEventsTotal.WithLabelValues(event.Action, event.Outcome).Inc()
	if event.Action == domain.AuditRefreshReuse {
		metrics.RefreshReuseTotal.Inc()
	}

	level := zerolog.InfoLevel
	switch {
	case event.Action == domain.AuditRefreshReuse:
		level = zerolog.WarnLevel
	case event.Outcome == domain.OutcomeFailure:
		level = zerolog.DebugLevel
	}

	e := r.log.WithLevel(level).
		Str("action", event.Action).
		Str("outcome", event.Outcome).
		Time("at", event.At)
	if event.UserID != "" {
		e = e.Str("user_id", event.UserID)
	}
	if event.RecordID != "" {
		e = e.Str("record_id", event.RecordID)
	}
	if event.Reason != "" {
		e = e.Str("reason", event.Reason)
	}
	e.Msg("auth event")
	return nil
}
