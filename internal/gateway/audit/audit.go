package audit

import (
	"context"
	"errors"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sink persists request log entries. Entries are append-only.
type Sink interface {
	Record(ctx context.Context, entry models.RequestLogEntry) error
}

// Multi fans an entry out to every sink and joins their errors
type Multi []Sink

func (m Multi) Record(ctx context.Context, entry models.RequestLogEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes entries to a zerolog logger
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink on the global logger
func NewLogSink() *LogSink {
	return &LogSink{logger: log.With().Str("component", "audit").Logger()}
}

// NewLogSinkWithLogger creates a sink on a specific logger
func NewLogSinkWithLogger(l zerolog.Logger) *LogSink {
	return &LogSink{logger: l}
}

func (s *LogSink) Record(ctx context.Context, e models.RequestLogEntry) error {
	ev := s.logger.Info()
	if !e.Success {
		ev = s.logger.Warn().Str("error", e.Error)
	}
	ev.Str("id", e.ID).
		Str("dispatch_id", e.DispatchID).
		Int64("provider_id", e.ProviderID).
		Str("provider_kind", string(e.ProviderKind)).
		Str("usage_type", e.UsageType).
		Int("attempt", e.Attempt).
		Bool("success", e.Success).
		Str("user", e.User).
		Int64("latency_ms", e.LatencyMs).
		Int("tokens_used", e.TokensUsed).
		Msg("ai request")
	return nil
}

// RequestLogger is implemented by the Postgres database
type RequestLogger interface {
	LogRequest(ctx context.Context, entry *models.RequestLogEntry) error
}

// DatabaseSink writes entries to the ai_request_logs table
type DatabaseSink struct {
	db RequestLogger
}

// NewDatabaseSink creates a sink over the shared database
func NewDatabaseSink(db RequestLogger) *DatabaseSink {
	return &DatabaseSink{db: db}
}

func (s *DatabaseSink) Record(ctx context.Context, e models.RequestLogEntry) error {
	return s.db.LogRequest(ctx, &e)
}
