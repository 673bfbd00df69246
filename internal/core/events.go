package core

import (
	"context"
	"log/slog"
	"time"
)

// RowEvent is emitted once per row after it reaches its terminal outcome.
type RowEvent struct {
	SessionID string
	Kind      Kind
	Scope     int64
	Line      int
	Outcome   RowOutcome
	DryRun    bool
	RecordID  int64  // Zero unless the row was written
	Key       string // Duplicate key, empty for rejected rows
	Messages  []string
	Actor     string
	ClientIP  string
	At        time.Time
}

// Observer receives row events. Implementations must not block for long:
// they run inline with the commit loop.
type Observer interface {
	OnRow(ctx context.Context, ev RowEvent)
}

// SessionObserver is optionally implemented by observers that also track
// session boundaries.
type SessionObserver interface {
	OnSessionStart(ctx context.Context, sessionID string, kind Kind, scope int64, totalRows int)
	OnSessionEnd(ctx context.Context, summary *ImportSummary)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev RowEvent)

// OnRow calls f.
func (f ObserverFunc) OnRow(ctx context.Context, ev RowEvent) { f(ctx, ev) }

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

// OnRow forwards ev to every observer.
func (m MultiObserver) OnRow(ctx context.Context, ev RowEvent) {
	for _, o := range m {
		if o != nil {
			o.OnRow(ctx, ev)
		}
	}
}

// OnSessionStart forwards to observers implementing SessionObserver.
func (m MultiObserver) OnSessionStart(ctx context.Context, sessionID string, kind Kind, scope int64, totalRows int) {
	for _, o := range m {
		if so, ok := o.(SessionObserver); ok {
			so.OnSessionStart(ctx, sessionID, kind, scope, totalRows)
		}
	}
}

// OnSessionEnd forwards to observers implementing SessionObserver.
func (m MultiObserver) OnSessionEnd(ctx context.Context, summary *ImportSummary) {
	for _, o := range m {
		if so, ok := o.(SessionObserver); ok {
			so.OnSessionEnd(ctx, summary)
		}
	}
}

// LogObserver writes row outcomes to a structured logger. Errored rows are
// logged at debug level with their messages; everything else at debug
// without detail.
type LogObserver struct {
	Logger *slog.Logger
}

// OnRow logs ev.
func (o LogObserver) OnRow(ctx context.Context, ev RowEvent) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"session_id", ev.SessionID,
		"line", ev.Line,
		"outcome", string(ev.Outcome),
		"dry_run", ev.DryRun,
	}
	if ev.Key != "" {
		attrs = append(attrs, "key", ev.Key)
	}
	if ev.Outcome == OutcomeErrored {
		attrs = append(attrs, "messages", ev.Messages)
	}
	logger.DebugContext(ctx, "row processed", attrs...)
}

// OnSessionStart logs the session start.
func (o LogObserver) OnSessionStart(ctx context.Context, sessionID string, kind Kind, scope int64, totalRows int) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "import session started",
		"session_id", sessionID,
		"kind", string(kind),
		"campaign_id", scope,
		"rows", totalRows,
	)
}

// OnSessionEnd logs the final counts.
func (o LogObserver) OnSessionEnd(ctx context.Context, s *ImportSummary) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "import session finished",
		"session_id", s.SessionID,
		"state", string(s.State),
		"dry_run", s.DryRun,
		"total", s.TotalRows,
		"imported", s.ImportedCount,
		"updated", s.UpdatedCount,
		"skipped", s.SkippedCount,
		"errored", s.ErrorCount,
		"duration_ms", s.DurationMS,
	)
}
