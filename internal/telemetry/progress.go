// Package telemetry publishes live import progress to Redis so any server
// instance can answer progress polls for a session.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/medimport/internal/core"
)

const (
	// ActiveTTL keeps progress alive while rows are flowing.
	ActiveTTL = 30 * time.Minute
	// FinishedTTL is how long progress survives after a session ends.
	FinishedTTL = time.Hour
)

// Progress is the live state of an import session.
type Progress struct {
	SessionID string            `json:"session_id"`
	State     core.SessionState `json:"state"`
	Kind      core.Kind         `json:"kind,omitempty"`
	Scope     int64             `json:"campaign_id,omitempty"`
	TotalRows int               `json:"total_rows"`
	Processed int               `json:"processed"`
	Imported  int               `json:"imported"`
	Updated   int               `json:"updated"`
	Skipped   int               `json:"skipped"`
	Errored   int               `json:"errored"`
	Percent   float64           `json:"percent"`
}

// ProgressTracker is a core.Observer backed by one Redis hash per session.
type ProgressTracker struct {
	redis  *redis.Client
	logger *slog.Logger
}

var (
	_ core.Observer        = (*ProgressTracker)(nil)
	_ core.SessionObserver = (*ProgressTracker)(nil)
)

// NewProgressTracker creates a tracker.
func NewProgressTracker(client *redis.Client, logger *slog.Logger) *ProgressTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressTracker{redis: client, logger: logger}
}

func progressKey(sessionID string) string {
	return fmt.Sprintf("import:progress:%s", sessionID)
}

func (p *ProgressTracker) OnSessionStart(ctx context.Context, sessionID string, kind core.Kind, scope int64, totalRows int) {
	key := progressKey(sessionID)
	_, err := p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"state", string(core.StateRunning),
			"kind", string(kind),
			"campaign_id", scope,
			"total_rows", totalRows,
		)
		pipe.Expire(ctx, key, ActiveTTL)
		return nil
	})
	p.logFailure(sessionID, "start", err)
}

func (p *ProgressTracker) OnRow(ctx context.Context, ev core.RowEvent) {
	key := progressKey(ev.SessionID)
	_, err := p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "processed", 1)
		pipe.HIncrBy(ctx, key, string(ev.Outcome), 1)
		pipe.Expire(ctx, key, ActiveTTL)
		return nil
	})
	p.logFailure(ev.SessionID, "row", err)
}

func (p *ProgressTracker) OnSessionEnd(ctx context.Context, s *core.ImportSummary) {
	if s == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	key := progressKey(s.SessionID)
	_, err := p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "state", string(s.State))
		pipe.Expire(ctx, key, FinishedTTL)
		return nil
	})
	p.logFailure(s.SessionID, "end", err)
}

func (p *ProgressTracker) logFailure(sessionID, stage string, err error) {
	if err != nil {
		p.logger.Warn("publish import progress",
			"session_id", sessionID,
			"stage", stage,
			"error", err,
		)
	}
}

// Get returns the progress of a session. Unknown sessions are reported
// with core.ErrSessionNotFound.
func (p *ProgressTracker) Get(ctx context.Context, sessionID string) (*Progress, error) {
	fields, err := p.redis.HGetAll(ctx, progressKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read progress %s: %w", sessionID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	prog := &Progress{
		SessionID: sessionID,
		State:     core.SessionState(fields["state"]),
		Kind:      core.Kind(fields["kind"]),
		TotalRows: atoi(fields["total_rows"]),
		Processed: atoi(fields["processed"]),
		Imported:  atoi(fields[string(core.OutcomeImported)]),
		Updated:   atoi(fields[string(core.OutcomeUpdated)]),
		Skipped:   atoi(fields[string(core.OutcomeSkipped)]),
		Errored:   atoi(fields[string(core.OutcomeErrored)]),
	}
	prog.Scope, _ = strconv.ParseInt(fields["campaign_id"], 10, 64)
	if prog.TotalRows > 0 {
		prog.Percent = core.SuccessRate(prog.Processed, prog.TotalRows)
	}
	return prog, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
