package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/medimport/internal/core"
)

// SaveSummary upserts a session summary into import_sessions.
func (s *Store) SaveSummary(ctx context.Context, summary *core.ImportSummary) error {
	if summary == nil {
		return errors.New("save summary: nil summary")
	}
	if _, err := uuid.Parse(summary.SessionID); err != nil {
		return fmt.Errorf("save summary: invalid session id %q", summary.SessionID)
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}

	_, err = s.db.Exec(ctx, `INSERT INTO import_sessions
		(id, campaign_id, kind, state, dry_run, summary, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			summary = EXCLUDED.summary,
			saved_at = now()`,
		summary.SessionID,
		summary.Scope,
		string(summary.Kind),
		string(summary.State),
		summary.DryRun,
		payload,
		summary.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("save summary %s: %w", summary.SessionID, err)
	}
	return nil
}

// GetSummary loads a stored summary. Unknown or malformed ids return
// core.ErrSessionNotFound.
func (s *Store) GetSummary(ctx context.Context, sessionID string) (*core.ImportSummary, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	var payload []byte
	err := s.db.QueryRow(ctx, `SELECT summary FROM import_sessions WHERE id = $1`, sessionID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get summary %s: %w", sessionID, err)
	}
	return decodeSummary(payload)
}

// ListSummaries returns the newest summaries for a campaign. A non-positive
// limit returns all of them.
func (s *Store) ListSummaries(ctx context.Context, scope int64, limit int) ([]*core.ImportSummary, error) {
	lim := pgtype.Int4{Int32: int32(limit), Valid: limit > 0}
	rows, err := s.db.Query(ctx, `SELECT summary FROM import_sessions
		WHERE campaign_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, scope, lim)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []*core.ImportSummary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("list summaries: %w", err)
		}
		summary, err := decodeSummary(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return out, nil
}

func decodeSummary(payload []byte) (*core.ImportSummary, error) {
	var summary core.ImportSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &summary, nil
}
