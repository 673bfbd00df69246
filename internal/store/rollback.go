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

var (
	// ErrAlreadyRolledBack is returned for a second rollback of a session.
	ErrAlreadyRolledBack = errors.New("import already rolled back")

	// ErrNothingToRollBack is returned for dry-run sessions.
	ErrNothingToRollBack = errors.New("dry-run imports wrote nothing")
)

// RollbackResult reports what a rollback removed.
type RollbackResult struct {
	SessionID      string    `json:"session_id"`
	Kind           core.Kind `json:"kind"`
	CampaignID     int64     `json:"campaign_id"`
	RecordsDeleted int64     `json:"records_deleted"`
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// withTx runs fn in a transaction when the underlying handle supports one.
func (s *Store) withTx(ctx context.Context, fn func(q DBTX) error) error {
	b, ok := s.db.(txBeginner)
	if !ok {
		return fn(s.db)
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RollbackSession soft-deletes the records a finished session created,
// using the record_create entries of the audit log. Records the session
// updated keep their new values. The session is marked so a second call
// fails with ErrAlreadyRolledBack.
func (s *Store) RollbackSession(ctx context.Context, sessionID string) (RollbackResult, error) {
	result := RollbackResult{SessionID: sessionID}
	if _, err := uuid.Parse(sessionID); err != nil {
		return result, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	err := s.withTx(ctx, func(q DBTX) error {
		var (
			kind       string
			dryRun     bool
			rolledBack pgtype.Timestamptz
		)
		err := q.QueryRow(ctx, `SELECT kind, campaign_id, dry_run, rolled_back_at
			FROM import_sessions WHERE id = $1 FOR UPDATE`, sessionID).
			Scan(&kind, &result.CampaignID, &dryRun, &rolledBack)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
		}
		if err != nil {
			return fmt.Errorf("load session %s: %w", sessionID, err)
		}
		result.Kind = core.Kind(kind)

		switch {
		case rolledBack.Valid:
			return ErrAlreadyRolledBack
		case dryRun:
			return ErrNothingToRollBack
		}

		table, err := tableFor(result.Kind)
		if err != nil {
			return err
		}
		tag, err := q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET deleted_at = now(), updated_at = now()
			WHERE deleted_at IS NULL AND id IN (
				SELECT record_id FROM import_audit_log
				WHERE session_id = $1 AND action = $2 AND record_id IS NOT NULL)`, table),
			sessionID, string(ActionRecordCreate))
		if err != nil {
			return fmt.Errorf("delete %s of session %s: %w", table, sessionID, err)
		}
		result.RecordsDeleted = tag.RowsAffected()

		if _, err := q.Exec(ctx, `UPDATE import_sessions SET rolled_back_at = now() WHERE id = $1`, sessionID); err != nil {
			return fmt.Errorf("mark session %s rolled back: %w", sessionID, err)
		}

		details, _ := json.Marshal(map[string]int64{"records_deleted": result.RecordsDeleted})
		_, err = q.Exec(ctx, insertAudit,
			string(ActionImportRolledBack),
			string(determineSeverity(ActionImportRolledBack)),
			sessionID,
			kind,
			result.CampaignID,
			nil,
			nil,
			nil,
			toPgText(core.ActorFromContext(ctx)),
			toPgText(core.ClientIPFromContext(ctx)),
			details,
		)
		if err != nil {
			return fmt.Errorf("audit rollback of %s: %w", sessionID, err)
		}
		return nil
	})
	return result, err
}
