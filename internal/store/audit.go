package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/medimport/internal/core"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionRecordCreate     AuditAction = "record_create"
	ActionRecordUpdate     AuditAction = "record_update"
	ActionDuplicateSkipped AuditAction = "duplicate_skipped"
	ActionRowRejected      AuditAction = "row_rejected"
	ActionImportFinished   AuditAction = "import_finished"
	ActionImportCancelled  AuditAction = "import_cancelled"
	ActionImportFailed     AuditAction = "import_failed"
	ActionImportPreview    AuditAction = "import_preview"
	ActionImportRolledBack AuditAction = "import_rolled_back"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionRecordUpdate, ActionImportCancelled:
		return SeverityHigh
	case ActionImportFailed, ActionImportRolledBack:
		return SeverityCritical
	case ActionDuplicateSkipped, ActionImportPreview:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

func actionForOutcome(o core.RowOutcome) AuditAction {
	switch o {
	case core.OutcomeImported:
		return ActionRecordCreate
	case core.OutcomeUpdated:
		return ActionRecordUpdate
	case core.OutcomeSkipped:
		return ActionDuplicateSkipped
	default:
		return ActionRowRejected
	}
}

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID         int64           `json:"id"`
	Action     AuditAction     `json:"action"`
	Severity   AuditSeverity   `json:"severity"`
	SessionID  string          `json:"sessionId"`
	Kind       core.Kind       `json:"kind"`
	CampaignID int64           `json:"campaignId"`
	Line       int             `json:"line,omitempty"`
	RecordID   int64           `json:"recordId,omitempty"`
	Key        string          `json:"key,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	IPAddress  string          `json:"ipAddress,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// AuditWriter is a core.Observer that records committed row outcomes and
// session results in import_audit_log. Dry-run rows are not recorded.
//
// It uses database/sql so it can share a pool with the advisory locker via
// stdlib.OpenDBFromPool.
type AuditWriter struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ core.Observer        = (*AuditWriter)(nil)
	_ core.SessionObserver = (*AuditWriter)(nil)
)

// NewAuditWriter creates an AuditWriter.
func NewAuditWriter(db *sql.DB, logger *slog.Logger) *AuditWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditWriter{db: db, logger: logger}
}

const insertAudit = `INSERT INTO import_audit_log
	(action, severity, session_id, kind, campaign_id, line, record_id, dedup_key, actor, ip_address, details)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (w *AuditWriter) OnRow(ctx context.Context, ev core.RowEvent) {
	if ev.DryRun {
		return
	}
	action := actionForOutcome(ev.Outcome)

	var details []byte
	if len(ev.Messages) > 0 {
		details, _ = json.Marshal(map[string]interface{}{"messages": ev.Messages})
	}

	w.exec(ctx, ev.SessionID, action,
		ev.SessionID,
		string(ev.Kind),
		ev.Scope,
		nullInt(int64(ev.Line)),
		nullInt(ev.RecordID),
		nullString(ev.Key),
		nullString(ev.Actor),
		nullString(ev.ClientIP),
		nullBytes(details),
	)
}

func (w *AuditWriter) OnSessionStart(context.Context, string, core.Kind, int64, int) {}

func (w *AuditWriter) OnSessionEnd(ctx context.Context, s *core.ImportSummary) {
	if s == nil {
		return
	}
	action := ActionImportFinished
	switch {
	case s.DryRun:
		action = ActionImportPreview
	case s.State == core.StateCancelled:
		action = ActionImportCancelled
	case s.State == core.StateFailed:
		action = ActionImportFailed
	}

	details, _ := json.Marshal(map[string]interface{}{
		"file_name":        s.FileName,
		"duplicate_policy": s.Policy,
		"total_rows":       s.TotalRows,
		"imported_count":   s.ImportedCount,
		"updated_count":    s.UpdatedCount,
		"skipped_count":    s.SkippedCount,
		"error_count":      s.ErrorCount,
		"unprocessed_rows": s.UnprocessedRows,
		"duration_ms":      s.DurationMS,
	})

	w.exec(ctx, s.SessionID, action,
		s.SessionID,
		string(s.Kind),
		s.Scope,
		nil,
		nil,
		nil,
		nullString(core.ActorFromContext(ctx)),
		nullString(core.ClientIPFromContext(ctx)),
		details,
	)
}

// exec inserts one audit row. Failures are logged; auditing never fails an
// import.
func (w *AuditWriter) exec(ctx context.Context, sessionID string, action AuditAction, args ...interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	full := append([]interface{}{string(action), string(determineSeverity(action))}, args...)
	if _, err := w.db.ExecContext(ctx, insertAudit, full...); err != nil {
		w.logger.Error("write audit entry",
			"session_id", sessionID,
			"action", string(action),
			"error", err,
		)
	}
}

// AuditFilter narrows ListAudit results.
type AuditFilter struct {
	SessionID  string
	CampaignID int64
	Action     AuditAction
	Limit      int
	Offset     int
}

// DefaultAuditLimit caps ListAudit when no limit is given.
const DefaultAuditLimit = 100

// ListAudit returns audit entries, oldest first.
func (w *AuditWriter) ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}

	var (
		where []string
		args  []interface{}
	)
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		where = append(where, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if f.CampaignID != 0 {
		args = append(args, f.CampaignID)
		where = append(where, fmt.Sprintf("campaign_id = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, string(f.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}

	query := `SELECT id, action, severity, session_id, kind, campaign_id, line, record_id,
		dedup_key, actor, ip_address, details, created_at FROM import_audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e                AuditEntry
			action, severity string
			kind             string
			line, recordID   sql.NullInt64
			key, actor, ip   sql.NullString
			details          []byte
		)
		if err := rows.Scan(&e.ID, &action, &severity, &e.SessionID, &kind, &e.CampaignID,
			&line, &recordID, &key, &actor, &ip, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("list audit: %w", err)
		}
		e.Action = AuditAction(action)
		e.Severity = AuditSeverity(severity)
		e.Kind = core.Kind(kind)
		e.Line = int(line.Int64)
		e.RecordID = recordID.Int64
		e.Key = key.String
		e.Actor = actor.String
		e.IPAddress = ip.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
