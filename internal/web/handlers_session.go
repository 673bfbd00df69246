package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/medimport/internal/core"
	"github.com/JonMunkholm/medimport/internal/logging"
	"github.com/JonMunkholm/medimport/internal/store"
	"github.com/JonMunkholm/medimport/internal/telemetry"
)

// DefaultHistoryLimit is the number of sessions listed when no limit is given.
const DefaultHistoryLimit = 20

// eventInterval is the polling period of the event stream.
var eventInterval = 500 * time.Millisecond

// handleGetSession returns the live or stored summary of a session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleHistory lists recent sessions for a campaign.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	campaignID, err := parseCampaignID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	limit := parseIntParam(r, "limit", DefaultHistoryLimit)

	summaries, err := s.service.History(r.Context(), campaignID, limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []*core.ImportSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// handleCancel stops a running session after its current row.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.service.Cancel(sessionID); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID, "status": "cancelling"})
}

// handleRollback soft-deletes the records a finished session created.
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	if s.rollback == nil {
		s.respondError(w, r, errors.New("rollback is not configured"), http.StatusNotImplemented)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if summary, err := s.service.Summary(r.Context(), sessionID); err == nil && running(summary.State) {
		s.respondError(w, r, fmt.Errorf("%w: cancel it before rolling back", core.ErrSessionStarted), http.StatusConflict)
		return
	}

	result, err := s.rollback.RollbackSession(r.Context(), sessionID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	logging.WithFields(r.Context(), "session_id", sessionID).Warn("import rolled back",
		"kind", string(result.Kind),
		"campaign_id", result.CampaignID,
		"records_deleted", result.RecordsDeleted,
	)
	writeJSON(w, http.StatusOK, result)
}

// handleProgress returns session progress. Redis counters are preferred so
// any instance can answer; the in-process summary is the fallback.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if s.progress != nil {
		prog, err := s.progress.Get(r.Context(), sessionID)
		if err == nil {
			writeJSON(w, http.StatusOK, prog)
			return
		}
		if !errors.Is(err, core.ErrSessionNotFound) {
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
	}

	summary, err := s.service.Summary(r.Context(), sessionID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, progressFromSummary(summary))
}

// handleEvents streams progress via Server-Sent Events until the session
// finishes or the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	summary, err := s.service.Summary(r.Context(), sessionID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(eventInterval)
	defer ticker.Stop()

	for {
		if !running(summary.State) {
			writeEvent(w, "done", summary)
			flusher.Flush()
			return
		}
		writeEvent(w, "progress", progressFromSummary(summary))
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		if summary, err = s.service.Summary(r.Context(), sessionID); err != nil {
			writeEvent(w, "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			return
		}
	}
}

func running(state core.SessionState) bool {
	return state == core.StateRunning || state == core.StateNotStarted
}

func writeEvent(w http.ResponseWriter, event string, v interface{}) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func progressFromSummary(s *core.ImportSummary) *telemetry.Progress {
	processed := s.ImportedCount + s.UpdatedCount + s.SkippedCount + s.ErrorCount
	return &telemetry.Progress{
		SessionID: s.SessionID,
		State:     s.State,
		Kind:      s.Kind,
		Scope:     s.Scope,
		TotalRows: s.TotalRows,
		Processed: processed,
		Imported:  s.ImportedCount,
		Updated:   s.UpdatedCount,
		Skipped:   s.SkippedCount,
		Errored:   s.ErrorCount,
		Percent:   core.SuccessRate(processed, s.TotalRows),
	}
}

// handleExportErrors returns the rejected rows of a session as CSV, with
// the messages first and the original cells after.
func (s *Server) handleExportErrors(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	summary, err := s.service.Summary(r.Context(), sessionID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	seen := make(map[string]bool)
	var headers []string
	for _, e := range summary.Errors {
		for h := range e.RawData {
			if !seen[h] {
				seen[h] = true
				headers = append(headers, h)
			}
		}
	}
	sort.Strings(headers)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="import_%s_errors.csv"`, sessionID))

	records := make([][]string, 0, len(summary.Errors)+1)
	records = append(records, append([]string{"ligne", "erreurs"}, headers...))
	for _, e := range summary.Errors {
		rec := []string{strconv.Itoa(e.Row), strings.Join(e.Messages, "; ")}
		for _, h := range headers {
			rec = append(rec, e.RawData[h])
		}
		records = append(records, rec)
	}
	if err := writeCSV(csv.NewWriter(w), records); err != nil {
		logging.FromContext(r.Context()).Error("write error export",
			"session_id", sessionID,
			"error", err,
		)
	}
}

// handleAudit lists the audit trail of a session.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		s.respondError(w, r, errors.New("audit log is not configured"), http.StatusNotImplemented)
		return
	}
	entries, err := s.audit.ListAudit(r.Context(), store.AuditFilter{
		SessionID: chi.URLParam(r, "sessionID"),
		Limit:     parseIntParam(r, "limit", store.DefaultAuditLimit),
		Offset:    parseIntParam(r, "offset", 0),
	})
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleDownloadTemplate returns an empty spreadsheet with one column per
// field of the kind, as CSV (default) or XLSX (?format=xlsx).
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	kind := core.Kind(strings.ToLower(chi.URLParam(r, "kind")))
	schema, err := s.service.Schema(kind)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	headers := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		if len(f.Aliases) > 0 {
			headers = append(headers, f.Aliases[0])
		} else {
			headers = append(headers, string(f.Name))
		}
	}

	if r.URL.Query().Get("format") == "xlsx" {
		data, err := templateWorkbook(schema.Label, headers)
		if err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_template.xlsx"`, kind))
		if _, err := w.Write(data); err != nil {
			logging.FromContext(r.Context()).Warn("write template", "kind", string(kind), "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_template.csv"`, kind))
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := writeCSV(cw, [][]string{headers}); err != nil {
		logging.FromContext(r.Context()).Warn("write template", "kind", string(kind), "error", err)
	}
}

// writeCSV writes records and flushes. Write errors are sticky, so the
// flushed writer's Error covers every record.
func writeCSV(cw *csv.Writer, records [][]string) error {
	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func templateWorkbook(label string, headers []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := label
	if sheetName == "" {
		sheetName = "Import"
	}
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &row); err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
