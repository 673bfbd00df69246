package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/medimport/internal/core"
	"github.com/JonMunkholm/medimport/internal/logging"
	"github.com/JonMunkholm/medimport/internal/sheet"
)

// maxFormMemory is the part of a multipart upload kept in memory; the rest
// spills to temporary files.
const maxFormMemory = 8 << 20

// AcceptedResponse is returned for asynchronous imports.
type AcceptedResponse struct {
	SessionID string `json:"session_id"`
	StatusURL string `json:"status_url"`
}

// handleImport runs an import from a multipart upload ("file") or an S3
// object ("s3_uri"). Options come from form or query values:
//
//	dry_run=true   validate and report without writing
//	policy=update  update tracked fields of existing records
//	async=true     return 202 with a session id instead of waiting
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	campaignID, err := parseCampaignID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	kind := core.Kind(strings.ToLower(chi.URLParam(r, "kind")))
	if _, ok := core.Lookup(kind); !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", core.ErrUnknownKind, kind), http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, fmt.Errorf("file too large: %w", err), http.StatusRequestEntityTooLarge)
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			s.respondError(w, r, fmt.Errorf("invalid spreadsheet form: %w", err), http.StatusBadRequest)
			return
		}
	}

	dryRun, err := parseBoolValue(r, "dry_run")
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	async, err := parseBoolValue(r, "async")
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	var policy core.DuplicatePolicy
	if raw := r.FormValue("policy"); raw != "" {
		if policy, err = core.ParseDuplicatePolicy(raw); err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
	}

	source, fileName, cleanup, err := s.openSource(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	defer cleanup()

	req := core.ImportRequest{
		Kind:     kind,
		Scope:    campaignID,
		Source:   source,
		FileName: fileName,
		DryRun:   dryRun,
		Policy:   policy,
	}

	logger := logging.WithFields(r.Context(),
		"kind", string(kind),
		"campaign_id", campaignID,
		"file", fileName,
		"dry_run", dryRun,
	)

	if async {
		sessionID, err := s.service.Start(r.Context(), req)
		if err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
		logger.Info("import accepted", "session_id", sessionID)
		writeJSON(w, http.StatusAccepted, AcceptedResponse{
			SessionID: sessionID,
			StatusURL: "/api/imports/" + sessionID,
		})
		return
	}

	summary, err := s.service.Import(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	logger.Info("import finished",
		"session_id", summary.SessionID,
		"imported", summary.ImportedCount,
		"errors", summary.ErrorCount,
	)
	writeJSON(w, http.StatusOK, summary)
}

// openSource returns the sheet reader for the request and a cleanup func.
func (s *Server) openSource(r *http.Request) (core.SheetReader, string, func(), error) {
	noop := func() {}

	if uri := strings.TrimSpace(r.FormValue("s3_uri")); uri != "" {
		if s.objects == nil {
			return nil, "", noop, errors.New("unsupported file source: S3 is not configured")
		}
		data, name, err := s.objects.Fetch(r.Context(), uri)
		if err != nil {
			return nil, "", noop, err
		}
		src, err := sheet.Open(name, bytes.NewReader(data))
		return src, name, noop, err
	}

	if r.MultipartForm == nil {
		return nil, "", noop, errors.New("no file provided")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", noop, errors.New("no file provided")
	}
	cleanup := func() {
		file.Close()
		r.MultipartForm.RemoveAll()
	}

	src, err := sheet.Open(header.Filename, file)
	if err != nil {
		cleanup()
		return nil, "", noop, err
	}
	return src, header.Filename, cleanup, nil
}

// handleListKinds describes the registered import kinds and their columns.
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	type fieldInfo struct {
		Name     core.Field `json:"name"`
		Type     string     `json:"type"`
		Required bool       `json:"required"`
		Aliases  []string   `json:"aliases"`
	}
	type kindInfo struct {
		Kind      core.Kind    `json:"kind"`
		Label     string       `json:"label"`
		KeyFields []core.Field `json:"key_fields"`
		Fields    []fieldInfo  `json:"fields"`
	}

	out := make([]kindInfo, 0, core.SchemaCount())
	for _, k := range core.Kinds() {
		schema, err := s.service.Schema(k)
		if err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		info := kindInfo{Kind: k, Label: schema.Label, KeyFields: schema.KeyFields}
		for _, f := range schema.Fields {
			info.Fields = append(info.Fields, fieldInfo{
				Name:     f.Name,
				Type:     f.Type.String(),
				Required: f.Required,
				Aliases:  f.Aliases,
			})
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHealth reports liveness and commit slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"imports": s.service.LimiterStatus(),
	})
}

func parseCampaignID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "campaignID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid campaign id %q", raw)
	}
	return id, nil
}

// parseBoolValue reads a form or query flag. Missing means false.
func parseBoolValue(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q", name, raw)
	}
	return b, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
