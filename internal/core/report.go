package core

import (
	"math"
	"time"
)

// Status tokens used to route participants.
const (
	StatusResponded    = "responded"
	StatusNoResponse   = "no_response"
	StatusNotContacted = "not_contacted"
)

// Buckets partitions committed participants by contact status.
type Buckets struct {
	Responded    []CanonicalRecord `json:"responded"`
	NoResponse   []CanonicalRecord `json:"no_response"`
	NotContacted []CanonicalRecord `json:"not_contacted"`
}

// ImportSummary is the serializable result of a session.
type ImportSummary struct {
	SessionID       string            `json:"session_id"`
	Kind            Kind              `json:"kind"`
	Scope           int64             `json:"campaign_id"`
	FileName        string            `json:"file_name,omitempty"`
	DryRun          bool              `json:"dry_run"`
	Policy          DuplicatePolicy   `json:"duplicate_policy"`
	State           SessionState      `json:"state"`
	TotalRows       int               `json:"total_rows"`
	ImportedCount   int               `json:"imported_count"`
	UpdatedCount    int               `json:"updated_count"`
	SkippedCount    int               `json:"skipped_count"`
	ErrorCount      int               `json:"error_count"`
	UnprocessedRows int               `json:"unprocessed_rows"`
	SuccessRate     float64           `json:"success_rate"`
	HasErrors       bool              `json:"has_errors"`
	HasWarnings     bool              `json:"has_warnings"`
	Errors          []RowError        `json:"errors"`
	Warnings        []string          `json:"warnings"`
	Preview         []CanonicalRecord `json:"preview,omitempty"`
	Buckets         *Buckets          `json:"buckets,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	DurationMS      int64             `json:"duration_ms"`
}

// Cancelled reports whether the session stopped before the last row.
func (s *ImportSummary) Cancelled() bool { return s.State == StateCancelled }

// BuildSummary snapshots a session. It is safe to call while the session is
// running; counts then reflect the rows processed so far.
func BuildSummary(s *Session) *ImportSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.finishedAt
	if end.IsZero() {
		end = s.deps.Clock.Now()
	}

	sum := &ImportSummary{
		SessionID:       s.id,
		Kind:            s.schema.Kind,
		Scope:           s.scope,
		FileName:        s.opts.FileName,
		DryRun:          s.opts.DryRun,
		Policy:          s.opts.Policy,
		State:           s.state,
		TotalRows:       s.total,
		ImportedCount:   s.counts[OutcomeImported],
		UpdatedCount:    s.counts[OutcomeUpdated],
		SkippedCount:    s.counts[OutcomeSkipped],
		ErrorCount:      s.counts[OutcomeErrored],
		UnprocessedRows: s.unprocessed,
		Errors:          append([]RowError{}, s.rowErrors...),
		Warnings:        append([]string{}, s.warnings...),
		StartedAt:       s.startedAt,
	}
	if !s.startedAt.IsZero() {
		sum.DurationMS = end.Sub(s.startedAt).Milliseconds()
	}
	sum.SuccessRate = SuccessRate(sum.ImportedCount, sum.TotalRows)
	sum.HasErrors = sum.ErrorCount > 0
	sum.HasWarnings = len(sum.Warnings) > 0
	if s.opts.DryRun {
		sum.Preview = append([]CanonicalRecord{}, s.preview...)
	}
	if s.schema.BucketField != "" {
		sum.Buckets = Partition(s.committed, s.schema.BucketField)
	}
	return sum
}

// SuccessRate is imported / total * 100 rounded to two decimals, or 0 when
// total is 0.
func SuccessRate(imported, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(imported)/float64(total)*10000) / 100
}

// Partition splits records into status buckets. Records whose status is
// unknown or missing land in NotContacted.
func Partition(records []CanonicalRecord, field Field) *Buckets {
	b := &Buckets{
		Responded:    []CanonicalRecord{},
		NoResponse:   []CanonicalRecord{},
		NotContacted: []CanonicalRecord{},
	}
	for _, r := range records {
		switch r.Get(field).Str() {
		case StatusResponded:
			b.Responded = append(b.Responded, r)
		case StatusNoResponse:
			b.NoResponse = append(b.NoResponse, r)
		default:
			b.NotContacted = append(b.NotContacted, r)
		}
	}
	return b
}
