package core

// session.go drives one import batch from raw rows to a summary.
//
// Processing happens in two stages:
//  1. Resolve, normalize and validate every row. These steps are pure and
//     run in parallel across a bounded worker pool.
//  2. Duplicate detection and commit. This stage runs on a single goroutine
//     in source order so lookup-then-insert never races within a session;
//     an optional KeyLocker extends that guarantee across processes.
//
// A failing row never stops the session. Only a missing campaign (or a
// failure to check for it) aborts, before any row is touched.

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// SessionState is the lifecycle state of an import session.
type SessionState string

const (
	StateNotStarted SessionState = "not_started"
	StateRunning    SessionState = "running"
	StateCompleted  SessionState = "completed"
	StateFailed     SessionState = "failed"
	StateCancelled  SessionState = "cancelled"
)

// RowOutcome is the terminal classification of a row.
type RowOutcome string

const (
	OutcomeImported RowOutcome = "imported"
	OutcomeUpdated  RowOutcome = "updated"
	OutcomeSkipped  RowOutcome = "skipped"
	OutcomeErrored  RowOutcome = "errored"
)

// SessionOptions controls how a session processes rows.
type SessionOptions struct {
	DryRun         bool
	Policy         DuplicatePolicy
	Workers        int    // Stage 1 parallelism, defaults to GOMAXPROCS
	MobilePrefixes string // See WithMobilePrefixes
	FileName       string
}

// SessionDeps are the collaborators a session talks to.
type SessionDeps struct {
	Store    RecordStore  // Required
	Scopes   ScopeChecker // Required
	Clock    Clock
	Locker   KeyLocker // Optional, commit mode only
	Observer Observer  // Optional
}

// RowError describes a rejected row in user terms.
type RowError struct {
	Row      int               `json:"row"`
	Messages []string          `json:"messages"`
	RawData  map[string]string `json:"raw_data"`
}

// Session is a single import batch. It is not reusable.
type Session struct {
	id     string
	schema Schema
	scope  int64
	opts   SessionOptions
	deps   SessionDeps

	resolver   *Resolver
	normalizer *Normalizer
	validator  *RowValidator
	detector   *DuplicateDetector

	mu          sync.Mutex
	state       SessionState
	cancel      context.CancelFunc
	stopAsked   bool
	startedAt   time.Time
	finishedAt  time.Time
	total       int
	unprocessed int
	counts      map[RowOutcome]int
	rowErrors   []RowError
	warnings    []string
	preview     []CanonicalRecord
	committed   []CanonicalRecord
	failure     error
}

// NewSession prepares a session for schema bound to campaign scope.
func NewSession(id string, schema Schema, scope int64, deps SessionDeps, opts SessionOptions) *Session {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if opts.Policy == "" {
		opts.Policy = PolicySkip
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Session{
		id:         id,
		schema:     schema,
		scope:      scope,
		opts:       opts,
		deps:       deps,
		resolver:   NewResolver(schema),
		normalizer: NewNormalizer(WithMobilePrefixes(opts.MobilePrefixes), WithNormalizerClock(deps.Clock)),
		validator:  NewRowValidator(schema, deps.Clock),
		detector:   NewDuplicateDetector(deps.Store, schema, opts.Policy),
		state:      StateNotStarted,
		counts:     make(map[RowOutcome]int, 4),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resolver exposes the session's column resolver, used by sheet readers to
// detect the header row.
func (s *Session) Resolver() *Resolver { return s.resolver }

// Cancel asks a running session to stop after the row in flight.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.stopAsked = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run processes rows and returns the summary. The returned error is non-nil
// only when the session could not start: the campaign is missing, the scope
// check failed, or Run was already called.
func (s *Session) Run(ctx context.Context, rows []RawRow) (*ImportSummary, error) {
	s.mu.Lock()
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return nil, ErrSessionStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateRunning
	s.startedAt = s.deps.Clock.Now()
	if s.stopAsked {
		cancel()
	}
	s.mu.Unlock()
	defer cancel()

	if err := s.checkScope(ctx); err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.failure = err
		s.finishedAt = s.deps.Clock.Now()
		s.mu.Unlock()
		return nil, err
	}

	observer := s.deps.Observer
	if so, ok := observer.(SessionObserver); ok {
		so.OnSessionStart(ctx, s.id, s.schema.Kind, s.scope, len(rows))
	}

	outcomes := s.prepare(ctx, rows)

	cancelled := false
	for i, row := range rows {
		if ctx.Err() != nil {
			s.mu.Lock()
			s.unprocessed = len(rows) - i
			s.mu.Unlock()
			cancelled = true
			break
		}
		// The row in flight completes even if cancellation arrives mid-commit.
		s.commitRow(context.WithoutCancel(ctx), row, outcomes[i])
	}

	s.mu.Lock()
	s.state = StateCompleted
	if cancelled {
		s.state = StateCancelled
	}
	s.finishedAt = s.deps.Clock.Now()
	s.mu.Unlock()

	summary := BuildSummary(s)
	if so, ok := observer.(SessionObserver); ok {
		so.OnSessionEnd(context.WithoutCancel(ctx), summary)
	}
	return summary, nil
}

func (s *Session) checkScope(ctx context.Context) error {
	exists, err := s.deps.Scopes.ScopeExists(ctx, s.scope)
	if err != nil {
		return fmt.Errorf("check campaign %d: %w", s.scope, err)
	}
	if !exists {
		return fmt.Errorf("%w: %d", ErrScopeNotFound, s.scope)
	}
	return nil
}

// prepare runs stage 1 for every row. Rows skipped because of cancellation
// keep a zero outcome; the commit loop never reaches them.
func (s *Session) prepare(ctx context.Context, rows []RawRow) []ValidationOutcome {
	outcomes := make([]ValidationOutcome, len(rows))

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i := range rows {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			resolved := s.resolver.Resolve(rows[i])
			values := s.normalizer.NormalizeRow(s.schema, resolved)
			outcomes[i] = s.validator.Validate(rows[i].Line, s.scope, values)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// commitRow runs stage 2 for one row and records exactly one outcome.
func (s *Session) commitRow(ctx context.Context, row RawRow, outcome ValidationOutcome) {
	s.mu.Lock()
	s.total++
	s.mu.Unlock()

	if !outcome.Accepted() {
		s.recordError(ctx, row, "", outcome.Messages())
		return
	}

	rec := outcome.Record
	key := NewDuplicateKey(s.schema, rec)

	if s.deps.Locker != nil && !s.opts.DryRun {
		unlock, err := s.deps.Locker.Lock(ctx, key.String())
		if err != nil {
			s.recordError(ctx, row, key.String(), []string{fmt.Sprintf("%v: lock %s: %v", ErrPersistence, key.Describe(), err)})
			return
		}
		defer unlock()
	}

	decision, err := s.detector.Check(ctx, rec, key)
	if err != nil {
		s.recordError(ctx, row, key.String(), []string{fmt.Sprintf("%v: %v", ErrPersistence, err)})
		return
	}
	s.apply(ctx, row, rec, key, decision, false)
}

func (s *Session) apply(ctx context.Context, row RawRow, rec CanonicalRecord, key DuplicateKey, decision Decision, late bool) {
	switch decision.Outcome {
	case OutcomeSkipped:
		s.mu.Lock()
		s.counts[OutcomeSkipped]++
		s.warnings = append(s.warnings, fmt.Sprintf("row %d: %s", row.Line, decision.Warning))
		s.mu.Unlock()
		s.emit(ctx, row, OutcomeSkipped, key.String(), decision.Existing.ID, []string{decision.Warning})

	case OutcomeUpdated:
		merged := ApplyChanges(*decision.Existing, decision.Changes)
		if !s.opts.DryRun {
			stored, err := s.deps.Store.Update(ctx, *decision.Existing, decision.Changes)
			if err != nil {
				s.recordError(ctx, row, key.String(), []string{fmt.Sprintf("%v: update: %v", ErrPersistence, err)})
				return
			}
			merged = stored
		}
		s.detector.Remember(key, merged)
		s.mu.Lock()
		s.counts[OutcomeUpdated]++
		s.committed = append(s.committed, merged.CanonicalRecord)
		if s.opts.DryRun {
			s.preview = append(s.preview, merged.CanonicalRecord)
		}
		s.mu.Unlock()
		s.emit(ctx, row, OutcomeUpdated, key.String(), merged.ID, nil)

	case OutcomeImported:
		stored := Record{CanonicalRecord: rec}
		if !s.opts.DryRun {
			var err error
			stored, err = s.deps.Store.Create(ctx, rec, key)
			if errors.Is(err, ErrDuplicateKey) && !late {
				s.applyLateDuplicate(ctx, row, rec, key)
				return
			}
			if err != nil {
				s.recordError(ctx, row, key.String(), []string{fmt.Sprintf("%v: create: %v", ErrPersistence, err)})
				return
			}
		}
		s.detector.Remember(key, stored)
		s.mu.Lock()
		s.counts[OutcomeImported]++
		s.committed = append(s.committed, stored.CanonicalRecord)
		if s.opts.DryRun {
			s.preview = append(s.preview, rec)
		}
		s.mu.Unlock()
		s.emit(ctx, row, OutcomeImported, key.String(), stored.ID, nil)
	}
}

// applyLateDuplicate handles a uniqueness violation raised by the store
// after the detector saw no match: another writer inserted the key first.
func (s *Session) applyLateDuplicate(ctx context.Context, row RawRow, rec CanonicalRecord, key DuplicateKey) {
	decision, err := s.detector.CheckStore(ctx, rec, key)
	if err != nil {
		s.recordError(ctx, row, key.String(), []string{fmt.Sprintf("%v: %v", ErrPersistence, err)})
		return
	}
	if decision.Outcome == OutcomeImported {
		s.recordError(ctx, row, key.String(), []string{fmt.Sprintf("%v: %s rejected by the store but not found", ErrPersistence, key.Describe())})
		return
	}
	s.apply(ctx, row, rec, key, decision, true)
}

func (s *Session) recordError(ctx context.Context, row RawRow, key string, messages []string) {
	s.mu.Lock()
	s.counts[OutcomeErrored]++
	s.rowErrors = append(s.rowErrors, RowError{Row: row.Line, Messages: messages, RawData: row.Data()})
	s.mu.Unlock()
	s.emit(ctx, row, OutcomeErrored, key, 0, messages)
}

func (s *Session) emit(ctx context.Context, row RawRow, outcome RowOutcome, key string, recordID int64, messages []string) {
	if s.deps.Observer == nil {
		return
	}
	s.deps.Observer.OnRow(ctx, RowEvent{
		SessionID: s.id,
		Kind:      s.schema.Kind,
		Scope:     s.scope,
		Line:      row.Line,
		Outcome:   outcome,
		DryRun:    s.opts.DryRun,
		RecordID:  recordID,
		Key:       key,
		Messages:  messages,
		Actor:     ActorFromContext(ctx),
		ClientIP:  ClientIPFromContext(ctx),
		At:        s.deps.Clock.Now(),
	})
}
