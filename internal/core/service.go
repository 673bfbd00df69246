package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTimeout bounds a single import session.
const DefaultSessionTimeout = 10 * time.Minute

// sessionRetention is how long a finished session stays addressable in
// memory after completion.
var sessionRetention = 5 * time.Minute

// ServiceConfig tunes the import service.
type ServiceConfig struct {
	MaxConcurrent  int
	MaxWaitTime    time.Duration
	Timeout        time.Duration
	Workers        int
	DefaultPolicy  DuplicatePolicy
	MobilePrefixes string
	Aliases        AliasOverrides
}

// ServiceDeps are the collaborators shared by every session.
type ServiceDeps struct {
	Store    RecordStore
	Scopes   ScopeChecker
	History  HistoryStore // Optional
	Locker   KeyLocker    // Optional
	Observer Observer     // Optional
	Clock    Clock
	Logger   *slog.Logger
}

// ImportRequest describes one import.
type ImportRequest struct {
	Kind     Kind
	Scope    int64
	Source   SheetReader
	FileName string
	DryRun   bool
	Policy   DuplicatePolicy // Empty uses the service default
}

// Service runs import sessions and keeps track of the ones in flight.
type Service struct {
	deps    ServiceDeps
	cfg     ServiceConfig
	limiter *SessionLimiter
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*trackedSession
}

type trackedSession struct {
	session *Session
	done    chan struct{}
	summary *ImportSummary
	err     error
}

// NewService creates a Service. Store and Scopes are required.
func NewService(deps ServiceDeps, cfg ServiceConfig) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("import service: record store is required")
	}
	if deps.Scopes == nil {
		return nil, errors.New("import service: scope checker is required")
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = PolicySkip
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		deps:     deps,
		cfg:      cfg,
		limiter:  NewSessionLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		logger:   logger,
		sessions: make(map[string]*trackedSession),
	}, nil
}

// Import runs a session to completion and returns its summary.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*ImportSummary, error) {
	tracked, sheet, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if !req.DryRun {
		if err := s.limiter.Acquire(ctx); err != nil {
			s.forget(tracked.session.ID())
			return nil, err
		}
		defer s.limiter.Release()
	}
	s.run(ctx, tracked, sheet)
	return tracked.summary, tracked.err
}

// Start launches a session in the background and returns its id. The sheet
// is read before Start returns so the caller may close its source.
func (s *Service) Start(ctx context.Context, req ImportRequest) (string, error) {
	tracked, sheet, err := s.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	if !req.DryRun {
		if err := s.limiter.Acquire(ctx); err != nil {
			s.forget(tracked.session.ID())
			return "", err
		}
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		if !req.DryRun {
			defer s.limiter.Release()
		}
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in import session",
					"session_id", tracked.session.ID(),
					"kind", string(req.Kind),
					"panic", r,
				)
				tracked.err = fmt.Errorf("internal error: %v", r)
				close(tracked.done)
			}
		}()
		s.run(bg, tracked, sheet)
	}()

	return tracked.session.ID(), nil
}

// Schema returns the registered schema for kind with the configured alias
// overrides applied.
func (s *Service) Schema(kind Kind) (Schema, error) {
	schema, ok := Lookup(kind)
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return s.cfg.Aliases.Apply(schema)
}

func (s *Service) prepare(ctx context.Context, req ImportRequest) (*trackedSession, *Sheet, error) {
	schema, err := s.Schema(req.Kind)
	if err != nil {
		return nil, nil, err
	}
	if req.Source == nil {
		return nil, nil, errors.New("no file provided")
	}

	policy := req.Policy
	if policy == "" {
		policy = s.cfg.DefaultPolicy
	}

	session := NewSession(uuid.NewString(), schema, req.Scope, SessionDeps{
		Store:    s.deps.Store,
		Scopes:   s.deps.Scopes,
		Clock:    s.deps.Clock,
		Locker:   s.deps.Locker,
		Observer: s.deps.Observer,
	}, SessionOptions{
		DryRun:         req.DryRun,
		Policy:         policy,
		Workers:        s.cfg.Workers,
		MobilePrefixes: s.cfg.MobilePrefixes,
		FileName:       req.FileName,
	})

	sheet, err := req.Source.ReadSheet(ctx, session.Resolver().IsHeader)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", req.FileName, err)
	}

	tracked := &trackedSession{session: session, done: make(chan struct{})}
	s.mu.Lock()
	s.sessions[session.ID()] = tracked
	s.mu.Unlock()
	return tracked, sheet, nil
}

func (s *Service) run(ctx context.Context, tracked *trackedSession, sheet *Sheet) {
	defer s.cleanup(tracked.session.ID(), sessionRetention)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	summary, err := tracked.session.Run(ctx, sheet.Rows)
	if err != nil {
		s.logger.Warn("import session failed",
			"session_id", tracked.session.ID(),
			"error", err,
		)
	}
	if summary != nil && s.deps.History != nil {
		if herr := s.deps.History.SaveSummary(context.WithoutCancel(ctx), summary); herr != nil {
			s.logger.Error("save import summary",
				"session_id", summary.SessionID,
				"error", herr,
			)
		}
	}

	tracked.summary = summary
	tracked.err = err
	close(tracked.done)
}

// Wait blocks until the session finishes and returns its outcome.
func (s *Service) Wait(ctx context.Context, sessionID string) (*ImportSummary, error) {
	s.mu.RLock()
	tracked, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return s.Summary(ctx, sessionID)
	}

	select {
	case <-tracked.done:
		return tracked.summary, tracked.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Summary returns a live snapshot for a running session, or the stored
// summary of a finished one.
func (s *Service) Summary(ctx context.Context, sessionID string) (*ImportSummary, error) {
	s.mu.RLock()
	tracked, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		select {
		case <-tracked.done:
			if tracked.err != nil {
				return nil, tracked.err
			}
			return tracked.summary, nil
		default:
			return BuildSummary(tracked.session), nil
		}
	}

	if s.deps.History == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s.deps.History.GetSummary(ctx, sessionID)
}

// History lists recent summaries for a campaign, newest first.
func (s *Service) History(ctx context.Context, scope int64, limit int) ([]*ImportSummary, error) {
	if s.deps.History == nil {
		return nil, nil
	}
	return s.deps.History.ListSummaries(ctx, scope, limit)
}

// Cancel stops a running session after its current row.
func (s *Service) Cancel(sessionID string) error {
	s.mu.RLock()
	tracked, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	tracked.session.Cancel()
	return nil
}

// WaitForSessions blocks until every committing session has finished.
func (s *Service) WaitForSessions(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// LimiterStatus reports commit slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

func (s *Service) forget(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *Service) cleanup(sessionID string, delay time.Duration) {
	time.AfterFunc(delay, func() { s.forget(sessionID) })
}
