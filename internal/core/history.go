package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryHistory is a HistoryStore kept in process memory. It backs the CLI
// and tests; the server uses the Postgres store.
type MemoryHistory struct {
	mu        sync.RWMutex
	summaries map[string]*ImportSummary
}

// NewMemoryHistory returns an empty MemoryHistory.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{summaries: make(map[string]*ImportSummary)}
}

func (h *MemoryHistory) SaveSummary(_ context.Context, summary *ImportSummary) error {
	if summary == nil || summary.SessionID == "" {
		return fmt.Errorf("save summary: missing session id")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *summary
	h.summaries[summary.SessionID] = &cp
	return nil
}

func (h *MemoryHistory) GetSummary(_ context.Context, sessionID string) (*ImportSummary, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.summaries[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	cp := *s
	return &cp, nil
}

// ListSummaries returns up to limit summaries for scope, newest first.
// A non-positive limit returns all of them.
func (h *MemoryHistory) ListSummaries(_ context.Context, scope int64, limit int) ([]*ImportSummary, error) {
	h.mu.RLock()
	var out []*ImportSummary
	for _, s := range h.summaries {
		if s.Scope == scope {
			cp := *s
			out = append(out, &cp)
		}
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
