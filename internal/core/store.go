package core

import (
	"context"
)

// RecordStore persists canonical records. Implementations must enforce a
// uniqueness constraint on the duplicate key; it is the authoritative guard
// against concurrent inserts.
type RecordStore interface {
	// FindByKey returns the non-deleted record with key, if any.
	FindByKey(ctx context.Context, key DuplicateKey) (Record, bool, error)

	// Create inserts rec. It returns ErrDuplicateKey (wrapped) when the
	// uniqueness constraint fires.
	Create(ctx context.Context, rec CanonicalRecord, key DuplicateKey) (Record, error)

	// Update applies changes to an existing record.
	Update(ctx context.Context, existing Record, changes []FieldChange) (Record, error)
}

// ScopeChecker verifies that the parent campaign of an import exists.
type ScopeChecker interface {
	ScopeExists(ctx context.Context, scope int64) (bool, error)
}

// SheetReader produces the rows of an uploaded spreadsheet. isHeader is
// used to locate the header row among leading title or blank lines.
type SheetReader interface {
	ReadSheet(ctx context.Context, isHeader func([]string) bool) (*Sheet, error)
}

// KeyLocker serializes lookup-then-insert for one duplicate key across
// processes. The returned function releases the lock.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// HistoryStore keeps finished session summaries.
type HistoryStore interface {
	SaveSummary(ctx context.Context, summary *ImportSummary) error
	GetSummary(ctx context.Context, sessionID string) (*ImportSummary, error)
	ListSummaries(ctx context.Context, scope int64, limit int) ([]*ImportSummary, error)
}
