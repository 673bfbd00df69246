package core

import (
	"context"
	"fmt"
	"strings"
)

// DuplicatePolicy selects what happens when an accepted row matches an
// existing record.
type DuplicatePolicy string

const (
	// PolicySkip leaves the existing record untouched.
	PolicySkip DuplicatePolicy = "skip"
	// PolicyUpdate copies changed tracked fields onto the existing record.
	PolicyUpdate DuplicatePolicy = "update"
)

// ParseDuplicatePolicy validates a policy name. Empty means skip.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyUpdate:
		return PolicyUpdate, nil
	}
	return "", fmt.Errorf("invalid duplicate policy %q (use skip or update)", s)
}

// Decision is the duplicate detector's verdict on one record.
type Decision struct {
	Outcome  RowOutcome
	Existing *Record
	Changes  []FieldChange
	Warning  string
}

// DuplicateDetector checks records against the store and against records
// already handled earlier in the same session, so repeated rows in one file
// and dry-runs behave like a real commit would.
type DuplicateDetector struct {
	store   RecordStore
	policy  DuplicatePolicy
	tracked []Field
	seen    map[string]Record
}

// NewDuplicateDetector creates a detector for one session.
func NewDuplicateDetector(store RecordStore, schema Schema, policy DuplicatePolicy) *DuplicateDetector {
	if policy == "" {
		policy = PolicySkip
	}
	return &DuplicateDetector{
		store:   store,
		policy:  policy,
		tracked: schema.TrackedFields(),
		seen:    make(map[string]Record),
	}
}

// Check decides the outcome for rec. The in-session index is consulted
// before the store.
func (d *DuplicateDetector) Check(ctx context.Context, rec CanonicalRecord, key DuplicateKey) (Decision, error) {
	if existing, ok := d.seen[key.String()]; ok {
		return d.decide(rec, existing, key), nil
	}
	return d.CheckStore(ctx, rec, key)
}

// CheckStore decides the outcome for rec from the store alone. It is used to
// reinterpret a uniqueness violation raised at commit time.
func (d *DuplicateDetector) CheckStore(ctx context.Context, rec CanonicalRecord, key DuplicateKey) (Decision, error) {
	existing, found, err := d.store.FindByKey(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("find by key %s: %w", key.Describe(), err)
	}
	if !found {
		return Decision{Outcome: OutcomeImported}, nil
	}
	return d.decide(rec, existing, key), nil
}

// Remember records the committed state of key for the rest of the session.
func (d *DuplicateDetector) Remember(key DuplicateKey, rec Record) {
	d.seen[key.String()] = rec
}

func (d *DuplicateDetector) decide(rec CanonicalRecord, existing Record, key DuplicateKey) Decision {
	if d.policy == PolicySkip {
		return Decision{
			Outcome:  OutcomeSkipped,
			Existing: &existing,
			Warning:  fmt.Sprintf("duplicate skipped: %s already exists", key.Describe()),
		}
	}

	changes := TrackedChanges(existing.CanonicalRecord, rec, d.tracked)
	if len(changes) == 0 {
		return Decision{
			Outcome:  OutcomeSkipped,
			Existing: &existing,
			Warning:  fmt.Sprintf("duplicate unchanged: %s is already up to date", key.Describe()),
		}
	}
	return Decision{Outcome: OutcomeUpdated, Existing: &existing, Changes: changes}
}

// TrackedChanges lists the tracked fields whose incoming value differs from
// the existing one. Absent incoming values never clear stored data.
func TrackedChanges(existing, incoming CanonicalRecord, tracked []Field) []FieldChange {
	var out []FieldChange
	for _, f := range tracked {
		next := incoming.Get(f)
		if next.IsAbsent() {
			continue
		}
		prev := existing.Get(f)
		if !prev.Equal(next) {
			out = append(out, FieldChange{Field: f, Old: prev, New: next})
		}
	}
	return out
}

// ApplyChanges returns a copy of rec with changes applied.
func ApplyChanges(rec Record, changes []FieldChange) Record {
	for _, c := range changes {
		rec.Set(c.Field, c.New)
	}
	return rec
}
