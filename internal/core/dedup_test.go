package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contact(phone, status string) CanonicalRecord {
	rec := NewRecord("contact", 1)
	rec.Set(LastName, Text("Dupont"))
	rec.Set(Phone, Text(phone))
	rec.Set(Status, Enum(status))
	return rec
}

func TestParseDuplicatePolicy(t *testing.T) {
	for in, want := range map[string]DuplicatePolicy{"": PolicySkip, "skip": PolicySkip, " UPDATE ": PolicyUpdate} {
		got, err := ParseDuplicatePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDuplicatePolicy("merge")
	assert.EqualError(t, err, `invalid duplicate policy "merge" (use skip or update)`)
}

func TestDuplicateDetector_NoMatchImports(t *testing.T) {
	d := NewDuplicateDetector(newMemStore(), testSchema(), PolicySkip)
	rec := contact("0612345678", "")
	dec, err := d.Check(context.Background(), rec, NewDuplicateKey(testSchema(), rec))
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, dec.Outcome)
	assert.Nil(t, dec.Existing)
}

func TestDuplicateDetector_SkipPolicy(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	existing := contact("0612345678", StatusNoResponse)
	key := NewDuplicateKey(testSchema(), existing)
	_, err := store.Create(ctx, existing, key)
	require.NoError(t, err)

	d := NewDuplicateDetector(store, testSchema(), PolicySkip)
	dec, err := d.Check(ctx, contact("0612345678", StatusResponded), key)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, dec.Outcome)
	assert.Equal(t, "duplicate skipped: telephone=0612345678 already exists", dec.Warning)
	require.NotNil(t, dec.Existing)
	assert.Equal(t, int64(1), dec.Existing.ID)
}

func TestDuplicateDetector_UpdatePolicy(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	existing := contact("0612345678", StatusNoResponse)
	key := NewDuplicateKey(testSchema(), existing)
	_, err := store.Create(ctx, existing, key)
	require.NoError(t, err)

	d := NewDuplicateDetector(store, testSchema(), PolicyUpdate)

	changed, err := d.Check(ctx, contact("0612345678", StatusResponded), key)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, changed.Outcome)
	require.Len(t, changed.Changes, 1)
	assert.Equal(t, Status, changed.Changes[0].Field)
	assert.Equal(t, StatusNoResponse, changed.Changes[0].Old.Str())
	assert.Equal(t, StatusResponded, changed.Changes[0].New.Str())

	same, err := d.Check(ctx, contact("0612345678", StatusNoResponse), key)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, same.Outcome)
	assert.Equal(t, "duplicate unchanged: telephone=0612345678 is already up to date", same.Warning)
}

func TestDuplicateDetector_SessionIndexWinsOverStore(t *testing.T) {
	store := newMemStore()
	d := NewDuplicateDetector(store, testSchema(), PolicySkip)
	rec := contact("0612345678", "")
	key := NewDuplicateKey(testSchema(), rec)

	d.Remember(key, Record{CanonicalRecord: rec})

	dec, err := d.Check(context.Background(), rec, key)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, dec.Outcome)

	fromStore, err := d.CheckStore(context.Background(), rec, key)
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, fromStore.Outcome)
}

func TestTrackedChanges_AbsentNeverClears(t *testing.T) {
	existing := contact("0612345678", StatusResponded)
	incoming := contact("0612345678", "")
	assert.Empty(t, TrackedChanges(existing, incoming, []Field{Status}))
}

func TestApplyChanges(t *testing.T) {
	rec := Record{ID: 3, CanonicalRecord: contact("0612345678", StatusNoResponse)}
	out := ApplyChanges(rec, []FieldChange{{Field: Status, Old: Enum(StatusNoResponse), New: Enum(StatusResponded)}})
	assert.Equal(t, StatusResponded, out.Status)
	assert.Equal(t, int64(3), out.ID)
	assert.Equal(t, StatusNoResponse, rec.Status, "input is not modified")
}
