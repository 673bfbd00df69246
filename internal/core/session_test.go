package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/medimport/internal/core"
	_ "github.com/JonMunkholm/medimport/internal/core/schemas"
)

// ============================================================================
// Fakes
// ============================================================================

type clock struct{ t time.Time }

func (c clock) Now() time.Time { return c.t }

var now = time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]core.Record
	nextID  int64
	// raceKeys are inserted by "another writer" right before Create.
	raceKeys  map[string]core.CanonicalRecord
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]core.Record), raceKeys: make(map[string]core.CanonicalRecord)}
}

func (s *fakeStore) FindByKey(_ context.Context, key core.DuplicateKey) (core.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key.String()]
	return rec, ok, nil
}

func (s *fakeStore) Create(_ context.Context, rec core.CanonicalRecord, key core.DuplicateKey) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return core.Record{}, s.createErr
	}
	if other, ok := s.raceKeys[key.String()]; ok {
		delete(s.raceKeys, key.String())
		s.nextID++
		s.records[key.String()] = core.Record{ID: s.nextID, CanonicalRecord: other}
	}
	if _, ok := s.records[key.String()]; ok {
		return core.Record{}, fmt.Errorf("insert: %w", core.ErrDuplicateKey)
	}
	s.nextID++
	stored := core.Record{ID: s.nextID, CanonicalRecord: rec, CreatedAt: now, UpdatedAt: now}
	s.records[key.String()] = stored
	return stored, nil
}

func (s *fakeStore) Update(_ context.Context, existing core.Record, changes []core.FieldChange) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := core.ApplyChanges(existing, changes)
	for k, r := range s.records {
		if r.ID == existing.ID {
			s.records[k] = updated
		}
	}
	return updated, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeStore) only(t *testing.T) core.Record {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.records, 1)
	for _, r := range s.records {
		return r
	}
	return core.Record{}
}

type scopes map[int64]bool

func (s scopes) ScopeExists(_ context.Context, id int64) (bool, error) { return s[id], nil }

type failingScopes struct{}

func (failingScopes) ScopeExists(context.Context, int64) (bool, error) {
	return false, errors.New("connection refused")
}

type recorder struct {
	mu     sync.Mutex
	events []core.RowEvent
	starts int
	ends   []*core.ImportSummary
}

func (r *recorder) OnRow(_ context.Context, ev core.RowEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) OnSessionStart(context.Context, string, core.Kind, int64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
}

func (r *recorder) OnSessionEnd(_ context.Context, s *core.ImportSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, s)
}

func rawRow(line int, pairs ...string) core.RawRow {
	r := core.RawRow{Line: line}
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Cells = append(r.Cells, core.Cell{Header: pairs[i], Value: pairs[i+1]})
	}
	return r
}

func alami(line int) core.RawRow {
	return rawRow(line, "Nom", "Alami", "Prénom", "Fatima", "Sexe", "F", "Téléphone", "0612345678", "Adresse", "Rue X")
}

func newSession(t *testing.T, kind core.Kind, store core.RecordStore, opts core.SessionOptions, obs core.Observer) *core.Session {
	t.Helper()
	schema, ok := core.Lookup(kind)
	require.True(t, ok, "schema %s not registered", kind)
	return core.NewSession("test-session", schema, 42, core.SessionDeps{
		Store:    store,
		Scopes:   scopes{42: true},
		Clock:    clock{now},
		Observer: obs,
	}, opts)
}

func assertBalanced(t *testing.T, s *core.ImportSummary) {
	t.Helper()
	assert.Equal(t, s.TotalRows, s.ImportedCount+s.UpdatedCount+s.SkippedCount+s.ErrorCount,
		"imported+updated+skipped+errored must equal total_rows")
}

// ============================================================================
// Scenarios
// ============================================================================

func TestSession_ImportsCompleteRow(t *testing.T) {
	store := newFakeStore()
	s := newSession(t, core.KindBeneficiary, store, core.SessionOptions{}, nil)

	sum, err := s.Run(context.Background(), []core.RawRow{alami(2)})
	require.NoError(t, err)

	assert.Equal(t, core.StateCompleted, sum.State)
	assert.Equal(t, 1, sum.TotalRows)
	assert.Equal(t, 1, sum.ImportedCount)
	assert.Equal(t, float64(100), sum.SuccessRate)
	assert.False(t, sum.HasErrors)
	assertBalanced(t, sum)

	rec := store.only(t)
	assert.Equal(t, "F", rec.Sex)
	assert.Equal(t, "Alami", rec.LastName)
	assert.Equal(t, "Fatima", rec.FirstName)
	assert.Equal(t, "0612345678", rec.Phone)
	assert.Equal(t, "Rue X", rec.Address)
	assert.Equal(t, int64(42), rec.Scope())
}

func TestSession_SecondRunSkipsDuplicate(t *testing.T) {
	store := newFakeStore()

	first, err := newSession(t, core.KindBeneficiary, store, core.SessionOptions{}, nil).
		Run(context.Background(), []core.RawRow{alami(2)})
	require.NoError(t, err)
	require.Equal(t, 1, first.ImportedCount)

	second, err := newSession(t, core.KindBeneficiary, store, core.SessionOptions{Policy: core.PolicySkip}, nil).
		Run(context.Background(), []core.RawRow{alami(2)})
	require.NoError(t, err)

	assert.Equal(t, 0, second.ImportedCount)
	assert.Equal(t, 1, second.SkippedCount)
	require.Len(t, second.Warnings, 1)
	assert.Contains(t, second.Warnings[0], "0612345678")
	assert.True(t, second.HasWarnings)
	assert.Equal(t, 1, store.count())
	assertBalanced(t, second)
}

func TestSession_BadPhoneIsErrored(t *testing.T) {
	store := newFakeStore()
	s := newSession(t, core.KindBeneficiary, store, core.SessionOptions{}, nil)

	bad := rawRow(7, "Nom", "Alami", "Prénom", "Fatima", "Sexe", "F", "Téléphone", "123", "Adresse", "Rue X")
	sum, err := s.Run(context.Background(), []core.RawRow{bad})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.ErrorCount)
	require.Len(t, sum.Errors, 1)
	assert.Equal(t, 7, sum.Errors[0].Row)
	assert.Contains(t, sum.Errors[0].Messages[0], "invalid phone format")
	assert.Equal(t, "123", sum.Errors[0].RawData["Téléphone"])
	assert.Equal(t, 0, store.count())
	assertBalanced(t, sum)
}

func TestSession_PhoneWithoutDigitsIsFormatError(t *testing.T) {
	store := newFakeStore()
	s := newSession(t, core.KindBeneficiary, store, core.SessionOptions{}, nil)

	bad := rawRow(4, "Nom", "Alami", "Prénom", "Fatima", "Sexe", "F", "Téléphone", "N/A", "Adresse", "Rue X")
	sum, err := s.Run(context.Background(), []core.RawRow{bad})
	require.NoError(t, err)

	require.Len(t, sum.Errors, 1)
	require.Len(t, sum.Errors[0].Messages, 1)
	assert.Equal(t, `telephone: invalid phone format, expected 10 digits starting with 0 (got "N/A")`, sum.Errors[0].Messages[0])
	assert.NotContains(t, sum.Errors[0].Messages[0], "missing")
	assertBalanced(t, sum)
}

func TestSession_DryRunLeavesStoreUnchanged(t *testing.T) {
	store := newFakeStore()
	s := newSession(t, core.KindBeneficiary, store, core.SessionOptions{DryRun: true}, nil)

	sum, err := s.Run(context.Background(), []core.RawRow{alami(2)})
	require.NoError(t, err)

	assert.True(t, sum.DryRun)
	assert.Equal(t, 1, sum.ImportedCount)
	require.Len(t, sum.Preview, 1)
	assert.Equal(t, "Alami", sum.Preview[0].LastName)
	assert.Equal(t, 0, store.count())
}

func TestSession_SexSpelledOut(t *testing.T) {
	store := newFakeStore()
	s := newSession(t, core.KindBeneficiary, store, core.SessionOptions{}, nil)

	r := rawRow(2, "Nom", "Alami", "Prénom", "Karim", "Sexe", "Homme", "Téléphone", "0612345678", "Adresse", "Rue X")
	sum, err := s.Run(context.Background(), []core.RawRow{r})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.ImportedCount)
	assert.Equal(t, "M", store.only(t).Sex)
}

func TestSession_ReportsEveryViolation(t *testing.T) {
	s := newSession(t, core.KindBeneficiary, newFakeStore(), core.SessionOptions{}, nil)

	r := rawRow(3, "Prénom", "Fatima", "Sexe", "?", "Téléphone", "0612", "Adresse", "Rue X")
	sum, err := s.Run(context.Background(), []core.RawRow{r})
	require.NoError(t, err)

	require.Len(t, sum.Errors, 1)
	msgs := sum.Errors[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "nom: required field is missing", msgs[0])
	assert.Contains(t, msgs[1], "sexe:")
	assert.Contains(t, msgs[2], "telephone:")
}

// ============================================================================
// Properties
// ============================================================================

func TestSession_RoundTrip(t *testing.T) {
	store := newFakeStore()
	s := newSession(t, core.KindParticipant, store, core.SessionOptions{}, nil)

	r := rawRow(2,
		"NOM", "  el   idrissi ",
		"prenom", "SALMA",
		"GSM", "6 12 34 56 78",
		"E-mail", "Salma@Example.com",
		"Date de naissance", "33140",
		"Age", "36",
		"Assuré", "oui",
		"Statut", "Répondu",
	)
	sum, err := s.Run(context.Background(), []core.RawRow{r})
	require.NoError(t, err)
	require.Equal(t, 1, sum.ImportedCount, "errors: %+v", sum.Errors)

	rec := store.only(t)
	assert.Equal(t, "El Idrissi", rec.LastName)
	assert.Equal(t, "Salma", rec.FirstName)
	assert.Equal(t, "0612345678", rec.Phone)
	assert.Equal(t, "salma@example.com", rec.Email)
	require.NotNil(t, rec.BirthDate)
	assert.Equal(t, "1990-09-24", rec.BirthDate.Format(time.DateOnly))
	require.NotNil(t, rec.Age)
	assert.Equal(t, int64(36), *rec.Age)
	require.NotNil(t, rec.Insured)
	assert.True(t, *rec.Insured)
	assert.Equal(t, core.StatusResponded, rec.Status)
}

func TestSession_IdempotentRerun(t *testing.T) {
	store := newFakeStore()
	rows := []core.RawRow{
		alami(2),
		rawRow(3, "Nom", "Bennani", "Prénom", "Omar", "Sexe", "M", "Téléphone", "0698765432", "Adresse", "Rue Y"),
	}

	first, err := newSession(t, core.KindBeneficiary, store, core.SessionOptions{}, nil).Run(context.Background(), rows)
	require.NoError(t, err)
	require.Equal(t, 2, first.ImportedCount)

	for _, policy := range []core.DuplicatePolicy{core.PolicySkip, core.PolicyUpdate} {
		again, err := newSession(t, core.KindBeneficiary, store, core.SessionOptions{Policy: policy}, nil).Run(context.Background(), rows)
		require.NoError(t, err)
		assert.Equal(t, 0, again.ImportedCount, "policy %s", policy)
		assert.Equal(t, 2, again.SkippedCount+again.UpdatedCount, "policy %s", policy)
		assertBalanced(t, again)
	}
	assert.Equal(t, 2, store.count())
}

func TestSession_UpdatePolicyChangesTrackedField(t *testing.T) {
	store := newFakeStore()
	withStatus := func(status string) core.RawRow {
		return rawRow(2, "Nom", "Alami", "Prénom", "Fatima", "Sexe", "F", "Téléphone", "0612345678", "Adresse", "Rue X", "Décision", status)
	}

	_, err := newSession(t, core.KindBeneficiary, store, core.SessionOptions{}, nil).
		Run(context.Background(), []core.RawRow{withStatus("en attente")})
	require.NoError(t, err)
	assert.Equal(t, "pending", store.only(t).Status)

	sum, err := newSession(t, core.KindBeneficiary, store, core.SessionOptions{Policy: core.PolicyUpdate}, nil).
		Run(context.Background(), []core.RawRow{withStatus("Accepté")})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.UpdatedCount)
	assert.Equal(t, "accepted", store.only(t).Status)
}

func TestSession_DuplicateWithinFile(t *testing.T) {
	for _, dry := range []bool{false, true} {
		store := newFakeStore()
		sum, err := newSession(t, core.KindBeneficiary, store, core.SessionOptions{DryRun: dry}, nil).
			Run(context.Background(), []core.RawRow{alami(2), alami(3)})
		require.NoError(t, err)
		assert.Equal(t, 1, sum.ImportedCount, "dry_run=%v", dry)
		assert.Equal(t, 1, sum.SkippedCount, "dry_run=%v", dry)
		require.Len(t, sum.Warnings, 1)
		assert.Contains(t, sum.Warnings[0], "row 3:")
		if dry {
			assert.Equal(t, 0, store.count())
		} else {
			assert.Equal(t, 1, store.count())
		}
	}
}

func TestSession_DryRunMatchesCommit(t *testing.T) {
	rows := []core.RawRow{
		alami(2),
		alami(3),
		rawRow(4, "Nom", "X", "Téléphone", "1"),
		rawRow(5, "Nom", "Bennani", "Prénom", "Omar", "Sexe", "M", "Téléphone", "0698765432", "Adresse", "Rue Y"),
	}

	dry, err := newSession(t, core.KindBeneficiary, newFakeStore(), core.SessionOptions{DryRun: true}, nil).Run(context.Background(), rows)
	require.NoError(t, err)
	committed, err := newSession(t, core.KindBeneficiary, newFakeStore(), core.SessionOptions{}, nil).Run(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, committed.ImportedCount, dry.ImportedCount)
	assert.Equal(t, committed.SkippedCount, dry.SkippedCount)
	assert.Equal(t, committed.ErrorCount, dry.ErrorCount)
	assert.Equal(t, committed.Warnings, dry.Warnings)
	assert.Empty(t, committed.Preview)
}

func TestSession_LateDuplicateFromConcurrentWriter(t *testing.T) {
	store := newFakeStore()
	schema, _ := core.Lookup(core.KindBeneficiary)
	other := core.NewRecord(core.KindBeneficiary, 42)
	other.Set(core.Phone, core.Text("0612345678"))
	store.raceKeys[core.NewDuplicateKey(schema, other).String()] = other

	sum, err := newSession(t, core.KindBeneficiary, store, core.SessionOptions{}, nil).
		Run(context.Background(), []core.RawRow{alami(2)})
	require.NoError(t, err)

	assert.Equal(t, 0, sum.ImportedCount)
	assert.Equal(t, 1, sum.SkippedCount)
	assert.Equal(t, 0, sum.ErrorCount)
	assertBalanced(t, sum)
}

func TestSession_PersistenceFailureIsPerRow(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("connection reset by peer")

	sum, err := newSession(t, core.KindBeneficiary, store, core.SessionOptions{}, nil).
		Run(context.Background(), []core.RawRow{alami(2)})
	require.NoError(t, err)

	assert.Equal(t, core.StateCompleted, sum.State)
	require.Equal(t, 1, sum.ErrorCount)
	assert.Contains(t, sum.Errors[0].Messages[0], "persistence failure")
	assertBalanced(t, sum)
}

func TestSession_ParticipantBuckets(t *testing.T) {
	rows := []core.RawRow{
		rawRow(2, "Nom", "A", "Prénom", "A", "Téléphone", "0600000001", "Statut", "Répondu"),
		rawRow(3, "Nom", "B", "Prénom", "B", "Téléphone", "0600000002", "Statut", "injoignable"),
		rawRow(4, "Nom", "C", "Prénom", "C", "Téléphone", "0600000003"),
		rawRow(5, "Nom", "D", "Prénom", "D", "Téléphone", "0600000004", "Statut", "rappeler demain"),
	}
	sum, err := newSession(t, core.KindParticipant, newFakeStore(), core.SessionOptions{DryRun: true}, nil).Run(context.Background(), rows)
	require.NoError(t, err)

	require.NotNil(t, sum.Buckets)
	assert.Len(t, sum.Buckets.Responded, 1)
	assert.Len(t, sum.Buckets.NoResponse, 1)
	assert.Len(t, sum.Buckets.NotContacted, 2)
}

func TestSession_BeneficiaryHasNoBuckets(t *testing.T) {
	sum, err := newSession(t, core.KindBeneficiary, newFakeStore(), core.SessionOptions{}, nil).
		Run(context.Background(), []core.RawRow{alami(2)})
	require.NoError(t, err)
	assert.Nil(t, sum.Buckets)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestSession_MissingCampaignFails(t *testing.T) {
	schema, _ := core.Lookup(core.KindBeneficiary)
	store := newFakeStore()
	s := core.NewSession("s", schema, 99, core.SessionDeps{Store: store, Scopes: scopes{42: true}, Clock: clock{now}}, core.SessionOptions{})

	sum, err := s.Run(context.Background(), []core.RawRow{alami(2)})
	assert.Nil(t, sum)
	assert.ErrorIs(t, err, core.ErrScopeNotFound)
	assert.Equal(t, core.StateFailed, s.State())
	assert.Equal(t, 0, store.count())
}

func TestSession_ScopeCheckErrorFails(t *testing.T) {
	schema, _ := core.Lookup(core.KindBeneficiary)
	s := core.NewSession("s", schema, 42, core.SessionDeps{Store: newFakeStore(), Scopes: failingScopes{}, Clock: clock{now}}, core.SessionOptions{})

	_, err := s.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "check campaign 42")
	assert.Equal(t, core.StateFailed, s.State())
}

func TestSession_RunTwice(t *testing.T) {
	s := newSession(t, core.KindBeneficiary, newFakeStore(), core.SessionOptions{}, nil)
	_, err := s.Run(context.Background(), nil)
	require.NoError(t, err)
	_, err = s.Run(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrSessionStarted)
}

func TestSession_EmptyInput(t *testing.T) {
	sum, err := newSession(t, core.KindBeneficiary, newFakeStore(), core.SessionOptions{}, nil).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, sum.State)
	assert.Equal(t, 0, sum.TotalRows)
	assert.Equal(t, float64(0), sum.SuccessRate)
}

func TestSession_CancelStopsAfterCurrentRow(t *testing.T) {
	store := newFakeStore()
	rows := make([]core.RawRow, 10)
	for i := range rows {
		rows[i] = rawRow(i+2, "Nom", "N", "Prénom", "P", "Sexe", "F", "Téléphone", fmt.Sprintf("06000000%02d", i), "Adresse", "A")
	}

	var s *core.Session
	stopAfter := 3
	obs := core.ObserverFunc(func(_ context.Context, ev core.RowEvent) {
		if ev.Line == stopAfter+1 {
			s.Cancel()
		}
	})
	s = newSession(t, core.KindBeneficiary, store, core.SessionOptions{}, obs)

	sum, err := s.Run(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, core.StateCancelled, sum.State)
	assert.True(t, sum.Cancelled())
	assert.Equal(t, stopAfter, sum.TotalRows)
	assert.Equal(t, len(rows)-stopAfter, sum.UnprocessedRows)
	assert.Equal(t, stopAfter, store.count())
	assertBalanced(t, sum)
}

func TestSession_EmitsOneEventPerRow(t *testing.T) {
	rec := &recorder{}
	rows := []core.RawRow{alami(2), alami(3), rawRow(4, "Nom", "X")}
	ctx := core.ContextWithActor(core.ContextWithClientIP(context.Background(), "10.0.0.1"), "agent-7")

	_, err := newSession(t, core.KindBeneficiary, newFakeStore(), core.SessionOptions{}, rec).Run(ctx, rows)
	require.NoError(t, err)

	require.Len(t, rec.events, 3)
	assert.Equal(t, core.OutcomeImported, rec.events[0].Outcome)
	assert.Equal(t, core.OutcomeSkipped, rec.events[1].Outcome)
	assert.Equal(t, core.OutcomeErrored, rec.events[2].Outcome)
	assert.NotZero(t, rec.events[0].RecordID)
	assert.Equal(t, "agent-7", rec.events[0].Actor)
	assert.Equal(t, "10.0.0.1", rec.events[0].ClientIP)
	assert.Equal(t, 1, rec.starts)
	require.Len(t, rec.ends, 1)
	assert.Equal(t, 3, rec.ends[0].TotalRows)
}

func TestSession_RowsCommitInSourceOrder(t *testing.T) {
	rec := &recorder{}
	rows := make([]core.RawRow, 50)
	for i := range rows {
		rows[i] = rawRow(i+2, "Nom", "N", "Prénom", "P", "Sexe", "M", "Téléphone", fmt.Sprintf("07000000%02d", i), "Adresse", "A")
	}

	_, err := newSession(t, core.KindBeneficiary, newFakeStore(), core.SessionOptions{Workers: 8}, rec).Run(context.Background(), rows)
	require.NoError(t, err)

	require.Len(t, rec.events, len(rows))
	for i, ev := range rec.events {
		assert.Equal(t, i+2, ev.Line)
	}
}
