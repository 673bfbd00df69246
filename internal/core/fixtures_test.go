package core

import (
	"context"
	"time"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, time.October, 19, 9, 30, 0, 0, time.UTC)

var (
	testMinAge int64 = 0
	testMaxAge int64 = 120
)

// testSchema is a small participant-like schema used by package tests.
func testSchema() Schema {
	return Schema{
		Kind:  "contact",
		Label: "Contacts",
		Fields: []FieldSpec{
			{Name: LastName, Type: FieldName, Required: true, Aliases: []string{"nom", "last name"}},
			{Name: Phone, Type: FieldPhone, Required: true, Aliases: []string{"telephone", "gsm"}},
			{Name: Sex, Type: FieldSex, Aliases: []string{"sexe", "genre"}},
			{Name: BirthDate, Type: FieldDate, Aliases: []string{"date de naissance"}},
			{Name: Age, Type: FieldInteger, Aliases: []string{"age"}, Min: &testMinAge, Max: &testMaxAge},
			{Name: Email, Type: FieldEmail, Aliases: []string{"email"}},
			{
				Name:    Status,
				Type:    FieldCode,
				Aliases: []string{"statut"},
				Codes: NewCodeTable(map[string][]string{
					StatusResponded:    {"repondu"},
					StatusNoResponse:   {"pas de reponse"},
					StatusNotContacted: {"non contacte"},
				}),
				Tracked: true,
			},
		},
		KeyFields:   []Field{Phone},
		BucketField: Status,
	}
}

func row(line int, pairs ...string) RawRow {
	r := RawRow{Line: line}
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Cells = append(r.Cells, Cell{Header: pairs[i], Value: pairs[i+1]})
	}
	return r
}

// memStore is a RecordStore backed by a map.
type memStore struct {
	byKey   map[string]Record
	nextID  int64
	creates int
	updates int
}

func newMemStore() *memStore {
	return &memStore{byKey: make(map[string]Record)}
}

func (m *memStore) FindByKey(_ context.Context, key DuplicateKey) (Record, bool, error) {
	rec, ok := m.byKey[key.String()]
	return rec, ok, nil
}

func (m *memStore) Create(_ context.Context, rec CanonicalRecord, key DuplicateKey) (Record, error) {
	if _, ok := m.byKey[key.String()]; ok {
		return Record{}, ErrDuplicateKey
	}
	m.nextID++
	m.creates++
	stored := Record{ID: m.nextID, CanonicalRecord: rec, CreatedAt: testNow, UpdatedAt: testNow}
	m.byKey[key.String()] = stored
	return stored, nil
}

func (m *memStore) Update(_ context.Context, existing Record, changes []FieldChange) (Record, error) {
	m.updates++
	updated := ApplyChanges(existing, changes)
	updated.UpdatedAt = testNow
	for k, r := range m.byKey {
		if r.ID == existing.ID {
			m.byKey[k] = updated
		}
	}
	return updated, nil
}
