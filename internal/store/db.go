// Package store is the Postgres persistence layer for imported records,
// campaigns, session history and the import audit trail.
package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/medimport/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements core.RecordStore, core.ScopeChecker and core.HistoryStore.
type Store struct {
	db DBTX
}

var (
	_ core.RecordStore  = (*Store)(nil)
	_ core.ScopeChecker = (*Store)(nil)
	_ core.HistoryStore = (*Store)(nil)
)

// New wraps db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables and indexes if they are missing.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// tableFor returns the record table for kind.
func tableFor(kind core.Kind) (string, error) {
	switch kind {
	case core.KindBeneficiary:
		return "beneficiaries", nil
	case core.KindParticipant:
		return "participants", nil
	default:
		return "", fmt.Errorf("%w: %s", core.ErrUnknownKind, kind)
	}
}

// columns maps canonical fields to record table columns.
var columns = map[core.Field]string{
	core.LastName:  "last_name",
	core.FirstName: "first_name",
	core.Sex:       "sex",
	core.Phone:     "phone",
	core.Address:   "address",
	core.Email:     "email",
	core.BirthDate: "birth_date",
	core.IDNumber:  "id_number",
	core.Age:       "age",
	core.City:      "city",
	core.Insured:   "insured",
	core.Status:    "status",
	core.Notes:     "notes",
}

const recordColumns = `id, campaign_id, last_name, first_name, sex, phone, address, email,
	birth_date, id_number, age, city, insured, status, notes, created_at, updated_at`
