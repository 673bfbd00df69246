package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/medimport/internal/core"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// FindByKey returns the live record carrying key.
func (s *Store) FindByKey(ctx context.Context, key core.DuplicateKey) (core.Record, bool, error) {
	table, err := tableFor(key.Kind)
	if err != nil {
		return core.Record{}, false, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE campaign_id = $1 AND dedup_key = $2 AND deleted_at IS NULL`, recordColumns, table)

	rec, err := scanRecord(s.db.QueryRow(ctx, query, key.Scope, key.String()), key.Kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Record{}, false, nil
	}
	if err != nil {
		return core.Record{}, false, fmt.Errorf("find %s: %w", table, err)
	}
	return rec, true, nil
}

// Create inserts rec. A unique violation on (campaign_id, dedup_key) is
// reported as core.ErrDuplicateKey.
func (s *Store) Create(ctx context.Context, rec core.CanonicalRecord, key core.DuplicateKey) (core.Record, error) {
	table, err := tableFor(rec.Kind)
	if err != nil {
		return core.Record{}, err
	}

	query := fmt.Sprintf(`INSERT INTO %s (
		campaign_id, last_name, first_name, sex, phone, address, email,
		birth_date, id_number, age, city, insured, status, notes, dedup_key
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	RETURNING %s`, table, recordColumns)

	row := s.db.QueryRow(ctx, query,
		rec.Scope(),
		rec.LastName,
		rec.FirstName,
		toPgText(rec.Sex),
		rec.Phone,
		toPgText(rec.Address),
		toPgText(rec.Email),
		toPgDate(rec.BirthDate),
		toPgText(rec.IDNumber),
		toPgInt4(rec.Age),
		toPgText(rec.City),
		toPgBool(rec.Insured),
		toPgText(rec.Status),
		toPgText(rec.Notes),
		key.String(),
	)

	created, err := scanRecord(row, rec.Kind)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return core.Record{}, fmt.Errorf("insert %s: %w: %s", table, core.ErrDuplicateKey, key.Describe())
		}
		return core.Record{}, fmt.Errorf("insert %s: %w", table, err)
	}
	return created, nil
}

// Update writes the new value of every change and bumps updated_at.
func (s *Store) Update(ctx context.Context, existing core.Record, changes []core.FieldChange) (core.Record, error) {
	table, err := tableFor(existing.Kind)
	if err != nil {
		return core.Record{}, err
	}
	if len(changes) == 0 {
		return existing, nil
	}

	sets := make([]string, 0, len(changes)+1)
	args := make([]interface{}, 0, len(changes)+1)
	for _, c := range changes {
		col, ok := columns[c.Field]
		if !ok {
			return core.Record{}, fmt.Errorf("update %s: unknown field %q", table, c.Field)
		}
		args = append(args, valueArg(c.New))
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, existing.ID)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d AND deleted_at IS NULL RETURNING %s`,
		table, strings.Join(sets, ", "), len(args), recordColumns)

	updated, err := scanRecord(s.db.QueryRow(ctx, query, args...), existing.Kind)
	if err != nil {
		return core.Record{}, fmt.Errorf("update %s %d: %w", table, existing.ID, err)
	}
	return updated, nil
}

// ScopeExists reports whether the campaign exists.
func (s *Store) ScopeExists(ctx context.Context, scope int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, scope).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check campaign %d: %w", scope, err)
	}
	return exists, nil
}

// CreateCampaign inserts a campaign and returns its id.
func (s *Store) CreateCampaign(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO campaigns (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create campaign: %w", err)
	}
	return id, nil
}

// CountRecords returns the number of live records of kind in a campaign.
func (s *Store) CountRecords(ctx context.Context, kind core.Kind, scope int64) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE campaign_id = $1 AND deleted_at IS NULL`, table)
	if err := s.db.QueryRow(ctx, query, scope).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func scanRecord(row pgx.Row, kind core.Kind) (core.Record, error) {
	var (
		id, campaign         int64
		lastName, firstName  string
		sex, address, email  pgtype.Text
		phone                string
		birthDate            pgtype.Date
		idNumber, city       pgtype.Text
		age                  pgtype.Int4
		insured              pgtype.Bool
		status, notes        pgtype.Text
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &campaign, &lastName, &firstName, &sex, &phone, &address, &email,
		&birthDate, &idNumber, &age, &city, &insured, &status, &notes, &createdAt, &updatedAt,
	)
	if err != nil {
		return core.Record{}, err
	}

	rec := core.NewRecord(kind, campaign)
	rec.LastName = lastName
	rec.FirstName = firstName
	rec.Sex = fromPgText(sex)
	rec.Phone = phone
	rec.Address = fromPgText(address)
	rec.Email = fromPgText(email)
	rec.IDNumber = fromPgText(idNumber)
	rec.City = fromPgText(city)
	rec.Status = fromPgText(status)
	rec.Notes = fromPgText(notes)
	if birthDate.Valid {
		t := birthDate.Time.UTC()
		rec.BirthDate = &t
	}
	if age.Valid {
		n := int64(age.Int32)
		rec.Age = &n
	}
	if insured.Valid {
		b := insured.Bool
		rec.Insured = &b
	}

	return core.Record{
		ID:              id,
		CanonicalRecord: rec,
		CreatedAt:       createdAt.Time,
		UpdatedAt:       updatedAt.Time,
	}, nil
}

// valueArg converts a normalized value to a query argument.
func valueArg(v core.Value) interface{} {
	switch v.Kind() {
	case core.ValueText, core.ValueEnum:
		return v.Str()
	case core.ValueInteger:
		n, _ := v.Int()
		return n
	case core.ValueBoolean:
		b, _ := v.Bool()
		return b
	case core.ValueDate:
		t, _ := v.Time()
		return pgtype.Date{Time: t, Valid: true}
	default:
		return nil
	}
}

// ============================================================================
// pgtype conversions
// ============================================================================

func toPgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func fromPgText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

func toPgDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func toPgInt4(n *int64) pgtype.Int4 {
	if n == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*n), Valid: true}
}

func toPgBool(b *bool) pgtype.Bool {
	if b == nil {
		return pgtype.Bool{}
	}
	return pgtype.Bool{Bool: *b, Valid: true}
}
