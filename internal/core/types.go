// Package core provides the business logic for spreadsheet import operations.
// This package has no transport or storage dependencies and can be driven by
// any frontend.
package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind identifies the record shape an import session produces.
type Kind string

const (
	KindBeneficiary Kind = "beneficiary"
	KindParticipant Kind = "participant"
)

// Field is a canonical field name.
type Field string

const (
	LastName  Field = "nom"
	FirstName Field = "prenom"
	Sex       Field = "sexe"
	Phone     Field = "telephone"
	Address   Field = "adresse"
	Email     Field = "email"
	BirthDate Field = "date_naissance"
	IDNumber  Field = "cin"
	Age       Field = "age"
	City      Field = "ville"
	Insured   Field = "assure"
	Status    Field = "statut"
	Notes     Field = "observations"
)

// Sex tokens.
const (
	SexMale   = "M"
	SexFemale = "F"
)

// FieldType represents the declared kind of a canonical field. It selects the
// normalization strategy applied to raw cells.
type FieldType int

const (
	FieldText FieldType = iota
	FieldName
	FieldInteger
	FieldBool
	FieldDate
	FieldSex
	FieldPhone
	FieldEmail
	FieldCode
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldName:
		return "name"
	case FieldInteger:
		return "integer"
	case FieldBool:
		return "boolean"
	case FieldDate:
		return "date"
	case FieldSex:
		return "sex"
	case FieldPhone:
		return "phone"
	case FieldEmail:
		return "email"
	case FieldCode:
		return "code"
	default:
		return "value"
	}
}

// CodeTable maps folded free-text variants to a fixed vocabulary token.
type CodeTable map[string]string

// FieldSpec defines how one canonical field is located, normalized and validated.
type FieldSpec struct {
	Name     Field
	Type     FieldType
	Required bool
	Aliases  []string // Header spellings in priority order

	Pattern     *regexp.Regexp // Format rule applied to the normalized string
	PatternHint string         // Human description of Pattern for messages
	Codes       CodeTable      // FieldCode only
	Min, Max    *int64         // FieldInteger bounds, inclusive

	// Tracked fields are compared against an existing record when the
	// duplicate policy allows updates.
	Tracked bool
}

// Schema describes one record shape.
type Schema struct {
	Kind        Kind
	Label       string
	Fields      []FieldSpec
	KeyFields   []Field // Duplicate key, in order; the scope is always appended
	BucketField Field   // Non-empty when summaries partition records by status
}

// Spec returns the field spec for name.
func (s Schema) Spec(name Field) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// TrackedFields lists the fields compared under the update policy.
func (s Schema) TrackedFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Tracked {
			out = append(out, f.Name)
		}
	}
	return out
}

// Cell is one header/value pair from a source row.
type Cell struct {
	Header string
	Value  string
}

// RawRow is one data line of a sheet. Line is the 1-based line number as the
// user sees it in the original file.
type RawRow struct {
	Line  int
	Cells []Cell
}

// Data returns the row as a header to value map for reports. When a header
// repeats, the first non-empty value wins.
func (r RawRow) Data() map[string]string {
	out := make(map[string]string, len(r.Cells))
	for _, c := range r.Cells {
		if prev, ok := out[c.Header]; ok && prev != "" {
			continue
		}
		out[c.Header] = c.Value
	}
	return out
}

// Sheet is the parsed content of an uploaded spreadsheet.
type Sheet struct {
	Name       string
	Header     []string
	HeaderLine int
	Rows       []RawRow
}

// CanonicalRecord is a validated beneficiary or participant. The scope is
// assigned at construction and cannot change afterwards.
type CanonicalRecord struct {
	Kind      Kind
	scope     int64
	LastName  string
	FirstName string
	Sex       string
	Phone     string
	Address   string
	Email     string
	BirthDate *time.Time
	IDNumber  string
	Age       *int64
	City      string
	Insured   *bool
	Status    string
	Notes     string
}

// NewRecord returns an empty record bound to the given campaign.
func NewRecord(kind Kind, scope int64) CanonicalRecord {
	return CanonicalRecord{Kind: kind, scope: scope}
}

// Scope returns the campaign the record belongs to.
func (r CanonicalRecord) Scope() int64 { return r.scope }

// Get returns the value of a canonical field.
func (r CanonicalRecord) Get(f Field) Value {
	switch f {
	case LastName:
		return Text(r.LastName)
	case FirstName:
		return Text(r.FirstName)
	case Sex:
		return Enum(r.Sex)
	case Phone:
		return Text(r.Phone)
	case Address:
		return Text(r.Address)
	case Email:
		return Text(r.Email)
	case BirthDate:
		if r.BirthDate == nil {
			return Absent()
		}
		return Date(*r.BirthDate)
	case IDNumber:
		return Text(r.IDNumber)
	case Age:
		if r.Age == nil {
			return Absent()
		}
		return Integer(*r.Age)
	case City:
		return Text(r.City)
	case Insured:
		if r.Insured == nil {
			return Absent()
		}
		return Boolean(*r.Insured)
	case Status:
		return Enum(r.Status)
	case Notes:
		return Text(r.Notes)
	}
	return Absent()
}

// Set stores v into field f. Absent values clear the field.
func (r *CanonicalRecord) Set(f Field, v Value) {
	switch f {
	case LastName:
		r.LastName = v.Str()
	case FirstName:
		r.FirstName = v.Str()
	case Sex:
		r.Sex = v.Str()
	case Phone:
		r.Phone = v.Str()
	case Address:
		r.Address = v.Str()
	case Email:
		r.Email = v.Str()
	case BirthDate:
		r.BirthDate = nil
		if t, ok := v.Time(); ok {
			r.BirthDate = &t
		}
	case IDNumber:
		r.IDNumber = v.Str()
	case Age:
		r.Age = nil
		if n, ok := v.Int(); ok {
			r.Age = &n
		}
	case City:
		r.City = v.Str()
	case Insured:
		r.Insured = nil
		if b, ok := v.Bool(); ok {
			r.Insured = &b
		}
	case Status:
		r.Status = v.Str()
	case Notes:
		r.Notes = v.Str()
	}
}

type recordJSON struct {
	Kind      Kind   `json:"kind"`
	Campaign  int64  `json:"campaign_id"`
	LastName  string `json:"nom"`
	FirstName string `json:"prenom"`
	Sex       string `json:"sexe,omitempty"`
	Phone     string `json:"telephone"`
	Address   string `json:"adresse,omitempty"`
	Email     string `json:"email,omitempty"`
	BirthDate string `json:"date_naissance,omitempty"`
	IDNumber  string `json:"cin,omitempty"`
	Age       *int64 `json:"age,omitempty"`
	City      string `json:"ville,omitempty"`
	Insured   *bool  `json:"assure,omitempty"`
	Status    string `json:"statut,omitempty"`
	Notes     string `json:"observations,omitempty"`
}

// MarshalJSON renders the record with canonical field names and the scope.
func (r CanonicalRecord) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Kind:      r.Kind,
		Campaign:  r.scope,
		LastName:  r.LastName,
		FirstName: r.FirstName,
		Sex:       r.Sex,
		Phone:     r.Phone,
		Address:   r.Address,
		Email:     r.Email,
		IDNumber:  r.IDNumber,
		Age:       r.Age,
		City:      r.City,
		Insured:   r.Insured,
		Status:    r.Status,
		Notes:     r.Notes,
	}
	if r.BirthDate != nil {
		out.BirthDate = r.BirthDate.Format(time.DateOnly)
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a record written by MarshalJSON, including its scope.
func (r *CanonicalRecord) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = CanonicalRecord{
		Kind:      in.Kind,
		scope:     in.Campaign,
		LastName:  in.LastName,
		FirstName: in.FirstName,
		Sex:       in.Sex,
		Phone:     in.Phone,
		Address:   in.Address,
		Email:     in.Email,
		IDNumber:  in.IDNumber,
		Age:       in.Age,
		City:      in.City,
		Insured:   in.Insured,
		Status:    in.Status,
		Notes:     in.Notes,
	}
	if in.BirthDate != "" {
		t, err := time.Parse(time.DateOnly, in.BirthDate)
		if err != nil {
			return fmt.Errorf("date_naissance: %w", err)
		}
		r.BirthDate = &t
	}
	return nil
}

// Record is a persisted CanonicalRecord.
type Record struct {
	ID int64
	CanonicalRecord
	CreatedAt time.Time
	UpdatedAt time.Time
}

// KeyPart is one component of a DuplicateKey.
type KeyPart struct {
	Field Field
	Value string
}

// DuplicateKey identifies conflicting records within a campaign.
type DuplicateKey struct {
	Kind  Kind
	Scope int64
	Parts []KeyPart
}

// NewDuplicateKey derives the key for rec from the schema's key fields.
// Values are folded so case and accents do not defeat detection.
func NewDuplicateKey(schema Schema, rec CanonicalRecord) DuplicateKey {
	key := DuplicateKey{Kind: schema.Kind, Scope: rec.Scope()}
	for _, f := range schema.KeyFields {
		key.Parts = append(key.Parts, KeyPart{Field: f, Value: FoldText(rec.Get(f).String())})
	}
	return key
}

// String returns the deterministic form used for indexing and storage.
func (k DuplicateKey) String() string {
	var b strings.Builder
	b.WriteString(string(k.Kind))
	fmt.Fprintf(&b, "|%d", k.Scope)
	for _, p := range k.Parts {
		b.WriteString("|")
		b.WriteString(string(p.Field))
		b.WriteString("=")
		b.WriteString(p.Value)
	}
	return b.String()
}

// Describe returns the key in a form suitable for user-facing warnings.
func (k DuplicateKey) Describe() string {
	parts := make([]string, 0, len(k.Parts))
	for _, p := range k.Parts {
		parts = append(parts, string(p.Field)+"="+p.Value)
	}
	return strings.Join(parts, ", ")
}

// FieldChange records a tracked field that differs from the stored record.
type FieldChange struct {
	Field Field
	Old   Value
	New   Value
}
