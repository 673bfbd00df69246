package core

// validation.go enforces the per-field rule table on normalized rows.
//
// Validation is all-or-nothing: any violation rejects the row. Violations are
// accumulated rather than short-circuited so a rejected row reports every
// problem at once:
//  1. Presence: required fields must not be absent
//  2. Format: regex, enum membership and integer ranges
//  3. Cross-field: rules spanning several fields (birth date vs today)

import (
	"fmt"
	"regexp"
	"time"
)

// PhonePattern is the accepted shape of a normalized phone number.
var PhonePattern = regexp.MustCompile(`^0\d{9}$`)

// ViolationKind classifies a validation failure.
type ViolationKind string

const (
	MissingRequiredField ViolationKind = "missing_required_field"
	FormatViolation      ViolationKind = "format_violation"
	CrossFieldViolation  ViolationKind = "cross_field_violation"
)

// Violation is a single rule failure on one field.
type Violation struct {
	Kind    ViolationKind
	Field   Field
	Value   string // The offending normalized value, empty when absent
	Message string
}

func (v Violation) Error() string {
	if v.Field != "" {
		return fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return v.Message
}

// ValidationOutcome is either an accepted record or the list of violations
// that rejected the row at Line.
type ValidationOutcome struct {
	Line       int
	Record     CanonicalRecord
	Violations []Violation
}

// Accepted reports whether the row passed every rule.
func (o ValidationOutcome) Accepted() bool { return len(o.Violations) == 0 }

// Messages renders the violations in rule order.
func (o ValidationOutcome) Messages() []string {
	out := make([]string, len(o.Violations))
	for i, v := range o.Violations {
		out[i] = v.Error()
	}
	return out
}

// RowValidator validates normalized rows against a schema.
type RowValidator struct {
	schema Schema
	clock  Clock
}

// NewRowValidator creates a validator. A nil clock uses the system clock.
func NewRowValidator(schema Schema, clock Clock) *RowValidator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &RowValidator{schema: schema, clock: clock}
}

// Validate applies every rule to values and builds the record on success.
func (v *RowValidator) Validate(line int, scope int64, values map[Field]Value) ValidationOutcome {
	out := ValidationOutcome{Line: line}

	for _, spec := range v.schema.Fields {
		val := values[spec.Name]
		if val.IsAbsent() {
			if spec.Required {
				out.Violations = append(out.Violations, Violation{
					Kind:    MissingRequiredField,
					Field:   spec.Name,
					Message: "required field is missing",
				})
			}
			continue
		}
		if viol, ok := checkFormat(spec, val); !ok {
			out.Violations = append(out.Violations, viol)
		}
	}

	out.Violations = append(out.Violations, v.checkCrossField(values)...)

	if !out.Accepted() {
		return out
	}

	rec := NewRecord(v.schema.Kind, scope)
	for _, spec := range v.schema.Fields {
		rec.Set(spec.Name, values[spec.Name])
	}
	out.Record = rec
	return out
}

// checkFormat validates a present value against its spec.
func checkFormat(spec FieldSpec, val Value) (Violation, bool) {
	bad := func(msg string) (Violation, bool) {
		return Violation{Kind: FormatViolation, Field: spec.Name, Value: val.String(), Message: msg}, false
	}

	switch spec.Type {
	case FieldSex:
		if val.Kind() != ValueEnum || (val.Str() != SexMale && val.Str() != SexFemale) {
			return bad(fmt.Sprintf("must be %s or %s (got %q)", SexMale, SexFemale, val.String()))
		}
	case FieldPhone:
		if !PhonePattern.MatchString(val.String()) {
			return bad(fmt.Sprintf("invalid phone format, expected 10 digits starting with 0 (got %q)", val.String()))
		}
	case FieldInteger:
		n, ok := val.Int()
		if !ok {
			return bad(fmt.Sprintf("must be a whole number (got %q)", val.String()))
		}
		if (spec.Min != nil && n < *spec.Min) || (spec.Max != nil && n > *spec.Max) {
			return bad(fmt.Sprintf("must be between %s and %s (got %d)", bound(spec.Min), bound(spec.Max), n))
		}
	}

	if spec.Pattern != nil && !spec.Pattern.MatchString(val.String()) {
		hint := spec.PatternHint
		if hint == "" {
			hint = spec.Pattern.String()
		}
		return bad(fmt.Sprintf("invalid format, expected %s (got %q)", hint, val.String()))
	}
	return Violation{}, true
}

func (v *RowValidator) checkCrossField(values map[Field]Value) []Violation {
	var out []Violation

	birth, hasBirth := values[BirthDate].Time()
	if !hasBirth {
		return nil
	}

	now := v.clock.Now()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if !birth.Before(today) {
		out = append(out, Violation{
			Kind:    CrossFieldViolation,
			Field:   BirthDate,
			Value:   values[BirthDate].String(),
			Message: "must be before today",
		})
		return out
	}

	if age, ok := values[Age].Int(); ok {
		expected := yearsBetween(birth, today)
		if age < expected-1 || age > expected+1 {
			out = append(out, Violation{
				Kind:    CrossFieldViolation,
				Field:   Age,
				Value:   values[Age].String(),
				Message: fmt.Sprintf("does not match %s (expected about %d)", BirthDate, expected),
			})
		}
	}
	return out
}

// yearsBetween returns the number of whole years from birth to day.
func yearsBetween(birth, day time.Time) int64 {
	years := day.Year() - birth.Year()
	if day.YearDay() < birth.YearDay() {
		years--
	}
	return int64(years)
}

func bound(p *int64) string {
	if p == nil {
		return "any"
	}
	return fmt.Sprint(*p)
}
