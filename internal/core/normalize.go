package core

// normalize.go coerces raw cell strings into typed Values.
//
// Each FieldType has one strategy. Strategies never fail: input they cannot
// interpret either passes through as text (so the validator can report it)
// or becomes absent when the field is optional metadata.

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultMobilePrefixes lists the leading digits of 9-digit national mobile
// numbers that lost their leading zero in a spreadsheet.
const DefaultMobilePrefixes = "67"

var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

var nonDigit = regexp.MustCompile(`\D`)

var sexTokens = foldTable(map[string][]string{
	SexMale:   {"m", "h", "homme", "male", "masculin", "monsieur", "mr", "garcon", "ذكر"},
	SexFemale: {"f", "femme", "female", "feminin", "féminin", "madame", "mme", "mlle", "fille", "أنثى"},
})

var boolTokens = map[string]bool{
	"oui": true, "yes": true, "true": true, "vrai": true, "1": true, "o": true, "y": true, "x": true, "t": true,
	"non": false, "no": false, "false": false, "faux": false, "0": false, "n": false, "f": false,
}

// foldTable inverts a token -> spellings table into folded spelling -> token.
func foldTable(in map[string][]string) CodeTable {
	out := make(CodeTable)
	for token, spellings := range in {
		for _, s := range spellings {
			out[FoldText(s)] = token
		}
		out[FoldText(token)] = token
	}
	return out
}

// NewCodeTable builds a CodeTable from a token -> accepted spellings map.
func NewCodeTable(in map[string][]string) CodeTable { return foldTable(in) }

// Normalizer applies per-type normalization strategies.
type Normalizer struct {
	mobilePrefixes string
	clock          Clock
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithMobilePrefixes overrides the leading digits that identify a 9-digit
// mobile number.
func WithMobilePrefixes(prefixes string) NormalizerOption {
	return func(n *Normalizer) {
		if prefixes != "" {
			n.mobilePrefixes = prefixes
		}
	}
}

// WithNormalizerClock sets the clock used for two-digit year pivots.
func WithNormalizerClock(c Clock) NormalizerOption {
	return func(n *Normalizer) {
		if c != nil {
			n.clock = c
		}
	}
}

// NewNormalizer returns a Normalizer with default settings.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{mobilePrefixes: DefaultMobilePrefixes, clock: SystemClock{}}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NormalizeRow normalizes every resolved cell of a row.
func (n *Normalizer) NormalizeRow(schema Schema, raw map[Field]string) map[Field]Value {
	out := make(map[Field]Value, len(schema.Fields))
	for _, spec := range schema.Fields {
		s, ok := raw[spec.Name]
		if !ok {
			out[spec.Name] = Absent()
			continue
		}
		out[spec.Name] = n.Normalize(spec, s)
	}
	return out
}

// Normalize converts one raw cell according to spec.Type.
func (n *Normalizer) Normalize(spec FieldSpec, raw string) Value {
	raw = CleanCell(raw)
	if raw == "" {
		return Absent()
	}

	switch spec.Type {
	case FieldSex:
		return NormalizeSex(raw)
	case FieldPhone:
		if p := NormalizePhone(raw, n.mobilePrefixes); p != "" {
			return Text(p)
		}
		// No digits at all: keep the text so the format check reports it.
		return Text(CollapseSpaces(raw))
	case FieldEmail:
		return NormalizeEmail(raw)
	case FieldDate:
		if t, ok := ParseDate(raw, n.clock.Now()); ok {
			return Date(t)
		}
		return Absent()
	case FieldBool:
		return NormalizeBool(raw)
	case FieldCode:
		return NormalizeCode(spec.Codes, raw)
	case FieldInteger:
		return NormalizeInteger(raw)
	case FieldName:
		return Text(NormalizeName(raw))
	default:
		return Text(CollapseSpaces(raw))
	}
}

// NormalizeSex maps spellings of male/female to M or F. Unknown tokens are
// returned as text.
func NormalizeSex(raw string) Value {
	if tok, ok := sexTokens[FoldText(raw)]; ok {
		return Enum(tok)
	}
	return Text(CollapseSpaces(raw))
}

// NormalizePhone strips everything but digits and restores the leading zero
// of 9-digit mobile numbers. Other lengths are returned as digits only.
func NormalizePhone(raw, mobilePrefixes string) string {
	digits := nonDigit.ReplaceAllString(raw, "")
	if len(digits) == 9 && strings.ContainsRune(mobilePrefixes, rune(digits[0])) {
		return "0" + digits
	}
	return digits
}

// NormalizeEmail lower-cases raw and drops it when it is not an address.
func NormalizeEmail(raw string) Value {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !emailRegex.MatchString(email) {
		return Absent()
	}
	return Text(email)
}

// NormalizeBool maps yes/no style tokens. Unknown tokens are absent.
func NormalizeBool(raw string) Value {
	if b, ok := boolTokens[FoldText(raw)]; ok {
		return Boolean(b)
	}
	return Absent()
}

// NormalizeCode maps free-text variants to a vocabulary token. Values with no
// matching alias fall back to the lower-cased raw token.
func NormalizeCode(codes CodeTable, raw string) Value {
	if tok, ok := codes[FoldText(raw)]; ok {
		return Enum(tok)
	}
	return Enum(strings.ToLower(CollapseSpaces(raw)))
}

// NormalizeInteger accepts "42" and "42.0". Anything else is returned as text.
func NormalizeInteger(raw string) Value {
	s := strings.ReplaceAll(raw, " ", "")
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Integer(i)
	}
	if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil && f == float64(int64(f)) {
		return Integer(int64(f))
	}
	return Text(CollapseSpaces(raw))
}

// NormalizeName collapses whitespace and title-cases each word.
func NormalizeName(raw string) string {
	return cases.Title(language.French).String(CollapseSpaces(raw))
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }
