package core

import (
	"strconv"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueAbsent ValueKind = iota
	ValueText
	ValueInteger
	ValueBoolean
	ValueDate
	ValueEnum
)

func (k ValueKind) String() string {
	switch k {
	case ValueText:
		return "text"
	case ValueInteger:
		return "integer"
	case ValueBoolean:
		return "boolean"
	case ValueDate:
		return "date"
	case ValueEnum:
		return "enum"
	default:
		return "absent"
	}
}

// Value is a normalized cell. Exactly one variant is populated, selected by
// Kind. The zero Value is absent.
type Value struct {
	kind ValueKind
	str  string
	num  int64
	flag bool
	date time.Time
}

// Absent returns the empty value.
func Absent() Value { return Value{} }

// Text returns a free-text value. Empty strings are absent.
func Text(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{kind: ValueText, str: s}
}

// Integer returns an integer value.
func Integer(n int64) Value { return Value{kind: ValueInteger, num: n} }

// Boolean returns a boolean value.
func Boolean(b bool) Value { return Value{kind: ValueBoolean, flag: b} }

// Date returns a calendar date. The time of day is dropped and the
// location is forced to UTC so equal days compare equal.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: ValueDate, date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Enum returns a vocabulary token such as "M" or "accepted".
func Enum(token string) Value {
	if token == "" {
		return Value{}
	}
	return Value{kind: ValueEnum, str: token}
}

// Kind reports which variant is populated.
func (v Value) Kind() ValueKind { return v.kind }

// IsAbsent reports whether v carries no value.
func (v Value) IsAbsent() bool { return v.kind == ValueAbsent }

// Str returns the text or enum token. Other kinds return "".
func (v Value) Str() string {
	if v.kind == ValueText || v.kind == ValueEnum {
		return v.str
	}
	return ""
}

// Int returns the integer payload.
func (v Value) Int() (int64, bool) { return v.num, v.kind == ValueInteger }

// Bool returns the boolean payload.
func (v Value) Bool() (bool, bool) { return v.flag, v.kind == ValueBoolean }

// Time returns the date payload.
func (v Value) Time() (time.Time, bool) { return v.date, v.kind == ValueDate }

// String renders the value for messages and reports.
func (v Value) String() string {
	switch v.kind {
	case ValueText, ValueEnum:
		return v.str
	case ValueInteger:
		return strconv.FormatInt(v.num, 10)
	case ValueBoolean:
		if v.flag {
			return "true"
		}
		return "false"
	case ValueDate:
		return v.date.Format(time.DateOnly)
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueText, ValueEnum:
		return v.str == o.str
	case ValueInteger:
		return v.num == o.num
	case ValueBoolean:
		return v.flag == o.flag
	case ValueDate:
		return v.date.Equal(o.date)
	default:
		return true
	}
}
