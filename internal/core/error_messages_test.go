package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"missing campaign", fmt.Errorf("%w: 42", ErrScopeNotFound), "IMP001"},
		{"no header", fmt.Errorf("read sheet: %w", ErrNoHeader), "IMP002"},
		{"unknown kind", fmt.Errorf("%w: patients", ErrUnknownKind), "IMP003"},
		{"unknown session", ErrSessionNotFound, "IMP004"},
		{"limiter saturated", ErrTooManySessions, "IMP005"},
		{"second run", ErrSessionStarted, "IMP006"},
		{"pg unique violation", errors.New("ERROR: duplicate key value violates unique constraint"), "DB001"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), "DB002"},
		{"deadlock", errors.New("ERROR: deadlock detected"), "DB005"},
		{"oversized upload", errors.New("http: request body too large"), "FILE001"},
		{"empty sheet", ErrEmptySheet, "FILE005"},
		{"cancelled request", wrappedCanceled(), "REQ001"},
		{"unknown error falls back", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("MapError() returned empty message")
			}
		})
	}
}

func wrappedCanceled() error {
	return fmt.Errorf("import: %w", errors.New("context canceled"))
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(fmt.Errorf("%w: 7", ErrScopeNotFound))
	want := "The campaign for this import does not exist (Code: IMP001). Check the campaign identifier and try again"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if !IsUserFacing(ErrNoHeader) {
		t.Error("ErrNoHeader should be user facing")
	}
	if IsUserFacing(errors.New("segfault")) {
		t.Error("unknown errors should not be user facing")
	}
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
}

func TestUserError_Unwrap(t *testing.T) {
	base := fmt.Errorf("%w: 3", ErrScopeNotFound)
	ue := NewUserError(base)
	if ue.User.Code != "IMP001" {
		t.Errorf("code = %q, want IMP001", ue.User.Code)
	}
	if !errors.Is(ue, ErrScopeNotFound) {
		t.Error("UserError should unwrap to ErrScopeNotFound")
	}
	if NewUserError(nil) != nil {
		t.Error("NewUserError(nil) should be nil")
	}
}
