package core

// error_messages.go maps technical errors to user-facing messages with a
// support code.
//
// # Error Codes Reference
//
// Import errors (IMP001-IMP099):
//
//	IMP001 - Campaign not found. Patterns: "campaign does not exist"
//	IMP002 - Header row not found. Patterns: "header row not found"
//	IMP003 - Unknown import kind. Patterns: "unknown import kind"
//	IMP004 - Session not found. Patterns: "import session not found"
//	IMP005 - System busy. Patterns: "too many import sessions"
//	IMP006 - Session already started. Patterns: "already started"
//	IMP007 - Invalid duplicate policy. Patterns: "invalid duplicate policy"
//
// Database errors (DB001-DB099):
//
//	DB001 - Duplicate key. Patterns: "duplicate key", "violates unique"
//	DB002 - Connection refused. Patterns: "connection refused"
//	DB003 - Connection reset. Patterns: "connection reset"
//	DB004 - Timeout. Patterns: "timeout"
//	DB005 - Deadlock. Patterns: "deadlock"
//
// File errors (FILE001-FILE099):
//
//	FILE001 - File too large. Patterns: "file too large", "request body too large"
//	FILE002 - Unreadable spreadsheet. Patterns: "invalid spreadsheet", "unsupported file"
//	FILE003 - Encoding error. Patterns: "encoding error"
//	FILE004 - No file. Patterns: "no file provided"
//	FILE005 - Empty file. Patterns: "empty file"
//
// Request errors (REQ001-REQ099):
//
//	REQ001 - Request cancelled. Patterns: "context canceled"
//	REQ002 - Request timed out. Patterns: "context deadline exceeded"
//
// ERR000 is the fallback when nothing matches; the technical error is in the
// server logs.
//
// Patterns are matched case-insensitively with strings.Contains. The first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Import
	{"campaign does not exist", UserMessage{"The campaign for this import does not exist", "Check the campaign identifier and try again", "IMP001"}},
	{"header row not found", UserMessage{"No header row was recognized in the file", "Make sure the first rows contain column titles such as Nom, Prénom, Téléphone", "IMP002"}},
	{"unknown import kind", UserMessage{"This import type is not supported", "Use beneficiary or participant", "IMP003"}},
	{"import session not found", UserMessage{"Import session not found", "The session may have expired. Start a new import", "IMP004"}},
	{"too many import sessions", UserMessage{"The system is busy processing other imports", "Please wait a moment and try again", "IMP005"}},
	{"already started", UserMessage{"This import session has already run", "Start a new import", "IMP006"}},
	{"invalid duplicate policy", UserMessage{"Unknown duplicate handling option", "Use skip or update", "IMP007"}},

	// Database
	{"duplicate key", UserMessage{"A record with the same key already exists", "Review the duplicates listed in the report", "DB001"}},
	{"violates unique", UserMessage{"A record with the same key already exists", "Review the duplicates listed in the report", "DB001"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB002"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB003"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB004"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB005"}},

	// Files
	{"file too large", UserMessage{"File exceeds the maximum size", "Split the file into smaller parts", "FILE001"}},
	{"request body too large", UserMessage{"File exceeds the maximum size", "Split the file into smaller parts", "FILE001"}},
	{"invalid spreadsheet", UserMessage{"The file could not be read as a spreadsheet", "Upload a .csv or .xlsx file", "FILE002"}},
	{"unsupported file", UserMessage{"The file could not be read as a spreadsheet", "Upload a .csv or .xlsx file", "FILE002"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save the file as UTF-8", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Select a spreadsheet to import", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Upload a file with data rows", "FILE005"}},

	// Requests
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or check your connection", "REQ002"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the ERR000 fallback when no pattern matches.
//
//	msg := MapError(fmt.Errorf("%w: 42", ErrScopeNotFound))
//	// msg.Code == "IMP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
