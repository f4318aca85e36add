// # Error Codes Reference
//
// This file defines operator-facing error messages with codes for support
// reference. Run failures are recorded in the monitor table with the raw
// technical message; the CLI and the HTTP API show the coded message.
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Source unreadable: An input file could not be opened or read
//	         Action: Check DATA_DIR and the configured file names
//	         Patterns: "source unreadable"
//
//	SRC002 - Invalid CSV: The roster file is not valid CSV
//	         Action: Ensure the file is comma-separated with one header row
//	         Patterns: "invalid csv"
//
//	SRC003 - Invalid JSON: The grades file is not a JSON array of objects
//	         Action: Export grades as a records-oriented JSON array
//	         Patterns: "invalid json"
//
//	SRC004 - Invalid XML: The enrollment file could not be parsed
//	         Action: Check the XML is well formed
//	         Patterns: "invalid xml"
//
// # Key Errors (KEY001-KEY099)
//
//	KEY001 - No key column: The roster has no columns to take a key from
//	         Action: Make sure the roster file has a header row
//	         Patterns: "no key column"
//
// # Store Errors (STO001-STO099)
//
//	STO001 - Load mismatch: Persisted row count differs from the fact count
//	         Action: Check the database for concurrent writers and rerun
//	         Patterns: "fact count mismatch"
//
//	STO002 - Connection refused: Unable to connect to database
//	         Action: Check DATABASE_URL and that the database is running
//	         Patterns: "connection refused", "connection reset"
//
//	STO003 - Database busy: The database was locked by another writer
//	         Action: Please try again
//	         Patterns: "database is locked", "deadlock"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run in progress: Another run is already executing
//	         Action: Wait for the current run to finish
//	         Patterns: "run already in progress"
//
//	RUN002 - Run timed out: The run exceeded its deadline or was cancelled
//	         Action: Raise RUN_TIMEOUT or try again
//	         Patterns: "context deadline exceeded", "context canceled"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the process log for the technical error
//
// Patterns are matched case-insensitively with strings.Contains. The first
// matching pattern wins.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides operator-facing error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to messages.
// Specific patterns come before general ones.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Source Errors (SRC001-SRC004)
	// =========================================================================
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "The roster file is not valid CSV",
			Action:  "Ensure the file is comma-separated with one header row",
			Code:    "SRC002",
		},
	},
	{
		pattern: "invalid json",
		msg: UserMessage{
			Message: "The grades file is not a JSON array of objects",
			Action:  "Export grades as a records-oriented JSON array",
			Code:    "SRC003",
		},
	},
	{
		pattern: "invalid xml",
		msg: UserMessage{
			Message: "The enrollment file could not be parsed",
			Action:  "Check the XML is well formed",
			Code:    "SRC004",
		},
	},
	{
		pattern: "source unreadable",
		msg: UserMessage{
			Message: "An input file could not be opened or read",
			Action:  "Check DATA_DIR and the configured file names",
			Code:    "SRC001",
		},
	},

	// =========================================================================
	// Key Errors (KEY001)
	// =========================================================================
	{
		pattern: "no key column",
		msg: UserMessage{
			Message: "The roster has no columns to take a key from",
			Action:  "Make sure the roster file has a header row",
			Code:    "KEY001",
		},
	},

	// =========================================================================
	// Store Errors (STO001-STO003)
	// =========================================================================
	{
		pattern: "fact count mismatch",
		msg: UserMessage{
			Message: "Persisted row count differs from the fact count",
			Action:  "Check the database for concurrent writers and rerun",
			Code:    "STO001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check DATABASE_URL and that the database is running",
			Code:    "STO002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Check DATABASE_URL and that the database is running",
			Code:    "STO002",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "The database was locked by another writer",
			Action:  "Please try again",
			Code:    "STO003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "STO003",
		},
	},

	// =========================================================================
	// Run Errors (RUN001-RUN002)
	// =========================================================================
	{
		pattern: "run already in progress",
		msg: UserMessage{
			Message: "Another run is already executing",
			Action:  "Wait for the current run to finish",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The run exceeded its deadline",
			Action:  "Raise RUN_TIMEOUT or try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Please try again",
			Code:    "RUN002",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the process log for the technical error",
	Code:    "ERR000",
}

// MapError converts a technical error to an operator-facing message.
// It returns the first matching pattern, or the ERR000 fallback.
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

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with its mapped message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // Message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
