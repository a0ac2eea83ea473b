// Package core provides the business logic for catalog bulk imports.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// Typed pipeline errors are matched first (errors.As / errors.Is); anything
// else falls through to case-insensitive pattern matching on the message.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Session not found
//	IMP002 - Operation not allowed in the session's current status
//	IMP003 - Session has blocking validation errors
//	IMP004 - Another import is already open for this entity type
//	IMP005 - Session or scope is busy (lock wait expired)
//	IMP006 - Session was changed by another request
//	IMP007 - Rows reference each other in a cycle
//	IMP008 - Report unavailable until the session has been validated
//	IMP009 - Unknown entity type
//	IMP010 - Scope missing
//	IMP011 - Draft row not found
//	IMP012 - Source file was not archived
//	IMP013 - Edit names a field the entity type does not have
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV or missing header row
//	FILE003 - Encoding error
//	FILE004 - No file provided
//	FILE005 - Empty file
//	FILE006 - Archive has no usable member for this entity type
//	FILE007 - Too many rows
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key            Patterns: "duplicate key"
//	DB002 - Unique constraint        Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key              Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused       Patterns: "connection refused"
//	DB005 - Connection reset         Patterns: "connection reset"
//	DB006 - Timeout                  Patterns: "timeout"
//	DB007 - Deadlock                 Patterns: "deadlock"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid number          Patterns: "invalid number", "not a valid number"
//	VAL002 - Invalid boolean         Patterns: "not a valid boolean"
//	VAL003 - Required field          Patterns: "is required"
//	VAL004 - Invalid enum            Patterns: "must be one of"
//	VAL005 - Reference not found     Patterns: "does not exist"
//	VAL006 - Value out of range      Patterns: "must be zero or greater", "must be greater than zero"
//
// # Rate Limiting and Access (RATE, AUTH)
//
//	RATE001 - Too many requests          Patterns: "rate limit"
//	RATE002 - Too many concurrent imports
//	AUTH001 - Not permitted
//	AUTH002 - Caller not identified    Patterns: "missing actor"
//	REQ001  - Malformed request        Patterns: "invalid request body", "invalid list filter"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// # For Support Staff
//
// When a user reports an error code:
//  1. Look up the code in this reference
//  2. Check the associated patterns to understand what triggered it
//  3. If ERR000, check application logs for the original technical error
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// decodeMessages maps each DecodeCode to its user message.
var decodeMessages = map[DecodeCode]UserMessage{
	DecodeFileTooLarge:  {Message: "File exceeds the maximum upload size", Action: "Split the file into smaller chunks", Code: "FILE001"},
	DecodeMalformed:     {Message: "File is not a valid CSV", Action: "Ensure the file is delimited text with consistent quoting", Code: "FILE002"},
	DecodeNoHeader:      {Message: "File has no header row", Action: "Add a header row naming each column (download a template)", Code: "FILE002"},
	DecodeEncoding:      {Message: "File contains invalid characters", Action: "Save the file as UTF-8 text", Code: "FILE003"},
	DecodeEmpty:         {Message: "The uploaded file is empty", Action: "Please upload a file with a header and data rows", Code: "FILE005"},
	DecodeNoMember:      {Message: "The archive has no file for this entity type", Action: "Name the file after the entity type, e.g. items.csv", Code: "FILE006"},
	DecodeArchive:       {Message: "The archive could not be read", Action: "Re-create the ZIP archive and upload again", Code: "FILE006"},
	DecodeBatchTooLarge: {Message: "File has too many rows", Action: "Split the file into smaller batches", Code: "FILE007"},
}

// sentinelMessages are checked in order with errors.Is. More specific
// causes come before the errors they may be wrapped in.
var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{ErrSessionNotFound, UserMessage{Message: "Import session not found", Action: "The import may have been removed. Please start a new upload", Code: "IMP001"}},
	{ErrBlockingIssues, UserMessage{Message: "The import has errors that must be fixed first", Action: "Download the error report, correct the rows, and validate again", Code: "IMP003"}},
	{ErrActiveSessionExists, UserMessage{Message: "Another import is already open for this entity type", Action: "Finish or discard the open import before uploading again", Code: "IMP004"}},
	{ErrLockTimeout, UserMessage{Message: "The import is busy with another request", Action: "Please wait a moment and try again", Code: "IMP005"}},
	{ErrVersionConflict, UserMessage{Message: "The import was changed by another request", Action: "Reload the import and apply your changes again", Code: "IMP006"}},
	{ErrDependencyCycle, UserMessage{Message: "Some rows reference each other in a cycle", Action: "Break the cycle in the parent column and upload again", Code: "IMP007"}},
	{ErrReportUnavailable, UserMessage{Message: "No report is available yet", Action: "Validate the import first", Code: "IMP008"}},
	{ErrUnknownEntityType, UserMessage{Message: "Unknown entity type", Action: "Use one of: category, item, modifier_group, modifier, size", Code: "IMP009"}},
	{ErrMissingScope, UserMessage{Message: "No catalog was selected", Action: "Choose the catalog to import into", Code: "IMP010"}},
	{ErrRowNotFound, UserMessage{Message: "Draft row not found", Action: "Reload the import; the row may have been removed", Code: "IMP011"}},
	{ErrSourceUnavailable, UserMessage{Message: "The original file is not available", Action: "Source archiving may be disabled on this server", Code: "IMP012"}},
	{ErrUnknownField, UserMessage{Message: "The edit names a column this import does not have", Action: "Download the template to see the accepted columns", Code: "IMP013"}},
	{ErrFileTooLarge, UserMessage{Message: "File exceeds the maximum upload size", Action: "Split the file into smaller chunks", Code: "FILE001"}},
	{ErrBatchTooLarge, UserMessage{Message: "File has too many rows", Action: "Split the file into smaller batches", Code: "FILE007"}},
	{ErrTooManyImports, UserMessage{Message: "System is busy processing other imports", Action: "Please wait a moment and try again", Code: "RATE002"}},
	{ErrForbidden, UserMessage{Message: "You are not permitted to do this", Action: "Ask an administrator for import access", Code: "AUTH001"}},
}

var (
	stateMessage       = UserMessage{Message: "This action is not allowed for the import's current status", Action: "Reload the import to see its current status", Code: "IMP002"}
	concurrencyMessage = UserMessage{Message: "The import is busy with another request", Action: "Please wait a moment and try again", Code: "IMP005"}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. The first match wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	// Database constraint errors
	{"duplicate key", UserMessage{Message: "A record with this key already exists", Action: "Check the file for duplicate rows", Code: "DB001"}},
	{"unique constraint", UserMessage{Message: "This value must be unique but already exists", Action: "Check for duplicate entries in your file", Code: "DB002"}},
	{"violates unique", UserMessage{Message: "A duplicate value was found", Action: "Review your data for duplicate key values", Code: "DB002"}},
	{"foreign key constraint", UserMessage{Message: "Referenced record does not exist", Action: "Ensure parent records are imported first", Code: "DB003"}},
	{"violates foreign key", UserMessage{Message: "Referenced record does not exist", Action: "Ensure parent records are imported first", Code: "DB003"}},

	// Database connection errors
	{"connection refused", UserMessage{Message: "Unable to connect to database", Action: "Please try again in a few moments", Code: "DB004"}},
	{"connection reset", UserMessage{Message: "Database connection was interrupted", Action: "Please try again", Code: "DB005"}},
	{"timeout", UserMessage{Message: "Operation timed out", Action: "Try a smaller file or try again later", Code: "DB006"}},
	{"deadlock", UserMessage{Message: "Database was busy with conflicting operations", Action: "Please try again", Code: "DB007"}},

	// Validation errors
	{"not a valid number", UserMessage{Message: "Invalid number format detected", Action: "Use plain decimal numbers such as 4.50", Code: "VAL001"}},
	{"invalid number", UserMessage{Message: "Invalid number format detected", Action: "Use plain decimal numbers such as 4.50", Code: "VAL001"}},
	{"not a valid boolean", UserMessage{Message: "Invalid yes/no value detected", Action: "Use true/false, yes/no, or 1/0", Code: "VAL002"}},
	{"is required", UserMessage{Message: "Required field is empty", Action: "Ensure all required columns have values", Code: "VAL003"}},
	{"must be one of", UserMessage{Message: "Value is not in the allowed list", Action: "Check the allowed values for this field", Code: "VAL004"}},
	{"does not exist", UserMessage{Message: "Referenced record does not exist", Action: "Import the parent records first or fix the name", Code: "VAL005"}},
	{"must be zero or greater", UserMessage{Message: "Value is out of range", Action: "Use a value of zero or more", Code: "VAL006"}},
	{"must be greater than zero", UserMessage{Message: "Value is out of range", Action: "Use a value greater than zero", Code: "VAL006"}},

	// File errors
	{"no file provided", UserMessage{Message: "No file was selected", Action: "Please select a file to upload", Code: "FILE004"}},

	// Request lifecycle
	{"context canceled", UserMessage{Message: "Request was cancelled", Action: "Please try again", Code: "ERR001"}},
	{"context deadline exceeded", UserMessage{Message: "Request timed out", Action: "Try a smaller file or check your connection", Code: "ERR002"}},

	// Request shape and identity
	{"missing actor", UserMessage{Message: "The request did not identify a user", Action: "Sign in again or send the X-Actor-ID header", Code: "AUTH002"}},
	{"invalid request body", UserMessage{Message: "The request could not be read", Action: "Send a JSON body matching the documented shape", Code: "REQ001"}},
	{"invalid list filter", UserMessage{Message: "The list filter could not be read", Action: "Check the status and limit parameters", Code: "REQ001"}},

	// Rate limiting
	{"rate limit", UserMessage{Message: "Too many requests", Action: "Please wait a moment before trying again", Code: "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(&StateError{Status: StatusConfirmed, Operation: "commit"})
//	// msg.Code == "IMP002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	if msg, ok := mapTyped(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

func mapTyped(err error) (UserMessage, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		if msg, ok := decodeMessages[de.Code]; ok {
			return msg, true
		}
	}
	for _, s := range sentinelMessages {
		if errors.Is(err, s.target) {
			return s.msg, true
		}
	}
	var se *StateError
	if errors.As(err, &se) {
		return stateMessage, true
	}
	var ce *ConcurrencyError
	if errors.As(err, &ce) {
		return concurrencyMessage, true
	}
	return UserMessage{}, false
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

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps a technical error to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
