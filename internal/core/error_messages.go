package core

// error_messages.go maps errors to coded user messages.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Typed errors are recognised first with errors.As / errors.Is;
// anything else falls back to case-insensitive pattern matching on the error
// text.
//
// # Validation Errors (VAL001-VAL099)
//
// Returned before any file is read:
//
//	VAL001 - Folder required: No folder to search was given
//	         Action: Choose the folder that holds your files
//
//	VAL002 - Column required: No column name was given
//	         Action: Enter the header of the column to search
//
//	VAL003 - Terms required: No search terms were given
//	         Action: Enter at least one search term
//
//	VAL004 - Invalid option: Mode, file types or exclude patterns are invalid
//	         Action: Use mode any or all and plain extensions such as csv
//
// # File Errors (FILE001-FILE099)
//
// Per-file conditions recorded in the run report:
//
//	FILE001 - File unreadable: A file could not be opened
//	          Patterns: "file access error", "permission denied"
//
//	FILE002 - File unparseable: A file could not be decoded or parsed
//	          Patterns: "load error"
//
//	FILE003 - Column not found: The column is missing from a file's header
//	          Patterns: "not found in"
//
//	FILE004 - File too large: A file exceeds the configured size limit
//	          Patterns: "file too large"
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - Export failed: The aggregated file could not be written
//	         Action: Check the output location and try again
//
//	EXP002 - Unsupported format: Only .csv and .xlsx are written
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run cancelled or timed out
//	RUN002 - System busy: Too many searches in progress
//	RUN003 - Run not found: The run expired or never existed, or is still running
//	RUN004 - Folder unavailable: The search folder is missing or vanished
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Access (AUTH001-AUTH099)
//
//	AUTH001 - API key missing (set by the auth middleware)
//	AUTH002 - API key invalid (set by the auth middleware)
//	AUTH003 - Path not allowed: A request path lies outside ALLOWED_ROOTS
//	          Patterns: "outside the allowed folders"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check application logs
// for the original technical error when users report ERR000.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/JonMunkholm/colsearch/internal/export"
	"github.com/JonMunkholm/colsearch/internal/match"
	"github.com/JonMunkholm/colsearch/internal/tabular"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

var (
	msgFileAccess = UserMessage{
		Message: "A file could not be opened",
		Action:  "Check that the file exists and you have permission to read it",
		Code:    "FILE001",
	}
	msgLoad = UserMessage{
		Message: "A file could not be read as a table",
		Action:  "Check the file is not corrupt; legacy .xls workbooks must be saved as .xlsx",
		Code:    "FILE002",
	}
	msgColumnNotFound = UserMessage{
		Message: "The column was not found in the file",
		Action:  "Check the column name matches the header exactly",
		Code:    "FILE003",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Split the file or raise SEARCH_MAX_FILE_SIZE",
		Code:    "FILE004",
	}
	msgExport = UserMessage{
		Message: "The results could not be saved",
		Action:  "Check the output location is writable and try again",
		Code:    "EXP001",
	}
	msgExportFormat = UserMessage{
		Message: "Unsupported export format",
		Action:  "Save as .csv or .xlsx",
		Code:    "EXP002",
	}
	msgCancelled = UserMessage{
		Message: "Search was cancelled",
		Action:  "Start a new search when ready",
		Code:    "RUN001",
	}
	msgTimedOut = UserMessage{
		Message: "Search timed out",
		Action:  "Narrow the folder or file types and try again",
		Code:    "RUN001",
	}
	msgBusy = UserMessage{
		Message: "System is busy running other searches",
		Action:  "Please wait a moment and try again",
		Code:    "RUN002",
	}
	msgRunNotFound = UserMessage{
		Message: "Search not found",
		Action:  "The search may have expired. Please start a new search",
		Code:    "RUN003",
	}
	msgRunInProgress = UserMessage{
		Message: "Search is still running",
		Action:  "Wait for the search to finish",
		Code:    "RUN003",
	}
	msgRootUnavailable = UserMessage{
		Message: "The search folder is not available",
		Action:  "Check the folder exists and is readable",
		Code:    "RUN004",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages
// for errors that arrive without their type, e.g. across a process boundary.
// The first matching pattern wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	{pattern: "outside the allowed folders", msg: UserMessage{Message: "That location is not available on this server", Action: "Use a path inside the folders listed in ALLOWED_ROOTS", Code: "AUTH003"}},
	{pattern: "validation failed: root", msg: UserMessage{Message: "A folder to search is required", Action: "Choose the folder that holds your files", Code: "VAL001"}},
	{pattern: "validation failed: column", msg: UserMessage{Message: "A column name is required", Action: "Enter the header of the column to search", Code: "VAL002"}},
	{pattern: "validation failed: terms", msg: UserMessage{Message: "At least one search term is required", Action: "Enter one or more search terms", Code: "VAL003"}},
	{pattern: "validation failed", msg: UserMessage{Message: "A search option is invalid", Action: "Use mode any or all and plain extensions such as csv", Code: "VAL004"}},
	{pattern: "search root unavailable", msg: msgRootUnavailable},
	{pattern: "file access error", msg: msgFileAccess},
	{pattern: "permission denied", msg: msgFileAccess},
	{pattern: "load error", msg: msgLoad},
	{pattern: "file too large", msg: msgTooLarge},
	{pattern: "not found in", msg: msgColumnNotFound},
	{pattern: "unsupported export format", msg: msgExportFormat},
	{pattern: "export error", msg: msgExport},
	{pattern: "too many concurrent searches", msg: msgBusy},
	{pattern: "search run not found", msg: msgRunNotFound},
	{pattern: "still in progress", msg: msgRunInProgress},
	{pattern: "context deadline exceeded", msg: msgTimedOut},
	{pattern: "cancel", msg: msgCancelled},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	_, err := svc.StartSearch(ctx, core.SearchRequest{Column: "zip"})
//	msg := MapError(err)
//	// msg.Code == "VAL001"
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
	var (
		valErr    *ValidationError
		rootErr   *RootError
		exportErr *export.ExportError
		accessErr *tabular.FileAccessError
		loadErr   *tabular.LoadError
		colErr    *match.ColumnNotFoundError
	)

	switch {
	case errors.As(err, &valErr):
		msg := UserMessage{Message: strings.ToUpper(valErr.Message[:1]) + valErr.Message[1:], Code: valErr.Code}
		for _, ep := range errorPatterns {
			if ep.msg.Code == valErr.Code {
				msg.Action = ep.msg.Action
				break
			}
		}
		return msg, true
	case errors.As(err, &rootErr):
		return msgRootUnavailable, true
	case errors.Is(err, export.ErrUnsupportedFormat):
		return msgExportFormat, true
	case errors.As(err, &exportErr):
		return msgExport, true
	case errors.Is(err, ErrTooManyRuns):
		return msgBusy, true
	case errors.Is(err, ErrRunNotFound):
		return msgRunNotFound, true
	case errors.Is(err, ErrRunInProgress):
		return msgRunInProgress, true
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimedOut, true
	case errors.Is(err, ErrRunCancelled), errors.Is(err, context.Canceled):
		return msgCancelled, true
	case errors.As(err, &colErr):
		return msgColumnNotFound, true
	case errors.As(err, &accessErr), errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return msgFileAccess, true
	case errors.As(err, &loadErr):
		return msgLoad, true
	}
	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
// Example output: "Search not found (Code: RUN003). The search may have expired. Please start a new search"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	if msg.Action == "" {
		return fmt.Sprintf("%s (Code: %s).", msg.Message, msg.Code)
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
