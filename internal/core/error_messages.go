package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference.
//
// # Error Codes Reference
//
// # Parse Errors (PARSE001-PARSE099)
//
//	PARSE001 - Encoding: The file could not be read with the selected encoding
//	           Action: Pick the encoding the file was saved with (e.g. latin-1)
//	PARSE002 - Unreadable: The file is not valid text in the selected encoding
//	           Action: Check the encoding setting or re-save the file as UTF-8
//	PARSE003 - No columns: No columns could be found in the file
//	           Action: Check the delimiter and the number of rows skipped
//	PARSE004 - Bad options: The parsing options are not valid
//	           Action: Use a single-character delimiter and quote character
//	PARSE005 - Bad header: The header row could not be used as column names
//	           Action: Turn off the header option or fix the first row
//
// # Column Errors (COL001-COL099)
//
//	COL001 - Column not found: The selected column does not exist
//	         Action: Reload the table and pick a column from the list
//	COL002 - Duplicate column: A column with this name already exists
//	         Action: Choose a different column name
//
// # Change Errors (CHG001-CHG099)
//
//	CHG001 - Bad batch: The list of changes could not be read
//	         Action: Reload the page and make the changes again
//
// # Storage Errors (STORE001-STORE099)
//
//	STORE001 - Not found: The table is no longer available
//	           Action: Upload the files again to start a new session
//	STORE002 - Bad key: The table reference is not valid
//	           Action: Reload the page and pick a table from the list
//	STORE003 - Unavailable: The table store could not be reached
//	           Action: Please try again in a few moments
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Too large: The file exceeds the upload size limit
//	FILE002 - Unsupported: Only CSV files can be uploaded
//	FILE003 - No file: No file was selected
//	FILE004 - Empty file: The uploaded file is empty
//	FILE005 - Missing upload: The uploaded file is no longer available
//	FILE006 - Nothing imported: None of the uploaded files could be imported
//
// # Join Errors (JOIN001-JOIN099)
//
//	JOIN001 - Bad mode: The join type is not one of inner, left, right, outer
//	JOIN002 - Too few tables: A join needs two tables
//
// # Session and Request Errors
//
//	SES001  - Bad session: The session id is not valid
//	RATE001 - Rate limited: Too many requests
//	RATE002 - Busy: Too many heavy operations are already running
//	REQ001  - Cancelled: The request was cancelled
//	REQ002  - Timeout: The request timed out
//	REQ003  - Malformed: The request body or parameters could not be read
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Matching
//
// Known sentinel and typed errors are matched with errors.Is / errors.As
// first, so wrapping never hides them. Anything left over is matched against
// case-insensitive message patterns; the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/tabwork/internal/dialect"
	"github.com/JonMunkholm/tabwork/internal/join"
	"github.com/JonMunkholm/tabwork/internal/store"
	"github.com/JonMunkholm/tabwork/internal/table"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorMatch pairs a typed error check with its message.
type errorMatch struct {
	match func(error) bool
	msg   UserMessage
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func parseReason(reason string) func(error) bool {
	return func(err error) bool {
		var pe *dialect.ParseError
		return errors.As(err, &pe) && pe.Reason == reason
	}
}

// errorMatches is checked before the pattern table.
var errorMatches = []errorMatch{
	{parseReason("invalid encoding"), UserMessage{
		Message: "The file could not be read with the selected encoding",
		Action:  "Pick the encoding the file was saved with, for example latin-1",
		Code:    "PARSE001",
	}},
	{parseReason("unreadable input"), UserMessage{
		Message: "The file is not valid text in the selected encoding",
		Action:  "Check the encoding setting or re-save the file as UTF-8",
		Code:    "PARSE002",
	}},
	{parseReason("no columns to parse from file"), UserMessage{
		Message: "No columns could be found in the file",
		Action:  "Check the delimiter and the number of rows skipped",
		Code:    "PARSE003",
	}},
	{parseReason("invalid parsing options"), UserMessage{
		Message: "The parsing options are not valid",
		Action:  "Use a single-character delimiter and quote character",
		Code:    "PARSE004",
	}},
	{parseReason("invalid header"), UserMessage{
		Message: "The header row could not be used as column names",
		Action:  "Turn off the header option or fix the first row",
		Code:    "PARSE005",
	}},
	{is(table.ErrColumnNotFound), UserMessage{
		Message: "The selected column does not exist",
		Action:  "Reload the table and pick a column from the list",
		Code:    "COL001",
	}},
	{is(table.ErrDuplicateColumn), UserMessage{
		Message: "A column with this name already exists",
		Action:  "Choose a different column name",
		Code:    "COL002",
	}},
	{is(ErrInvalidChanges), UserMessage{
		Message: "The list of changes could not be read",
		Action:  "Reload the page and make the changes again",
		Code:    "CHG001",
	}},
	{is(store.ErrNotFound), UserMessage{
		Message: "The table is no longer available",
		Action:  "Upload the files again to start a new session",
		Code:    "STORE001",
	}},
	{is(ErrInvalidSession), UserMessage{
		Message: "The session id is not valid",
		Action:  "Upload the files again to start a new session",
		Code:    "SES001",
	}},
	{is(store.ErrInvalidKey), UserMessage{
		Message: "The table reference is not valid",
		Action:  "Reload the page and pick a table from the list",
		Code:    "STORE002",
	}},
	{is(ErrFileTooLarge), UserMessage{
		Message: "The file exceeds the upload size limit",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}},
	{is(ErrUnsupportedFile), UserMessage{
		Message: "Only CSV files can be uploaded",
		Action:  "Export the data as a .csv file and try again",
		Code:    "FILE002",
	}},
	{is(ErrNoFiles), UserMessage{
		Message: "No file was selected",
		Action:  "Please select a CSV file to upload",
		Code:    "FILE003",
	}},
	{is(ErrEmptyFile), UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a CSV file with data rows",
		Code:    "FILE004",
	}},
	{is(store.ErrUploadNotFound), UserMessage{
		Message: "The uploaded file is no longer available",
		Action:  "Upload the file again",
		Code:    "FILE005",
	}},
	{is(ErrNothingImported), UserMessage{
		Message: "None of the uploaded files could be imported",
		Action:  "Adjust the parsing options using the preview and try again",
		Code:    "FILE006",
	}},
	{is(join.ErrInvalidMode), UserMessage{
		Message: "The join type is not valid",
		Action:  "Choose inner, left, right or outer",
		Code:    "JOIN001",
	}},
	{is(ErrJoinNeedsTables), UserMessage{
		Message: "A join needs two tables",
		Action:  "Upload a second file to join or compare",
		Code:    "JOIN002",
	}},
	{is(ErrBusy), UserMessage{
		Message: "System is busy processing other requests",
		Action:  "Please wait a moment and try again",
		Code:    "RATE002",
	}},
	{is(ErrBadRequest), UserMessage{
		Message: "The request could not be read",
		Action:  "Reload the page and try again",
		Code:    "REQ003",
	}},
	{is(context.Canceled), UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}},
	{is(context.DeadlineExceeded), UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "REQ002",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches errors that arrive without a typed cause, mostly
// from drivers and middleware. Patterns are lower case.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "The table store could not be reached",
			Action:  "Please try again in a few moments",
			Code:    "STORE003",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "The table store connection was interrupted",
			Action:  "Please try again",
			Code:    "STORE003",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "The table store is busy",
			Action:  "Please try again",
			Code:    "STORE003",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "The file exceeds the upload size limit",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "REQ002",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Typed
// errors are checked first, then message patterns. If nothing matches, a
// generic fallback with code ERR000 is returned. A UserError in the chain
// replaces the message text but keeps the code of its cause.
//
//	msg := MapError(fmt.Errorf("load: %w", store.ErrNotFound))
//	// msg.Code == "STORE001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	msg := mapCause(err)
	var ue *UserError
	if errors.As(err, &ue) && ue.Message != "" {
		msg.Message = ue.Message
	}
	return msg
}

func mapCause(err error) UserMessage {
	for _, em := range errorMatches {
		if em.match(err) {
			return em.msg
		}
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

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps an error with a message written for the end user. MapError
// still sees the wrapped cause.
type UserError struct {
	Err     error
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError wraps err with a user-facing message.
func NewUserError(err error, format string, args ...any) *UserError {
	return &UserError{Err: err, Message: fmt.Sprintf(format, args...)}
}

// sizeLimitError reports a file over limit, with both sizes in readable units.
func sizeLimitError(name string, size, limit int64) error {
	return NewUserError(ErrFileTooLarge, "%s is %s, the limit is %s",
		name, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
}
