// Package apperr defines the closed taxonomy of error codes the engine's
// components return across their public boundaries. Every exported fallible
// operation returns (T, error); callers that care about the failure kind use
// errors.As to recover a *Error and inspect its Code.
package apperr

import "fmt"

// Code is a stable, closed error classification. See spec §7 for the full
// taxonomy; components only ever produce the subset relevant to them.
type Code string

const (
	// Input
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidJSON     Code = "INVALID_JSON"
	CodeEmptyQuery      Code = "EMPTY_QUERY"
	CodeQueryTooLong    Code = "QUERY_TOO_LONG"
	CodeQueryTooComplex Code = "QUERY_TOO_COMPLEX"
	CodeTokenTooLong    Code = "TOKEN_TOO_LONG"
	CodeQueryTooGeneral Code = "QUERY_TOO_GENERAL"

	// Not-found / forbidden
	CodeNotFound       Code = "NOT_FOUND"
	CodeDirNotFound    Code = "DIR_NOT_FOUND"
	CodeNotADirectory  Code = "NOT_A_DIRECTORY"
	CodeForbidden      Code = "FORBIDDEN"

	// Store
	CodeDBError          Code = "DB_ERROR"
	CodeFTSRepairFailed  Code = "FTS_REPAIR_FAILED"
	CodePragmaFailed     Code = "PRAGMA_FAILED"

	// Tools
	CodeToolMissing  Code = "TOOL_MISSING"
	CodeExifToolErr  Code = "EXIFTOOL_ERROR"
	CodeFFProbeErr   Code = "FFPROBE_ERROR"
	CodeParseError   Code = "PARSE_ERROR"

	// Time
	CodeTimeout Code = "TIMEOUT"

	// Orchestration
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeCSRF               Code = "CSRF"

	// Scanner/indexer
	CodeInsertFailed Code = "INSERT_FAILED"
	CodeUpdateFailed Code = "UPDATE_FAILED"
	CodeStatFailed   Code = "STAT_FAILED"
	CodeScanFailed   Code = "SCAN_FAILED"

	// Unsupported input classification (metadata service)
	CodeUnsupported Code = "UNSUPPORTED"
)

// Error is the engine's error value. Message is always safe to log (no
// absolute paths) unless Debug is set by the caller's logging layer.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, else "".
func CodeOf(err error) Code {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Code
	}
	return ""
}

// asError is a tiny local errors.As to avoid importing errors just for this.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
