package extraction

import (
	"errors"
	"fmt"
)

// ErrorCode classifies extraction failures.
type ErrorCode string

const (
	// ErrUnsupportedType means the file extension maps to no parser. Fatal to
	// that file's ingestion only; sibling files in a batch are unaffected.
	ErrUnsupportedType ErrorCode = "UNSUPPORTED_TYPE"
	// ErrEncoding means no candidate encoding decoded the file.
	ErrEncoding ErrorCode = "ENCODING"
	// ErrParse means a grammar or pattern produced zero structured matches.
	// Not fatal until the router's fallback chain is exhausted.
	ErrParse ErrorCode = "PARSE"
)

// Error is a structured extraction failure tied to one source file.
type Error struct {
	Code    ErrorCode
	Message string
	File    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.File, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.File, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf returns the extraction error code carried by err, or "" if err is
// not an extraction error.
func CodeOf(err error) ErrorCode {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

func unsupportedTypeError(file, ext string) *Error {
	return &Error{Code: ErrUnsupportedType, File: file, Message: fmt.Sprintf("unsupported file type %q", ext)}
}

func encodingError(file string, cause error) *Error {
	return &Error{Code: ErrEncoding, File: file, Message: "no candidate encoding decoded the file", Cause: cause}
}

func parseError(file, msg string, cause error) *Error {
	return &Error{Code: ErrParse, File: file, Message: msg, Cause: cause}
}
