package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types that can be used throughout the application
var (
	// Standard error sentinel values
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternalError = errors.New("internal error")
	ErrTimeout       = errors.New("operation timed out")
	ErrCanceled      = errors.New("operation canceled")

	// Domain-specific error sentinel values
	ErrIngestFailed     = errors.New("recording ingest failed")
	ErrSourceNotFound   = errors.New("dialed-number source not found")
	ErrSourceFormat     = errors.New("dialed-number source format not recognized")
	ErrNothingToResume  = errors.New("no dialed numbers found to resume from")
	ErrPatternInference = errors.New("could not infer dialing pattern")
	ErrInvalidPattern   = errors.New("invalid phone number pattern")
	ErrInvalidNumber    = errors.New("invalid phone number")
	ErrSchedulerClosed  = errors.New("analysis scheduler is shut down")
)

// Error represents a structured error with creation site and additional context
type Error struct {
	// original is the underlying error
	original error

	// message is the error message
	message string

	// fields contains contextual information
	fields map[string]interface{}

	// file and line record where the error was created
	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)

	var fieldMap map[string]interface{}
	if len(fields) > 0 && fields[0] != nil {
		fieldMap = fields[0]
	} else {
		fieldMap = make(map[string]interface{})
	}

	return &Error{
		original: errors.New(message),
		message:  message,
		fields:   fieldMap,
		file:     file,
		line:     line,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)

	var fieldMap map[string]interface{}
	if len(fields) > 0 && fields[0] != nil {
		fieldMap = fields[0]
	} else {
		fieldMap = make(map[string]interface{})
	}

	return &Error{
		original: err,
		message:  message,
		fields:   fieldMap,
		file:     file,
		line:     line,
	}
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}

	// Create a copy to avoid modifying the original
	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+1),
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}

	for k, v := range e.fields {
		result.fields[k] = v
	}
	result.fields[key] = value

	return result
}

// WithFields adds multiple fields to the error context
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}

	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+len(fields)),
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}

	for k, v := range e.fields {
		result.fields[k] = v
	}
	for k, v := range fields {
		result.fields[k] = v
	}

	return result
}

// WithCode adds an error code to the error
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}

	return &Error{
		original: e.original,
		message:  e.message,
		fields:   e.fields,
		file:     e.file,
		line:     e.line,
		Code:     code,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}

	if e.message == "" {
		return e.original.Error()
	}

	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}

	parts := strings.Split(e.file, "/")
	filename := parts[len(parts)-1]

	return fmt.Sprintf("%s:%d", filename, e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// Is reports whether any error in err's tree matches target.
// Implements the errors.Is interface.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}

	if errors.Is(e.original, target) {
		return true
	}

	return e == target
}

// Is delegates to the standard library so callers only import one package
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to the standard library so callers only import one package
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// NewSourceNotFound creates a new ErrSourceNotFound error with additional context
func NewSourceNotFound(path string) *Error {
	err := Wrap(ErrSourceNotFound, fmt.Sprintf("no results file at %s", path))
	return err.WithCode("SOURCE_NOT_FOUND").WithField("path", path)
}

// NewSourceFormat creates a new ErrSourceFormat error with additional context
func NewSourceFormat(path, detail string) *Error {
	err := Wrap(ErrSourceFormat, detail)
	return err.WithCode("SOURCE_FORMAT").WithField("path", path)
}

// NewIngestFailed creates a new ErrIngestFailed error wrapping the cause
func NewIngestFailed(cause error, url string) *Error {
	if cause == nil {
		return nil
	}
	err := Wrap(ErrIngestFailed, cause.Error())
	return err.WithCode("INGEST_FAILED").WithField("url", url)
}
