package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// PathPrefix is prepended to every logical endpoint path
const PathPrefix = "/api"

// Sentinel causes for ProgrammingError and local lookups
var (
	ErrHandleUsed = errors.New("batch handle already sent; start a new one")
	ErrBatchFull  = errors.New("batch handle is full")
	ErrUpload     = errors.New("uploads can not be sent in a batch")
	ErrNotFound   = errors.New("not found")
)

// Error is an application error: the server answered with a non-success status
type Error struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// NewError creates an application error, encoding body as JSON
func NewError(status int, body interface{}) *Error {
	e := &Error{Status: status}
	if body != nil {
		if raw, err := json.Marshal(body); err == nil {
			e.Body = raw
		}
	}
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if msg == "" || msg == "null" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, msg)
}

// Is reports 404 application errors as ErrNotFound
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Message returns the body decoded as a string when the server sent one
func (e *Error) Message() string {
	var s string
	if err := json.Unmarshal(e.Body, &s); err == nil {
		return s
	}
	return string(e.Body)
}

// TransportError means the call never completed or its response was unusable
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProgrammingError signals misuse of the batching protocol by the caller
type ProgrammingError struct {
	Err error
}

// Error implements the error interface
func (e *ProgrammingError) Error() string {
	return "programming error: " + e.Err.Error()
}

// Unwrap returns the underlying cause
func (e *ProgrammingError) Unwrap() error {
	return e.Err
}

// BatchErrors collects every failed call of one batch, in positional order
type BatchErrors []error

// Error implements the error interface
func (b BatchErrors) Error() string {
	if len(b) == 1 {
		return "mdo: 1 call failed: " + b[0].Error()
	}
	parts := make([]string, len(b))
	for i, err := range b {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("mdo: %d calls failed: %s", len(b), strings.Join(parts, "; "))
}

// Unwrap exposes members to errors.Is and errors.As
func (b BatchErrors) Unwrap() []error {
	return b
}

// Body returns the server payload carried by err, if any.
// Transport failures yield their message as a JSON string.
func Body(err error) json.RawMessage {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Body
	}
	raw, _ := json.Marshal(err.Error())
	return raw
}

// IsNull returns true if raw is empty or JSON null
func IsNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
