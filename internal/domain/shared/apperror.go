package shared

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ContentTypeJSON is the content type of every error body
const ContentTypeJSON = "application/json; charset=utf-8"

// Error classes carried in the "c" field of every error body.
// Environment and module lookups share class 2.
const (
	ClassUnexpected          = 0
	ClassOriginNotAuthorized = 1
	ClassUnknownEnvironment  = 2
	ClassUnknownModule       = 2
	ClassUnknownFunction     = 3
	ClassConnection          = 10
	ClassOperation           = 11
)

// Fixed messages for each class
const (
	MsgUnexpected          = "BUG: unexpected error"
	MsgOriginNotAuthorized = "origin not authorized"
	MsgUnknownEnvironment  = "unknown environment"
	MsgUnknownModule       = "unknown module"
	MsgUnknownFunction     = "unknown function"
	MsgConnection          = "user not registered in the ERP (or ERP server unreachable)"
)

// AppError is the single tagged error returned to callers.
// Its JSON form is the error body written on the wire.
type AppError struct {
	Class   int    `json:"c"`
	Message string `json:"m"`
	Detail  string `json:"d,omitempty"`
	Stack   string `json:"s,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("[%d] %s", e.Class, e.Message)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Class, e.Message, e.Detail)
}

// Body returns the wire form of e with HTML characters left unescaped.
func (e *AppError) Body() []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return []byte(`{"c":0,"m":"` + MsgUnexpected + `"}`)
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// NewAppError creates an AppError of the given class
func NewAppError(class int, message, detail string) *AppError {
	return &AppError{Class: class, Message: message, Detail: detail}
}

// WithStack returns a copy of e carrying stack
func (e *AppError) WithStack(stack string) *AppError {
	cp := *e
	cp.Stack = stack
	return &cp
}

func NewOriginNotAuthorized(origin string) *AppError {
	return NewAppError(ClassOriginNotAuthorized, MsgOriginNotAuthorized, origin)
}

func NewUnknownEnvironment(code string) *AppError {
	return NewAppError(ClassUnknownEnvironment, MsgUnknownEnvironment, code)
}

func NewUnknownModule(module string) *AppError {
	return NewAppError(ClassUnknownModule, MsgUnknownModule, module)
}

func NewUnknownFunction(function string) *AppError {
	return NewAppError(ClassUnknownFunction, MsgUnknownFunction, function)
}

// NewConnectionError reports a failed connect/authenticate against the ERP.
func NewConnectionError(detail string) *AppError {
	return NewAppError(ClassConnection, MsgConnection, detail)
}

// NewOperationError reports a failed ERP operation after a successful connect.
func NewOperationError(operation, detail string) *AppError {
	return NewAppError(ClassOperation, "error in "+operation, detail)
}

// NewUnexpectedError wraps a failure nobody classified.
func NewUnexpectedError(detail string) *AppError {
	return NewAppError(ClassUnexpected, MsgUnexpected, detail)
}

// AsAppError returns err as an *AppError, wrapping anything untagged as class 0
// with the original message in the detail.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewUnexpectedError(err.Error())
}
