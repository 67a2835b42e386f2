package engine

import (
	"errors"
	"fmt"
)

// Code is a primary engine result code.
type Code int

const (
	CodeOK Code = iota
	CodeError
	CodeInternal
	CodePerm
	CodeAbort
	CodeBusy
	CodeLocked
	CodeNoMem
	CodeReadOnly
	CodeInterrupt
	CodeIOErr
	CodeCorrupt
	CodeNotFound
	CodeFull
	CodeCantOpen
	CodeProtocol
	CodeEmpty
	CodeSchema
	CodeTooBig
	CodeConstraint
	CodeMismatch
	CodeMisuse
	CodeNoLFS
	CodeAuth
	CodeFormat
	CodeRange
	CodeNotADB
	CodeNotice
	CodeWarning
)

var codeNames = [...]string{
	"OK", "ERROR", "INTERNAL", "PERM", "ABORT", "BUSY", "LOCKED", "NOMEM",
	"READONLY", "INTERRUPT", "IOERR", "CORRUPT", "NOTFOUND", "FULL",
	"CANTOPEN", "PROTOCOL", "EMPTY", "SCHEMA", "TOOBIG", "CONSTRAINT",
	"MISMATCH", "MISUSE", "NOLFS", "AUTH", "FORMAT", "RANGE", "NOTADB",
	"NOTICE", "WARNING",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// Error is an engine-reported failure.
type Error struct {
	Code         Code
	ExtendedCode int
	Message      string
}

func (e *Error) Error() string {
	return e.Message
}

// ErrNotSupported is returned by backends for calls they cannot serve.
var ErrNotSupported = errors.New("operation not supported by this engine")

// CodeOf extracts the primary code of an engine error.
func CodeOf(err error) (Code, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return CodeOK, false
}

// Errorf builds an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, ExtendedCode: int(code), Message: fmt.Sprintf(format, args...)}
}
