package api

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/kasuganosora/sqlsession/pkg/engine"
)

// Error 是 Session 和 Cursor 所有调用返回的错误类型，
// 带有错误类别、引擎结果码（若有）以及产生时的调用堆栈
type Error struct {
	Code       ErrorCode
	Message    string
	EngineCode engine.Code
	Stack      []string // 调用堆栈
	Cause      error    // 原始错误
}

// ErrorCode 错误类别
type ErrorCode string

const (
	ErrCodeWarning      ErrorCode = "Warning"
	ErrCodeInterface    ErrorCode = "InterfaceError"
	ErrCodeDatabase     ErrorCode = "DatabaseError"
	ErrCodeData         ErrorCode = "DataError"
	ErrCodeOperational  ErrorCode = "OperationalError"
	ErrCodeIntegrity    ErrorCode = "IntegrityError"
	ErrCodeInternal     ErrorCode = "InternalError"
	ErrCodeProgramming  ErrorCode = "ProgrammingError"
	ErrCodeNotSupported ErrorCode = "NotSupportedError"
	ErrCodeType         ErrorCode = "TypeError"
)

// 用于 errors.Is 的哨兵错误，ErrDatabase 匹配所有数据库子类
var (
	ErrWarning      = &Error{Code: ErrCodeWarning}
	ErrInterface    = &Error{Code: ErrCodeInterface}
	ErrDatabase     = &Error{Code: ErrCodeDatabase}
	ErrData         = &Error{Code: ErrCodeData}
	ErrOperational  = &Error{Code: ErrCodeOperational}
	ErrIntegrity    = &Error{Code: ErrCodeIntegrity}
	ErrInternal     = &Error{Code: ErrCodeInternal}
	ErrProgramming  = &Error{Code: ErrCodeProgramming}
	ErrNotSupported = &Error{Code: ErrCodeNotSupported}
	ErrType         = &Error{Code: ErrCodeType}
)

// Error 接口实现
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误类别匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return t.Code == ErrCodeDatabase && isDatabaseSubclass(e.Code)
}

func isDatabaseSubclass(code ErrorCode) bool {
	switch code {
	case ErrCodeData, ErrCodeOperational, ErrCodeIntegrity, ErrCodeInternal,
		ErrCodeProgramming, ErrCodeNotSupported:
		return true
	}
	return false
}

// StackTrace 返回调用堆栈
func (e *Error) StackTrace() []string {
	return e.Stack
}

// NewError 创建错误
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(),
		Cause:   cause,
	}
}

// WrapError 包装错误
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}

	// 如果已经是我们的错误类型，保留原有堆栈
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return &Error{
			Code:       code,
			Message:    message,
			EngineCode: apiErr.EngineCode,
			Stack:      apiErr.Stack,
			Cause:      apiErr,
		}
	}

	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(),
		Cause:   err,
	}
}

// engineError 把引擎错误映射到错误类别
func engineError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, engine.ErrNotSupported) {
		return &Error{
			Code:    ErrCodeNotSupported,
			Message: err.Error(),
			Stack:   captureStackTrace(),
			Cause:   err,
		}
	}

	var ee *engine.Error
	if !errors.As(err, &ee) {
		return &Error{Code: ErrCodeDatabase, Message: err.Error(), Stack: captureStackTrace(), Cause: err}
	}
	return &Error{
		Code:       classify(ee.Code),
		Message:    ee.Message,
		EngineCode: ee.Code,
		Stack:      captureStackTrace(),
		Cause:      err,
	}
}

func classify(code engine.Code) ErrorCode {
	switch code {
	case engine.CodeInternal, engine.CodeNotFound:
		return ErrCodeInternal
	case engine.CodeError, engine.CodePerm, engine.CodeAbort, engine.CodeBusy,
		engine.CodeLocked, engine.CodeReadOnly, engine.CodeInterrupt, engine.CodeIOErr,
		engine.CodeFull, engine.CodeCantOpen, engine.CodeProtocol, engine.CodeEmpty,
		engine.CodeSchema:
		return ErrCodeOperational
	case engine.CodeCorrupt:
		return ErrCodeDatabase
	case engine.CodeTooBig:
		return ErrCodeData
	case engine.CodeConstraint, engine.CodeMismatch:
		return ErrCodeIntegrity
	case engine.CodeMisuse:
		return ErrCodeProgramming
	default:
		return ErrCodeDatabase
	}
}

// captureStackTrace 捕获调用堆栈
func captureStackTrace() []string {
	pc := make([]uintptr, 32)
	n := runtime.Callers(3, pc) // 跳过前3层

	if n == 0 {
		return []string{}
	}

	frames := runtime.CallersFrames(pc[:n])
	stack := make([]string, 0, n)

	for {
		frame, more := frames.Next()

		fn := frame.Function
		file := frame.File
		if idx := strings.LastIndex(file, "/"); idx != -1 {
			file = file[idx+1:]
		}
		if idx := strings.LastIndex(fn, "/"); idx != -1 {
			fn = fn[idx+1:]
		}
		stack = append(stack, fmt.Sprintf("  at %s (%s:%d)", fn, file, frame.Line))

		if !more {
			break
		}
	}

	return stack
}

// IsErrorCode 检查错误码
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// GetErrorCode 获取错误码
func GetErrorCode(err error) ErrorCode {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func closedSessionError() error {
	return NewError(ErrCodeProgramming, "Cannot operate on a closed database.", nil)
}

func closedCursorError() error {
	return NewError(ErrCodeProgramming, "Cannot operate on a closed cursor.", nil)
}
