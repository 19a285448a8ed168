// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeUnknown         ErrorCode = "1000"
	CodeInvalidParam    ErrorCode = "1001"
	CodeNotFound        ErrorCode = "1004"
	CodeTooManyRequests ErrorCode = "1006"
	CodeInternalError   ErrorCode = "1007"

	// 资源错误 (3xxx)
	CodeLessonNotFound ErrorCode = "3001"

	// 生成错误 (4xxx)
	CodeGenerationFailed ErrorCode = "4001"

	// 规则/护栏错误 (6xxx)：配置完整性错误，不重试
	CodeUnknownRuleKind      ErrorCode = "6001"
	CodeVersionNotFound      ErrorCode = "6002"
	CodeUnresolvableConflict ErrorCode = "6003"
	CodeRuleSetInvalid       ErrorCode = "6004"
	CodeUnflaggedViolation   ErrorCode = "6005"
	CodePipelineTimeout      ErrorCode = "6006"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", e.Message, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使 errors.Is(err, ErrXxx) 穿透包装生效
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithDetail 返回带详细信息的副本，避免修改预定义错误
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 返回带底层错误的副本
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码；冲突与规则集损坏属于服务端配置问题，按 500 处理
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeNotFound, CodeLessonNotFound, CodeUnknownRuleKind, CodeVersionNotFound:
		return http.StatusNotFound
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeGenerationFailed:
		return http.StatusBadGateway
	case CodePipelineTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam  = New(CodeInvalidParam, "invalid parameter")
	ErrInternalError = New(CodeInternalError, "internal server error")

	ErrLessonNotFound = New(CodeLessonNotFound, "lesson not found")

	ErrGenerationFailed = New(CodeGenerationFailed, "lesson generation failed")

	ErrUnknownRuleKind      = New(CodeUnknownRuleKind, "unknown rule set key")
	ErrVersionNotFound      = New(CodeVersionNotFound, "rule set version not found")
	ErrUnresolvableConflict = New(CodeUnresolvableConflict, "unresolvable directive conflict")
	ErrRuleSetInvalid       = New(CodeRuleSetInvalid, "rule set failed validation")
	ErrUnflaggedViolation   = New(CodeUnflaggedViolation, "violating artifact must be flagged for review")
	ErrPipelineTimeout      = New(CodePipelineTimeout, "pipeline exceeded overall timeout")
)

// IsAppError 检查错误链中是否存在 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
