package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"

	// 资源错误
	ErrCodeResourceUnavailable ErrorCode = "RESOURCE_UNAVAILABLE"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeMissingRequired  ErrorCode = "MISSING_REQUIRED"

	// 外部服务错误
	ErrCodeUpstreamUnavailable    ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodeAllBackendsUnavailable ErrorCode = "ALL_BACKENDS_UNAVAILABLE"
	ErrCodeTimeout                ErrorCode = "TIMEOUT"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"type"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewResourceUnavailable GPU等共享资源不可用
func NewResourceUnavailable(message string) *AppError {
	return &AppError{
		Code:     ErrCodeResourceUnavailable,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusServiceUnavailable,
	}
}

// NewValidationFailed 记录字段验证失败
func NewValidationFailed(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewUpstreamUnavailable 存储或模型后端连接失败
func NewUpstreamUnavailable(message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  message,
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// NewAllBackendsUnavailable 全部模型后端耗尽后的聚合错误
func NewAllBackendsUnavailable(lastErr error) *AppError {
	return &AppError{
		Code:     ErrCodeAllBackendsUnavailable,
		Message:  "не удалось получить ответ ни от одной модели",
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusInternalServerError,
		Cause:    lastErr,
	}
}

// NewNotFound 未找到匹配结果
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:     ErrCodeNotFound,
		Message:  message,
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewBadRequest 非法入参
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:     ErrCodeBadRequest,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewInternal 内部错误
func NewInternal(message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeInternalServer,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

// IsCode 检查错误链中是否包含指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError 从错误链中提取AppError
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
