package errors

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// IsTransient 判断错误是否为瞬时错误（超时、连接失败、响应异常）
// 重试策略仅对瞬时错误生效，认证和验证错误直接失败
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case ErrCodeTimeout, ErrCodeUpstreamUnavailable:
			return true
		case ErrCodeValidationFailed, ErrCodeBadRequest, ErrCodeMissingRequired:
			return false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// 上游SDK未包装的超时文案
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "malformed response") || strings.Contains(msg, "unexpected response") {
		return true
	}

	return false
}
