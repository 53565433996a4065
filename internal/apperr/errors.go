// Package apperr 定义节目生成流程的错误分类
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	// KindPrecondition 缺少出演者/节目/段落/OAuth权限等前置条件, 不重试
	KindPrecondition Kind = "precondition"
	// KindTransient 超时、限流、5xx等外部调用失败, 本地有限重试
	KindTransient Kind = "transient"
	// KindQualityGuard 合成语音静音过长等质量问题, 视为可重试
	KindQualityGuard Kind = "quality_guard"
	// KindDataIntegrity 产物缺失或引用未知ID, 直接失败
	KindDataIntegrity Kind = "data_integrity"
	// KindInternal 其他错误
	KindInternal Kind = "internal"
)

// AppError 带类别和元数据的错误
type AppError struct {
	Kind     Kind
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error 实现error接口
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(": %v", e.Cause)
	}
	return s
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error { return e.Cause }

// New 创建错误
func New(kind Kind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

// Newf 创建带格式的错误
func Newf(kind Kind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装已有错误
func Wrap(err error, kind Kind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg, Cause: err}
}

// Wrapf 包装已有错误并格式化消息
func Wrapf(err error, kind Kind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata 追加元数据
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// KindOf 返回错误链上第一个AppError的类别
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind 判断错误类别
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Kind == kind
}

// IsRetryable 临时错误和质量问题可以重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindTransient, KindQualityGuard:
		return true
	default:
		return false
	}
}
