package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind string

const (
	KindValidation Kind = "validation" // 分数或参数不合法
	KindNotFound   Kind = "not_found"  // 记录不存在
	KindConflict   Kind = "conflict"   // 版本冲突或重复
	KindPermission Kind = "permission" // 操作人无权限
	KindState      Kind = "state"      // 当前状态不允许该操作
)

// Error 业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同类错误视为相等,便于 errors.Is(err, apperr.ErrConflict) 这样的判断
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// 哨兵错误,只用于 errors.Is 比较
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrPermission = &Error{Kind: KindPermission}
	ErrState      = &Error{Kind: KindState}
)

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation 创建校验错误
func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

// NotFound 创建不存在错误
func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

// Conflict 创建冲突错误
func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

// Permission 创建权限错误
func Permission(format string, args ...interface{}) *Error {
	return newf(KindPermission, format, args...)
}

// State 创建状态错误
func State(format string, args ...interface{}) *Error {
	return newf(KindState, format, args...)
}

// KindOf 返回错误链中第一个业务错误的分类,非业务错误返回空字符串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
