package responder

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/agentchat/types"
)

// Class 是 Responder 失败的分类。
type Class int

const (
	// ClassTransient Agent 继续运行，错误以消息形式进入历史。
	ClassTransient Class = iota
	// ClassFatal Agent 终止并向编排方报告。
	ClassFatal
	// ClassCancelled 调用被取消，部分输出被丢弃。
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	case ClassCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// RespondError 是显式分类的 Responder 错误。
type RespondError struct {
	Class Class
	Err   error
}

func (e *RespondError) Error() string {
	return fmt.Sprintf("respond %s: %v", e.Class, e.Err)
}

func (e *RespondError) Unwrap() error { return e.Err }

// Code 返回对应的错误码。
func (e *RespondError) Code() types.ErrorCode {
	if e.Class == ClassFatal {
		return types.ErrRespondFatal
	}
	return types.ErrRespondTransient
}

// Transient 将 err 标记为可恢复。
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &RespondError{Class: ClassTransient, Err: err}
}

// Fatal 将 err 标记为致命。
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &RespondError{Class: ClassFatal, Err: err}
}

// Classify 返回错误分类。
//   - 显式的 RespondError 按其 Class
//   - context.Canceled 视为取消（超时仍属可恢复）
//   - 不可重试的 FATAL / INVALID_REQUEST 错误码视为致命
//   - 其他一律视为可恢复
func Classify(err error) Class {
	var re *RespondError
	if errors.As(err, &re) {
		return re.Class
	}
	if errors.Is(err, context.Canceled) {
		return ClassCancelled
	}
	if e, ok := types.AsError(err); ok && !e.Retryable {
		switch e.Code {
		case types.ErrFatal, types.ErrInvalidRequest, types.ErrRespondFatal:
			return ClassFatal
		}
	}
	return ClassTransient
}

// IsFatal 报告 err 是否为致命错误。
func IsFatal(err error) bool {
	return err != nil && Classify(err) == ClassFatal
}

// AsTypedError 将 Responder 错误转换为带错误码的 *types.Error，用于错误消息。
func AsTypedError(err error) *types.Error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	code := types.ErrRespondTransient
	if Classify(err) == ClassFatal {
		code = types.ErrRespondFatal
	}
	return types.NewError(code, "responder failed").WithCause(err)
}
