package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind 是稳定的错误分类，API 层据此映射 HTTP 状态码。
type Kind string

const (
	KindValidation Kind = "validation"
	KindDuplicate  Kind = "duplicate"
	KindCapacity   Kind = "capacity"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

// Error 携带错误分类、可读消息以及按字段聚合的校验信息。
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "; %s: %s", k, strings.Join(e.Fields[k], ", "))
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// WithField 追加一条字段级消息。
func (e *Error) WithField(field, msg string) *Error {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
	return e
}

// New 构造不带底层错误的 Error。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 包装底层错误，err 为 nil 时等价于 New。
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Field 构造单字段错误。
func Field(kind Kind, field, msg string) *Error {
	return New(kind, msg).WithField(field, msg)
}

func Validation(field, msg string) *Error { return Field(KindValidation, field, msg) }
func Duplicate(field, msg string) *Error  { return Field(KindDuplicate, field, msg) }
func Capacity(field, msg string) *Error   { return Field(KindCapacity, field, msg) }
func NotFound(field, msg string) *Error   { return Field(KindNotFound, field, msg) }
func Forbidden(msg string) *Error         { return New(KindForbidden, msg) }

// Internal 用于无法归类的存储层或系统错误。
func Internal(err error, msg string) *Error { return Wrap(err, KindInternal, msg) }

// As 返回错误链中的 *Error。
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is 判断错误链中是否存在指定分类的 *Error。
func Is(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// Prefix 为所有字段名加上前缀，用于嵌套集合中的条目，例如 "hard_skills[2]."。
func Prefix(err error, prefix string) error {
	ae, ok := As(err)
	if !ok || len(ae.Fields) == 0 {
		return err
	}
	fields := make(map[string][]string, len(ae.Fields))
	for k, v := range ae.Fields {
		fields[prefix+k] = v
	}
	return &Error{Kind: ae.Kind, Message: ae.Message, Fields: fields, Err: ae.Err}
}
