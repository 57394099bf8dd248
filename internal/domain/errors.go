package domain

import (
	"errors"
	"fmt"
	"strings"
)

// 上传与管线相关的哨兵错误
var (
	ErrInvalidFileType  = errors.New("invalid file type")
	ErrFileTooLarge     = errors.New("file too large")
	ErrCVRequired       = errors.New("cv file is required")
	ErrUploadIncomplete = errors.New("upload incomplete")
	ErrTimeout          = errors.New("submission pipeline timed out")
)

// FieldError 描述单个字段的校验失败
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// 字段失败原因
const (
	ReasonRequired = "required"
	ReasonInvalid  = "invalid"
)

// ValidationError 表单校验失败，Fields 按字段顺序列出全部违规项
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// HasMissing 是否存在必填字段缺失
func (e *ValidationError) HasMissing() bool {
	for _, f := range e.Fields {
		if f.Reason == ReasonRequired {
			return true
		}
	}
	return false
}

// FieldNames 返回违规字段名列表
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

// UploadError 上传文件被拒绝（类型或大小），用户需要修正
type UploadError struct {
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q rejected: %v", e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// AttachmentReadError 已持久化的上传文件无法读回，管线降级为无附件发送
type AttachmentReadError struct {
	Path string
	Err  error
}

func (e *AttachmentReadError) Error() string {
	return fmt.Sprintf("read attachment %s: %v", e.Path, e.Err)
}

func (e *AttachmentReadError) Unwrap() error { return e.Err }

// AttachmentAttachError 附件无法写入 MIME 消息，管线降级为无附件发送
type AttachmentAttachError struct {
	Filename string
	Err      error
}

func (e *AttachmentAttachError) Error() string {
	return fmt.Sprintf("attach %s: %v", e.Filename, e.Err)
}

func (e *AttachmentAttachError) Unwrap() error { return e.Err }

// TransportErrorKind 传输失败分类
type TransportErrorKind string

const (
	TransportAuth       TransportErrorKind = "auth"
	TransportConnection TransportErrorKind = "connection"
	TransportRejected   TransportErrorKind = "rejected"
	TransportSubmission TransportErrorKind = "submission"
)

// TransportError 邮件投递失败
type TransportError struct {
	Method string
	Kind   TransportErrorKind
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport %s failure: %v", e.Method, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsUserError 判断错误是否应由提交者修正（映射为 400）
func IsUserError(err error) bool {
	var ve *ValidationError
	var ue *UploadError
	return errors.As(err, &ve) || errors.As(err, &ue) || errors.Is(err, ErrCVRequired)
}
