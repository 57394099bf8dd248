package domain

import (
	"net/mail"
	"strings"
	"time"
)

// Submission 一次职位申请的表单数据，仅在单个请求内存在
type Submission struct {
	ID         string `json:"-"`
	Name       string `json:"name" form:"name" validate:"required"`
	Email      string `json:"email" form:"email" validate:"required,applicant_email"`
	Phone      string `json:"phone" form:"phone"`
	Position   string `json:"position" form:"position" validate:"required"`
	Experience string `json:"experience" form:"experience"`
	Message    string `json:"message" form:"message"`
}

// ContactRequest 联系表单
type ContactRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,applicant_email"`
	Message string `json:"message" validate:"required"`
}

// ConsultationRequest 咨询预约表单
type ConsultationRequest struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,applicant_email"`
	Company   string `json:"company" validate:"required"`
	Service   string `json:"service" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

// FullName 拼接姓名
func (r *ConsultationRequest) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// UploadedDocument 通过校验并已落盘的简历文件
//
// 文件归当前请求独占，管线结束后必须删除 Path 指向的文件。
type UploadedDocument struct {
	OriginalName string
	StoredName   string
	Path         string
	Size         int64
	DeclaredType string
	DetectedType string
	Extension    string
	Pages        int
	SizeMismatch bool
	UploadedAt   time.Time
}

// SizeKB 以 KB 表示的文件大小
func (d *UploadedDocument) SizeKB() float64 {
	return float64(d.Size) / 1024
}

// MessageKind 出站邮件类别
type MessageKind string

const (
	KindNotification MessageKind = "notification"
	KindAutoReply    MessageKind = "auto_reply"
	KindTest         MessageKind = "test"
)

// AttachmentInfo 已写入消息的附件摘要
type AttachmentInfo struct {
	Filename    string
	ContentType string
	Size        int
}

// ComposedMessage 构建完成的出站邮件，构建后不再修改
type ComposedMessage struct {
	Kind       MessageKind
	Subject    string
	From       mail.Address
	To         []mail.Address
	ReplyTo    *mail.Address
	HTML       string
	Text       string
	Attachment *AttachmentInfo
	// Raw 完整的 RFC 5322 消息（头部 + 正文），CRLF 行尾
	Raw []byte
}

// EnvelopeFrom SMTP 信封发件人
func (m *ComposedMessage) EnvelopeFrom() string {
	return m.From.Address
}

// Recipients SMTP 信封收件人
func (m *ComposedMessage) Recipients() []string {
	rcpts := make([]string, 0, len(m.To))
	for _, a := range m.To {
		rcpts = append(rcpts, a.Address)
	}
	return rcpts
}

// 附件状态取值
const (
	AttachmentSuccess    = "success"
	AttachmentNoUpload   = "no_file_uploaded"
	attachmentFailPrefix = "failed: "
)

// AttachmentFailed 构造 "failed: <reason>" 形式的附件状态
func AttachmentFailed(reason string) string {
	return attachmentFailPrefix + reason
}

// DeliveryOutcome 管线执行结果，决定 HTTP 响应
type DeliveryOutcome struct {
	SubmissionID     string
	Success          bool
	Err              error
	AttachmentStatus string
	Warnings         []string
	Method           string
	Recipient        string
	AutoReplySent    bool
}
