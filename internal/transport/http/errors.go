package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"incorvix/backend/internal/domain"
)

// 通用错误消息
const (
	MsgMethodNotAllowed = "Method not allowed. Only POST requests are accepted."
	MsgInvalidEmail     = "Invalid email format"
	MsgInvalidFileType  = "Invalid file type. Only PDF and DOC files are allowed."
	MsgFileTooLarge     = "File size exceeds 10MB limit."
	MsgCVRequired       = "CV file is required."
	MsgInvalidJSON      = "Invalid request body. Expected a JSON object."
	MsgNotFound         = "Not found"
	MsgInternalError    = "Internal server error"
)

// formTexts 各表单面向提交者的提示文本
type formTexts struct {
	success string
	missing string
	failure string
	timeout string
}

var (
	applicationTexts = formTexts{
		success: "Thank you for your application! We'll review your CV and get back to you soon.",
		missing: "Missing required fields: name, email, and position are required",
		failure: "Failed to send email. Please try again later or contact us directly.",
		timeout: "Request timed out while sending your application. Please try again later.",
	}
	contactTexts = formTexts{
		success: "Thank you for your message! We'll get back to you within 24 hours.",
		missing: "Missing required fields: name, email, and message are required",
		failure: "Failed to send message. Please try again later or contact us directly.",
		timeout: "Request timed out while sending your message. Please try again later.",
	}
	consultationTexts = formTexts{
		success: "Thank you for your consultation request! We'll get back to you within 24 hours.",
		missing: "All fields are required",
		failure: "Failed to send consultation request. Please try again later.",
		timeout: "Request timed out while sending your consultation request. Please try again later.",
	}
)

// userErrorMessage 把提交者可修正的错误映射为提示文本
//
// 返回值:
//   - string: 提示文本
//   - []domain.FieldError: 字段级详情
//   - bool: err 是否属于提交者错误
func userErrorMessage(err error, texts formTexts) (string, []domain.FieldError, bool) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		if ve.HasMissing() {
			return texts.missing, ve.Fields, true
		}
		return MsgInvalidEmail, ve.Fields, true
	case errors.Is(err, domain.ErrInvalidFileType):
		return MsgInvalidFileType, []domain.FieldError{{Field: "cv", Reason: domain.ReasonInvalid}}, true
	case errors.Is(err, domain.ErrFileTooLarge):
		return MsgFileTooLarge, []domain.FieldError{{Field: "cv", Reason: domain.ReasonInvalid}}, true
	case errors.Is(err, domain.ErrCVRequired):
		return MsgCVRequired, []domain.FieldError{{Field: "cv", Reason: domain.ReasonRequired}}, true
	}
	return "", nil, false
}

// writeOutcome 根据管线结果写出响应
func (h *Handler) writeOutcome(c *gin.Context, outcome *domain.DeliveryOutcome, err error, texts formTexts) {
	if err == nil {
		Delivered(c, texts.success, outcome)
		return
	}
	if msg, fields, ok := userErrorMessage(err, texts); ok {
		BadRequest(c, msg, fields)
		return
	}

	_ = c.Error(err)
	status, msg := http.StatusInternalServerError, texts.failure
	if errors.Is(err, domain.ErrTimeout) {
		status, msg = http.StatusGatewayTimeout, texts.timeout
	}
	NotDelivered(c, status, msg, outcome, h.debugInfo(outcome, err))
}

// debugInfo 诊断模式下附带的错误详情，不含凭证
func (h *Handler) debugInfo(outcome *domain.DeliveryOutcome, err error) gin.H {
	if !h.debug {
		return nil
	}
	info := gin.H{
		"mail_error":        err.Error(),
		"transport":         outcome.Method,
		"attachment_status": outcome.AttachmentStatus,
	}
	var te *domain.TransportError
	if errors.As(err, &te) {
		info["failure_kind"] = string(te.Kind)
	}
	if len(outcome.Warnings) > 0 {
		info["warnings"] = outcome.Warnings
	}
	return info
}
