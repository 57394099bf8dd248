package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"incorvix/backend/internal/domain"
)

// Response 表单接口统一响应结构
//
// 字段按需出现：校验失败只有 success/error/fields，投递结果附带邮件信息。
type Response struct {
	Success          bool                `json:"success"`
	Message          string              `json:"message,omitempty"`
	Error            string              `json:"error,omitempty"`
	Fields           []domain.FieldError `json:"fields,omitempty"`
	EmailSent        *bool               `json:"email_sent,omitempty"`
	EmailTo          string              `json:"email_to,omitempty"`
	AttachmentStatus string              `json:"attachment_status,omitempty"`
	EmailMethod      string              `json:"email_method,omitempty"`
	Debug            gin.H               `json:"debug,omitempty"`
}

// Delivered 投递成功响应（200）
func Delivered(c *gin.Context, msg string, outcome *domain.DeliveryOutcome) {
	sent := true
	c.JSON(http.StatusOK, Response{
		Success:          true,
		Message:          msg,
		EmailSent:        &sent,
		EmailTo:          outcome.Recipient,
		AttachmentStatus: outcome.AttachmentStatus,
		EmailMethod:      outcome.Method,
	})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string, fields []domain.FieldError) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Fields:  fields,
	})
}

// NotDelivered 投递失败（500 / 504），debug 仅在诊断模式下传入
func NotDelivered(c *gin.Context, status int, msg string, outcome *domain.DeliveryOutcome, debug gin.H) {
	sent := false
	c.JSON(status, Response{
		Success:          false,
		Error:            msg,
		EmailSent:        &sent,
		AttachmentStatus: outcome.AttachmentStatus,
		EmailMethod:      outcome.Method,
		Debug:            debug,
	})
}

// Error 通用错误响应
func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{
		Success: false,
		Error:   msg,
	})
}
