package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"incorvix/backend/internal/domain"
)

// testEmailRequest 测试邮件请求
type testEmailRequest struct {
	To string `json:"to" form:"to"`
}

// mailDiagnostics 返回当前邮件配置（仅诊断模式注册）
// @Summary 邮件配置诊断
// @Tags diagnostics
// @Produce json
// @Success 200 {object} service.Diagnostics
// @Router /api/test-email [get]
func (h *Handler) mailDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, h.diagnostics.Report())
}

// sendTestEmail 通过当前传输发送测试邮件（仅诊断模式注册）
// @Summary 发送测试邮件
// @Tags diagnostics
// @Accept json
// @Produce json
// @Param request body testEmailRequest false "收件地址，留空发往内部邮箱"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/test-email [post]
func (h *Handler) sendTestEmail(c *gin.Context) {
	var req testEmailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBind(&req); err != nil {
			BadRequest(c, MsgInvalidJSON, nil)
			return
		}
	}

	outcome, err := h.diagnostics.SendTest(c.Request.Context(), req.To)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			BadRequest(c, MsgInvalidEmail, ve.Fields)
			return
		}
		_ = c.Error(err)
		NotDelivered(c, http.StatusInternalServerError, "Test email could not be sent.", outcome, h.debugInfo(outcome, err))
		return
	}
	Delivered(c, "Test email sent.", outcome)
}
