package httptransport

import (
	"github.com/gin-gonic/gin"

	"incorvix/backend/internal/domain"
)

// submitContact 提交联系表单
// @Summary 提交联系表单
// @Tags contact
// @Accept json
// @Produce json
// @Param request body domain.ContactRequest true "联系表单"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/contact [post]
func (h *Handler) submitContact(c *gin.Context) {
	var req domain.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidJSON, nil)
		return
	}
	outcome, err := h.contacts.Submit(c.Request.Context(), &req)
	h.writeOutcome(c, outcome, err, contactTexts)
}

// submitConsultation 提交咨询预约
// @Summary 提交咨询预约
// @Tags consultation
// @Accept json
// @Produce json
// @Param request body domain.ConsultationRequest true "咨询表单"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/consultation [post]
func (h *Handler) submitConsultation(c *gin.Context) {
	var req domain.ConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidJSON, nil)
		return
	}
	outcome, err := h.consultations.Submit(c.Request.Context(), &req)
	h.writeOutcome(c, outcome, err, consultationTexts)
}
