package httptransport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"incorvix/backend/internal/domain"
	"incorvix/backend/internal/service"
)

// applicationFields 申请表单中读取的文本字段
var applicationFields = []string{"name", "email", "phone", "position", "experience", "message"}

// cvField 简历文件字段名
const cvField = "cv"

// submitApplication 提交职位申请
// @Summary 提交职位申请
// @Description 校验表单、保存可选的简历文件，并把申请通知发送到内部邮箱；成功后向申请人发送自动回复
// @Tags careers
// @Accept multipart/form-data
// @Produce json
// @Param name formData string true "姓名"
// @Param email formData string true "邮箱"
// @Param phone formData string false "电话"
// @Param position formData string true "职位代码"
// @Param experience formData string false "工作经验"
// @Param message formData string false "求职信"
// @Param cv formData file false "简历（pdf/doc，最大 10MB）"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 405 {object} Response
// @Failure 500 {object} Response
// @Failure 504 {object} Response
// @Router /api/careers [post]
func (h *Handler) submitApplication(c *gin.Context) {
	in, err := h.readApplication(c)
	if err != nil {
		h.writeOutcome(c, &domain.DeliveryOutcome{Method: h.method}, err, applicationTexts)
		return
	}
	if c.Request.MultipartForm != nil {
		defer func() { _ = c.Request.MultipartForm.RemoveAll() }()
	}

	outcome, err := h.applications.Submit(c.Request.Context(), in)
	h.writeOutcome(c, outcome, err, applicationTexts)
}

// readApplication 解析 multipart 或 urlencoded 表单
//
// 文件部分读取失败不会中断申请，由管线降级处理；只有整个请求体超限时直接拒绝。
func (h *Handler) readApplication(c *gin.Context) (service.ApplicationInput, error) {
	in := service.ApplicationInput{Fields: make(map[string]string, len(applicationFields))}

	err := c.Request.ParseMultipartForm(h.maxMemory)
	switch {
	case err == nil:
	case errors.Is(err, http.ErrNotMultipart):
		if err := c.Request.ParseForm(); err != nil {
			h.logger.Warn("表单解析失败", zap.Error(err))
		}
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return in, &domain.UploadError{Err: domain.ErrFileTooLarge}
		}
		h.logger.Warn("multipart 请求未完整到达", zap.Error(err))
		in.FileErr = err
	}

	for _, key := range applicationFields {
		in.Fields[key] = c.Request.PostForm.Get(key)
	}

	if in.FileErr == nil {
		in.FileErr = http.ErrMissingFile
		if form := c.Request.MultipartForm; form != nil {
			if files := form.File[cvField]; len(files) > 0 && files[0].Filename != "" {
				in.File = files[0]
				in.FileErr = nil
			}
		}
	}
	return in, nil
}
