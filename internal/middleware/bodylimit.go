package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// SmallBodyLimit JSON 表单请求体上限
	SmallBodyLimit = 1 * 1024 * 1024 // 1MB

	// multipartOverhead 文件之外的表单字段与 multipart 边界开销
	multipartOverhead = 1 * 1024 * 1024
)

// UploadBodyLimit 返回上传接口的请求体上限
//
// 上限留有余量，使略超文件大小限制的上传仍能到达处理器并得到明确的 400 提示，
// 而不是被 413 截断。
func UploadBodyLimit(maxFileSize int64) int64 {
	return 2*maxFileSize + multipartOverhead
}

// BodySizeLimit 限制请求体大小的中间件
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 检查 Content-Length 头
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"success": false,
				"error":   fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytes),
			})
			return
		}

		// 限制请求体读取大小
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Header("X-Max-Body-Size", strconv.FormatInt(maxBytes, 10))

		c.Next()
	}
}
