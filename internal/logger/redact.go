package logger

import (
	"strings"

	"go.uber.org/zap"
)

// RedactEmail 遮蔽邮箱地址用于日志输出
//
// "jane.doe@example.com" → "ja***@example.com"，本地部分不超过 2 个字符时全部遮蔽。
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "***@***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// Email 返回已遮蔽的邮箱字段
func Email(key, email string) zap.Field {
	return zap.String(key, RedactEmail(email))
}
