package upload

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxNameLength 清理后文件名的最大长度
const maxNameLength = 120

// SanitizeFilename 清理客户端提供的文件名
//
// 去掉目录部分（同时识别 "/" 和 "\"），删除 [A-Za-z0-9._-] 之外的全部字符，
// 去掉前导点并在保留扩展名的前提下截断长度。结果为空时返回 "upload"。
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		name = ""
	}

	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		}
		return -1
	}, name)

	name = strings.TrimLeft(name, ".")
	name = limitLength(name, maxNameLength)
	if name == "" {
		return "upload"
	}
	return name
}

// limitLength 截断文件名并保留扩展名
func limitLength(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	ext := filepath.Ext(s)
	if len(ext) >= maxLen {
		return s[:maxLen]
	}
	return strings.TrimSuffix(s, ext)[:maxLen-len(ext)] + ext
}

// Extension 返回小写且不含点的扩展名
func Extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// storedName 生成不会冲突的落盘文件名：时间戳_随机令牌_清理后的原名
func storedName(original string, now time.Time) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d_%s_%s", now.Unix(), token, SanitizeFilename(original))
}
