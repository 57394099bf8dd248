package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultPositions 内置职位代码到显示名称的映射
var DefaultPositions = map[string]string{
	"sap-consultant":     "SAP Consultant",
	"frontend-developer": "Frontend Developer",
	"project-manager":    "Project Manager",
	"other":              "Other",
}

// PositionCatalog 职位目录
type PositionCatalog struct {
	labels map[string]string
}

// NewPositionCatalog 以内置映射为基础创建目录，overrides 中的条目覆盖同名代码
func NewPositionCatalog(overrides map[string]string) *PositionCatalog {
	labels := make(map[string]string, len(DefaultPositions)+len(overrides))
	for code, label := range DefaultPositions {
		labels[code] = label
	}
	for code, label := range overrides {
		code = strings.TrimSpace(code)
		label = strings.TrimSpace(label)
		if code == "" || label == "" {
			continue
		}
		labels[code] = label
	}
	return &PositionCatalog{labels: labels}
}

// Label 返回职位显示名称，未知代码按 "-" 转空格并首字母大写
func (c *PositionCatalog) Label(code string) string {
	if label, ok := c.labels[code]; ok {
		return label
	}
	return titleWords(strings.ReplaceAll(code, "-", " "))
}

// Len 目录条目数
func (c *PositionCatalog) Len() int {
	return len(c.labels)
}

// titleWords 仅大写每个单词的首字母，其余字符保持不变
func titleWords(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if startOfWord && !unicode.IsSpace(r) {
			r = unicode.ToUpper(r)
		}
		startOfWord = unicode.IsSpace(r)
		b.WriteRune(r)
	}
	return b.String()
}
