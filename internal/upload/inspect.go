package upload

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// 各扩展名期望的嗅探结果
var expectedTypes = map[string][]string{
	"pdf":  {"application/pdf"},
	"doc":  {"application/msword", "application/x-ole-storage"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
}

// 一律拒绝的可执行内容
var executableTypes = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-msdownload",
	"application/x-elf",
	"application/x-executable",
	"application/x-mach-binary",
	"application/x-sharedlib",
	"application/x-sh",
	"application/x-bat",
	"text/x-php",
	"text/javascript",
}

// inspection 内容检查结果
type inspection struct {
	detected   string
	executable bool
	mismatch   bool
}

// inspectFile 嗅探文件真实类型
func inspectFile(path, ext string) (inspection, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return inspection{}, fmt.Errorf("detect content type: %w", err)
	}

	res := inspection{detected: mt.String()}
	for m := mt; m != nil; m = m.Parent() {
		for _, exe := range executableTypes {
			if m.Is(exe) {
				res.executable = true
			}
		}
	}

	if want, ok := expectedTypes[ext]; ok {
		res.mismatch = true
		for _, w := range want {
			if mt.Is(w) {
				res.mismatch = false
				break
			}
		}
	}
	return res, nil
}

// countPDFPages 尽力读取 PDF 页数，无法解析时返回 0
func countPDFPages(path string) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return r.NumPage(), nil
}
