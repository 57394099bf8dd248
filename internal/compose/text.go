package compose

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 渲染为纯文本时在其后换行的块级元素
const blockSelector = "p, div, h1, h2, h3, h4, h5, h6, li, tr"

// PlainText 将 HTML 正文转换为纯文本备选内容
//
// 删除 head/style/script，<br> 与块级元素转为换行，每行去除首尾空白并合并连续空行。
func PlainText(htmlBody string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return "", err
	}

	doc.Find("head, style, script").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	raw := doc.Find("body").Text()

	var b strings.Builder
	blank := true
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				b.WriteString("\n")
			}
			blank = true
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
		blank = false
	}
	return strings.TrimSpace(b.String()) + "\n", nil
}
