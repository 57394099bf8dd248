package compose

import (
	"embed"
	"fmt"
	"html"
	"strings"

	"github.com/osteele/liquid"
)

//go:embed templates/*.liquid
var templateFS embed.FS

// 模板名称
const (
	tplLayout            = "layout"
	tplApplication       = "application"
	tplApplicationReply  = "application_reply"
	tplContact           = "contact"
	tplContactReply      = "contact_reply"
	tplConsultation      = "consultation"
	tplConsultationReply = "consultation_reply"
	tplTest              = "test"
)

// Templates 预解析的 Liquid 邮件模板
type Templates struct {
	engine *liquid.Engine
	parsed map[string]*liquid.Template
}

// NewTemplates 解析全部内嵌模板
func NewTemplates() (*Templates, error) {
	engine := liquid.NewEngine()

	// {{ user_input | escape }}
	engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})
	// {{ message | escape | nl2br }}
	engine.RegisterFilter("nl2br", func(s string) string {
		s = strings.ReplaceAll(s, "\r\n", "\n")
		return strings.ReplaceAll(s, "\n", "<br>\n")
	})

	t := &Templates{engine: engine, parsed: make(map[string]*liquid.Template)}
	names := []string{
		tplLayout, tplApplication, tplApplicationReply, tplContact,
		tplContactReply, tplConsultation, tplConsultationReply, tplTest,
	}
	for _, name := range names {
		src, err := templateFS.ReadFile("templates/" + name + ".liquid")
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		tpl, serr := engine.ParseTemplate(src)
		if serr != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, serr)
		}
		t.parsed[name] = tpl
	}
	return t, nil
}

// Render 渲染正文模板并套入公共布局
//
// 参数:
//   - name: 正文模板名称
//   - title: 页眉标题
//   - footer: 页脚 HTML，调用方保证已转义
//   - bindings: 模板变量，所有用户输入在模板内经过 escape 过滤器
func (t *Templates) Render(name, title, footer string, bindings liquid.Bindings) (string, error) {
	tpl, ok := t.parsed[name]
	if !ok {
		return "", fmt.Errorf("unknown template %s", name)
	}
	content, serr := tpl.RenderString(bindings)
	if serr != nil {
		return "", fmt.Errorf("render template %s: %w", name, serr)
	}

	out, serr := t.parsed[tplLayout].RenderString(liquid.Bindings{
		"title":   title,
		"content": content,
		"footer":  footer,
	})
	if serr != nil {
		return "", fmt.Errorf("render layout: %w", serr)
	}
	return out, nil
}
