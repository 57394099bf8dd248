package compose

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
)

// 扩展名到附件 Content-Type 的映射
var attachmentTypes = map[string]string{
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// ContentTypeFor 按扩展名（不含点，大小写不敏感）解析附件类型
func ContentTypeFor(ext string) string {
	if ct, ok := attachmentTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// envelope 待编码的邮件头部字段
type envelope struct {
	from    mail.Address
	to      []mail.Address
	replyTo *mail.Address
	subject string
	date    time.Time
	extra   map[string]string
}

// attachmentPart 待编码的附件
type attachmentPart struct {
	filename    string
	contentType string
	description string
	content     []byte
}

// header 构建顶层邮件头
//
// 边界、编码与 MIME-Version 由 go-message 负责，调用方传入的值已去除 CR/LF。
func (e *envelope) header() (gomail.Header, error) {
	var h gomail.Header
	h.SetDate(e.date)
	h.SetAddressList("From", []*gomail.Address{addrPtr(e.from)})
	to := make([]*gomail.Address, 0, len(e.to))
	for i := range e.to {
		to = append(to, addrPtr(e.to[i]))
	}
	h.SetAddressList("To", to)
	if e.replyTo != nil {
		h.SetAddressList("Reply-To", []*gomail.Address{addrPtr(*e.replyTo)})
	}
	h.SetSubject(e.subject)
	if err := h.GenerateMessageIDWithHostname(domainOf(e.from.Address)); err != nil {
		return h, fmt.Errorf("generate message id: %w", err)
	}
	for k, v := range e.extra {
		h.Set(k, v)
	}
	return h, nil
}

// encodeSingle 编码为单一 text/html 消息
func encodeSingle(env *envelope, htmlBody string) ([]byte, error) {
	h, err := env.header()
	if err != nil {
		return nil, err
	}
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(w, htmlBody); err != nil {
		return nil, fmt.Errorf("write html body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

// errAttach 标记附件写入阶段的失败
type errAttach struct{ err error }

func (e errAttach) Error() string { return e.err.Error() }
func (e errAttach) Unwrap() error { return e.err }

// encodeMixed 编码为 multipart/mixed：
// 第一部分为 multipart/alternative（纯文本 + HTML），第二部分为 base64 附件
func encodeMixed(env *envelope, textBody, htmlBody string, att *attachmentPart) ([]byte, error) {
	h, err := env.header()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create alternative part: %w", err)
	}
	if err := writeInline(iw, "text/plain", textBody); err != nil {
		return nil, err
	}
	if err := writeInline(iw, "text/html", htmlBody); err != nil {
		return nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("close alternative part: %w", err)
	}

	var ah gomail.AttachmentHeader
	ah.SetContentType(att.contentType, map[string]string{"name": att.filename})
	ah.SetFilename(att.filename)
	if att.description != "" {
		ah.Set("Content-Description", att.description)
	}
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, errAttach{fmt.Errorf("create attachment part: %w", err)}
	}
	if _, err := aw.Write(att.content); err != nil {
		return nil, errAttach{fmt.Errorf("write attachment: %w", err)}
	}
	if err := aw.Close(); err != nil {
		return nil, errAttach{fmt.Errorf("close attachment: %w", err)}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeInline(iw *gomail.InlineWriter, contentType, body string) error {
	var ih gomail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := iw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return w.Close()
}

func addrPtr(a mail.Address) *gomail.Address {
	return &gomail.Address{Name: a.Name, Address: a.Address}
}

func domainOf(addr string) string {
	if at := strings.LastIndex(addr, "@"); at >= 0 && at < len(addr)-1 {
		return addr[at+1:]
	}
	return "localhost"
}
