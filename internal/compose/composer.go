package compose

import (
	"errors"
	"fmt"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"incorvix/backend/internal/config"
	"incorvix/backend/internal/domain"
)

// 固定的邮件主题与页脚
const (
	applicationReplySubject = "Thank you for your application - Incorvix"
	contactReplySubject     = "Thank you for contacting Incorvix - We'll be in touch soon!"
	testSubject             = "Test Email from Incorvix Server"
	attachmentDescription   = "CV Attachment"
	mailer                  = "incorvix-backend"
)

// Composer 构建出站邮件
//
// 所有写入邮件头的提交者数据都会先去除 CR/LF；正文中的提交者数据在模板内 HTML 转义。
type Composer struct {
	from      mail.Address
	recipient mail.Address
	positions *domain.PositionCatalog
	templates *Templates
	now       func() time.Time
}

// New 创建邮件构建器
//
// 参数:
//   - cfg: 邮件配置（发件人、内部收件人）
//   - positions: 职位目录，nil 时使用内置映射
func New(cfg config.MailConfig, positions *domain.PositionCatalog) (*Composer, error) {
	if positions == nil {
		positions = domain.NewPositionCatalog(nil)
	}
	tpls, err := NewTemplates()
	if err != nil {
		return nil, err
	}
	return &Composer{
		from:      mail.Address{Name: domain.SanitizeHeader(cfg.FromName), Address: domain.SanitizeHeader(cfg.FromAddress)},
		recipient: mail.Address{Address: domain.SanitizeHeader(cfg.Recipient)},
		positions: positions,
		templates: tpls,
		now:       time.Now,
	}, nil
}

// Recipient 内部通知收件地址
func (c *Composer) Recipient() string { return c.recipient.Address }

// ApplicationSubject 职位申请通知主题
func (c *Composer) ApplicationSubject(sub *domain.Submission) string {
	return domain.SanitizeHeader(fmt.Sprintf("New Job Application from %s - Position: %s",
		sub.Name, c.positions.Label(sub.Position)))
}

// Application 构建职位申请通知邮件
//
// 参数:
//   - sub: 已校验的申请
//   - doc: 上传的简历，可为 nil
//   - content: 简历内容；为 nil 时即使 doc 非空也不附加附件（读取失败的降级路径）
//
// 返回值:
//   - *domain.ComposedMessage: 有附件时为 multipart/mixed，否则为单一 text/html
//   - error: 附件写入失败时为 *domain.AttachmentAttachError，调用方可传 nil content 重建
func (c *Composer) Application(sub *domain.Submission, doc *domain.UploadedDocument, content []byte) (*domain.ComposedMessage, error) {
	bindings := liquid.Bindings{
		"name":       sub.Name,
		"email":      sub.Email,
		"phone":      orDefault(sub.Phone, "Not provided"),
		"position":   c.positions.Label(sub.Position),
		"experience": orDefault(sub.Experience, "Not specified"),
		"message":    sub.Message,
		"cv_name":    "",
		"cv_size_kb": "",
		"cv_pages":   0,
	}
	footer := "This job application was submitted from the Incorvix website careers page."
	if doc != nil {
		bindings["cv_name"] = attachmentName(doc)
		bindings["cv_size_kb"] = fmt.Sprintf("%.2f", doc.SizeKB())
		bindings["cv_pages"] = doc.Pages
		if content != nil {
			footer += "<br>The CV file is attached to this email."
		} else {
			footer += "<br>The CV file could not be attached to this email."
		}
	}

	htmlBody, err := c.templates.Render(tplApplication, "New Job Application", footer, bindings)
	if err != nil {
		return nil, err
	}

	replyTo := mail.Address{Name: domain.SanitizeHeader(sub.Name), Address: domain.SanitizeHeader(sub.Email)}
	env := &envelope{
		from:    c.from,
		to:      []mail.Address{c.recipient},
		replyTo: &replyTo,
		subject: c.ApplicationSubject(sub),
		date:    c.now(),
		extra:   map[string]string{"X-Mailer": mailer},
	}

	if doc == nil || content == nil {
		return c.single(domain.KindNotification, env, htmlBody)
	}

	textBody, err := PlainText(htmlBody)
	if err != nil {
		return nil, fmt.Errorf("render plain text: %w", err)
	}
	att := &attachmentPart{
		filename:    attachmentName(doc),
		contentType: ContentTypeFor(doc.Extension),
		description: attachmentDescription,
		content:     content,
	}
	raw, err := encodeMixed(env, textBody, htmlBody, att)
	if err != nil {
		var ae errAttach
		if errors.As(err, &ae) {
			return nil, &domain.AttachmentAttachError{Filename: att.filename, Err: ae.err}
		}
		return nil, err
	}

	return &domain.ComposedMessage{
		Kind:    domain.KindNotification,
		Subject: env.subject,
		From:    env.from,
		To:      env.to,
		ReplyTo: env.replyTo,
		HTML:    htmlBody,
		Text:    textBody,
		Attachment: &domain.AttachmentInfo{
			Filename:    att.filename,
			ContentType: att.contentType,
			Size:        len(content),
		},
		Raw: raw,
	}, nil
}

// ApplicationReply 构建发给申请人的自动回复
func (c *Composer) ApplicationReply(sub *domain.Submission) (*domain.ComposedMessage, error) {
	htmlBody, err := c.templates.Render(tplApplicationReply, "Thank You for Your Application!", "", liquid.Bindings{
		"name":     sub.Name,
		"position": c.positions.Label(sub.Position),
		"contact":  c.recipient.Address,
	})
	if err != nil {
		return nil, err
	}
	return c.reply(sub.Name, sub.Email, applicationReplySubject, htmlBody)
}

// Contact 构建联系表单通知邮件
func (c *Composer) Contact(req *domain.ContactRequest) (*domain.ComposedMessage, error) {
	htmlBody, err := c.templates.Render(tplContact, "New Contact Form Submission",
		"This message was submitted from the Incorvix website contact form.",
		liquid.Bindings{"name": req.Name, "email": req.Email, "message": req.Message})
	if err != nil {
		return nil, err
	}
	return c.notification(req.Name, req.Email, "New Contact Form Submission from "+req.Name, htmlBody)
}

// ContactReply 构建联系表单自动回复
func (c *Composer) ContactReply(req *domain.ContactRequest) (*domain.ComposedMessage, error) {
	htmlBody, err := c.templates.Render(tplContactReply, "Thank You for Contacting Incorvix!", "",
		liquid.Bindings{"name": req.Name, "contact": c.recipient.Address})
	if err != nil {
		return nil, err
	}
	return c.reply(req.Name, req.Email, contactReplySubject, htmlBody)
}

// Consultation 构建咨询预约通知邮件
func (c *Composer) Consultation(req *domain.ConsultationRequest) (*domain.ComposedMessage, error) {
	htmlBody, err := c.templates.Render(tplConsultation, "New Consultation Request",
		"This consultation request was submitted from the Incorvix website.",
		liquid.Bindings{
			"name":    req.FullName(),
			"email":   req.Email,
			"company": req.Company,
			"service": req.Service,
			"message": req.Message,
		})
	if err != nil {
		return nil, err
	}
	return c.notification(req.FullName(), req.Email, "New Consultation Request from "+req.FullName(), htmlBody)
}

// ConsultationReply 构建咨询预约自动回复
func (c *Composer) ConsultationReply(req *domain.ConsultationRequest) (*domain.ComposedMessage, error) {
	htmlBody, err := c.templates.Render(tplConsultationReply, "Thank You for Your Consultation Request!", "",
		liquid.Bindings{"name": req.FullName(), "contact": c.recipient.Address})
	if err != nil {
		return nil, err
	}
	return c.reply(req.FullName(), req.Email, contactReplySubject, htmlBody)
}

// Test 构建诊断用测试邮件，to 为空时发往内部收件地址
func (c *Composer) Test(to, transport string) (*domain.ComposedMessage, error) {
	rcpt := c.recipient
	if to != "" {
		rcpt = mail.Address{Address: domain.SanitizeHeader(to)}
	}
	now := c.now()
	htmlBody, err := c.templates.Render(tplTest, "Incorvix Mail Test", "", liquid.Bindings{
		"transport": transport,
		"sent_at":   now.Format("2006-01-02 15:04:05 MST"),
	})
	if err != nil {
		return nil, err
	}
	env := &envelope{
		from:    c.from,
		to:      []mail.Address{rcpt},
		subject: testSubject,
		date:    now,
		extra:   map[string]string{"X-Mailer": mailer},
	}
	return c.single(domain.KindTest, env, htmlBody)
}

// notification 构建发往内部收件地址、Reply-To 为提交者的单一 HTML 邮件
func (c *Composer) notification(name, email, subject, htmlBody string) (*domain.ComposedMessage, error) {
	replyTo := mail.Address{Name: domain.SanitizeHeader(name), Address: domain.SanitizeHeader(email)}
	return c.single(domain.KindNotification, &envelope{
		from:    c.from,
		to:      []mail.Address{c.recipient},
		replyTo: &replyTo,
		subject: domain.SanitizeHeader(subject),
		date:    c.now(),
		extra:   map[string]string{"X-Mailer": mailer},
	}, htmlBody)
}

// reply 构建发给提交者的自动回复，不带附件
func (c *Composer) reply(name, email, subject, htmlBody string) (*domain.ComposedMessage, error) {
	to := mail.Address{Name: domain.SanitizeHeader(name), Address: domain.SanitizeHeader(email)}
	return c.single(domain.KindAutoReply, &envelope{
		from:    c.from,
		to:      []mail.Address{to},
		subject: subject,
		date:    c.now(),
		extra: map[string]string{
			"X-Mailer":       mailer,
			"Auto-Submitted": "auto-replied",
		},
	}, htmlBody)
}

func (c *Composer) single(kind domain.MessageKind, env *envelope, htmlBody string) (*domain.ComposedMessage, error) {
	raw, err := encodeSingle(env, htmlBody)
	if err != nil {
		return nil, err
	}
	return &domain.ComposedMessage{
		Kind:    kind,
		Subject: env.subject,
		From:    env.from,
		To:      env.to,
		ReplyTo: env.replyTo,
		HTML:    htmlBody,
		Raw:     raw,
	}, nil
}

// attachmentName 附件显示名：客户端原始文件名去掉目录部分和控制字符
func attachmentName(doc *domain.UploadedDocument) string {
	name := path.Base(strings.ReplaceAll(doc.OriginalName, "\\", "/"))
	name = domain.SanitizeHeader(name)
	if name == "" || name == "." || name == "/" {
		return doc.StoredName
	}
	return name
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
