package compose

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incorvix/backend/internal/config"
	"incorvix/backend/internal/domain"
)

func newTestComposer(t *testing.T) *Composer {
	t.Helper()
	c, err := New(config.MailConfig{
		Recipient:   "contact@incorvix.nl",
		FromAddress: "contact@incorvix.nl",
		FromName:    "Incorvix Website",
	}, nil)
	require.NoError(t, err)
	fixed := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	return c
}

func janeDoe() *domain.Submission {
	return &domain.Submission{
		Name:       "Jane Doe",
		Email:      "jane@example.com",
		Phone:      "+31 6 1234 5678",
		Position:   "frontend-developer",
		Experience: "5 years",
		Message:    "Hello,\nI <3 React & TypeScript.",
	}
}

func resumeDoc(size int) (*domain.UploadedDocument, []byte) {
	content := make([]byte, size)
	copy(content, "%PDF-1.4\n")
	for i := 9; i < size; i++ {
		content[i] = byte(i * 7 % 251)
	}
	return &domain.UploadedDocument{
		OriginalName: "resume.pdf",
		StoredName:   "1700000000_abc_resume.pdf",
		Size:         int64(size),
		Extension:    "pdf",
	}, content
}

// describe 按结构展开 MIME 实体，忽略边界与 Message-Id
func describe(t *testing.T, e *message.Entity, depth int) []string {
	t.Helper()
	var out []string
	fields := e.Header.Fields()
	for fields.Next() {
		key := fields.Key()
		if strings.EqualFold(key, "Message-Id") {
			continue
		}
		value := fields.Value()
		if strings.EqualFold(key, "Content-Type") {
			mediaType, params, err := e.Header.ContentType()
			require.NoError(t, err)
			delete(params, "boundary")
			value = fmt.Sprintf("%s %v", mediaType, params)
		}
		out = append(out, fmt.Sprintf("%d %s: %s", depth, key, value))
	}

	if mr := e.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			out = append(out, describe(t, p, depth+1)...)
		}
		return out
	}
	body, err := io.ReadAll(e.Body)
	require.NoError(t, err)
	return append(out, fmt.Sprintf("%d body: %x", depth, body))
}

func TestApplicationWithAttachment(t *testing.T) {
	c := newTestComposer(t)
	doc, content := resumeDoc(50 * 1024)

	msg, err := c.Application(janeDoe(), doc, content)
	require.NoError(t, err)

	assert.Equal(t, domain.KindNotification, msg.Kind)
	assert.Equal(t, "New Job Application from Jane Doe - Position: Frontend Developer", msg.Subject)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "application/pdf", msg.Attachment.ContentType)
	assert.Equal(t, []string{"contact@incorvix.nl"}, msg.Recipients())
	assert.Equal(t, "contact@incorvix.nl", msg.EnvelopeFrom())

	t.Run("structure is mixed with alternative then attachment", func(t *testing.T) {
		e, err := message.Read(bytes.NewReader(msg.Raw))
		require.NoError(t, err)

		assert.Equal(t, "1.0", e.Header.Get("Mime-Version"))
		assert.Contains(t, e.Header.Get("From"), "contact@incorvix.nl")
		assert.Contains(t, e.Header.Get("Reply-To"), "jane@example.com")
		mediaType, params, err := e.Header.ContentType()
		require.NoError(t, err)
		assert.Equal(t, "multipart/mixed", mediaType)
		assert.NotEmpty(t, params["boundary"])

		mr := e.MultipartReader()
		require.NotNil(t, mr)

		alt, err := mr.NextPart()
		require.NoError(t, err)
		altType, _, _ := alt.Header.ContentType()
		assert.Equal(t, "multipart/alternative", altType)

		amr := alt.MultipartReader()
		require.NotNil(t, amr)
		var types []string
		for {
			p, err := amr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			ct, _, _ := p.Header.ContentType()
			types = append(types, ct)
		}
		assert.Equal(t, []string{"text/plain", "text/html"}, types)

		att, err := mr.NextPart()
		require.NoError(t, err)
		attType, attParams, _ := att.Header.ContentType()
		assert.Equal(t, "application/pdf", attType)
		assert.Equal(t, "resume.pdf", attParams["name"])
		assert.Equal(t, "CV Attachment", att.Header.Get("Content-Description"))

		_, err = mr.NextPart()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("round trip yields filename bytes and type", func(t *testing.T) {
		mr, err := gomail.CreateReader(bytes.NewReader(msg.Raw))
		require.NoError(t, err)

		var found bool
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			if h, ok := p.Header.(*gomail.AttachmentHeader); ok {
				found = true
				filename, err := h.Filename()
				require.NoError(t, err)
				assert.Equal(t, "resume.pdf", filename)
				ct, _, _ := h.ContentType()
				assert.Equal(t, "application/pdf", ct)
				assert.Equal(t, "base64", h.Get("Content-Transfer-Encoding"))
				body, err := io.ReadAll(p.Body)
				require.NoError(t, err)
				assert.Equal(t, content, body)
			}
		}
		assert.True(t, found, "attachment part present")
	})

	t.Run("base64 lines wrap at 76 characters", func(t *testing.T) {
		b64 := regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)
		full := 0
		for _, line := range strings.Split(string(msg.Raw), "\r\n") {
			if len(line) < 40 || !b64.MatchString(line) {
				continue
			}
			assert.LessOrEqual(t, len(line), 76)
			if len(line) == 76 {
				full++
			}
		}
		assert.Greater(t, full, 600)
	})

	t.Run("body escapes submitter html", func(t *testing.T) {
		assert.Contains(t, msg.HTML, "I &lt;3 React &amp; TypeScript.")
		assert.Contains(t, msg.HTML, "Hello,<br>")
		assert.Contains(t, msg.HTML, "resume.pdf (50.00 KB)")
		assert.Contains(t, msg.Text, "Name: Jane Doe")
		assert.Contains(t, msg.Text, "I <3 React & TypeScript.")
		assert.NotContains(t, msg.Text, "<div")
	})
}

func TestApplicationComposeIsDeterministic(t *testing.T) {
	c := newTestComposer(t)
	doc, content := resumeDoc(4096)

	first, err := c.Application(janeDoe(), doc, content)
	require.NoError(t, err)
	second, err := c.Application(janeDoe(), doc, content)
	require.NoError(t, err)

	e1, err := message.Read(bytes.NewReader(first.Raw))
	require.NoError(t, err)
	e2, err := message.Read(bytes.NewReader(second.Raw))
	require.NoError(t, err)

	assert.Equal(t, describe(t, e1, 0), describe(t, e2, 0))
	assert.NotEqual(t, first.Raw, second.Raw, "boundary and message id differ")
}

func TestApplicationWithoutAttachment(t *testing.T) {
	c := newTestComposer(t)

	t.Run("no upload is single part html", func(t *testing.T) {
		msg, err := c.Application(janeDoe(), nil, nil)
		require.NoError(t, err)
		assert.Nil(t, msg.Attachment)

		e, err := message.Read(bytes.NewReader(msg.Raw))
		require.NoError(t, err)
		ct, params, _ := e.Header.ContentType()
		assert.Equal(t, "text/html", ct)
		assert.Equal(t, "utf-8", params["charset"])
		assert.Nil(t, e.MultipartReader())
		assert.Contains(t, msg.HTML, "No file uploaded")
	})

	t.Run("unreadable upload still names the file", func(t *testing.T) {
		doc, _ := resumeDoc(1024)
		msg, err := c.Application(janeDoe(), doc, nil)
		require.NoError(t, err)
		assert.Nil(t, msg.Attachment)
		assert.Contains(t, msg.HTML, "resume.pdf")
		assert.Contains(t, msg.HTML, "could not be attached")
	})

	t.Run("optional fields fall back to placeholders", func(t *testing.T) {
		sub := &domain.Submission{Name: "Jane", Email: "jane@example.com", Position: "data-engineer"}
		msg, err := c.Application(sub, nil, nil)
		require.NoError(t, err)
		assert.Contains(t, msg.HTML, "Not provided")
		assert.Contains(t, msg.HTML, "Not specified")
		assert.Contains(t, msg.Subject, "Position: Data Engineer")
		assert.NotContains(t, msg.HTML, "Cover Letter")
	})
}

func TestHeaderInjectionIsStripped(t *testing.T) {
	c := newTestComposer(t)
	sub := janeDoe()
	sub.Name = "Jane\r\nBcc: victim@example.com"

	msg, err := c.Application(sub, nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, msg.Subject, "\n")

	e, err := message.Read(bytes.NewReader(msg.Raw))
	require.NoError(t, err)
	assert.Empty(t, e.Header.Get("Bcc"))
	assert.NotContains(t, e.Header.Get("Subject"), "\r")
}

func TestApplicationReply(t *testing.T) {
	c := newTestComposer(t)

	msg, err := c.ApplicationReply(janeDoe())
	require.NoError(t, err)

	assert.Equal(t, domain.KindAutoReply, msg.Kind)
	assert.Equal(t, "Thank you for your application - Incorvix", msg.Subject)
	assert.Equal(t, []string{"jane@example.com"}, msg.Recipients())
	assert.Nil(t, msg.Attachment)
	assert.Contains(t, msg.HTML, "Dear Jane Doe,")
	assert.Contains(t, msg.HTML, "<strong>Frontend Developer</strong>")

	e, err := message.Read(bytes.NewReader(msg.Raw))
	require.NoError(t, err)
	assert.Equal(t, "auto-replied", e.Header.Get("Auto-Submitted"))
}

func TestContactAndConsultation(t *testing.T) {
	c := newTestComposer(t)

	contact := &domain.ContactRequest{Name: "Jan", Email: "jan@example.com", Message: "Call me"}
	msg, err := c.Contact(contact)
	require.NoError(t, err)
	assert.Equal(t, "New Contact Form Submission from Jan", msg.Subject)
	require.NotNil(t, msg.ReplyTo)
	assert.Equal(t, "jan@example.com", msg.ReplyTo.Address)

	reply, err := c.ContactReply(contact)
	require.NoError(t, err)
	assert.Equal(t, "Thank you for contacting Incorvix - We'll be in touch soon!", reply.Subject)

	consult := &domain.ConsultationRequest{
		FirstName: "Jan", LastName: "Jansen", Email: "jan@example.com",
		Company: "ACME <b>", Service: "S/4HANA", Message: "Migration",
	}
	msg, err = c.Consultation(consult)
	require.NoError(t, err)
	assert.Equal(t, "New Consultation Request from Jan Jansen", msg.Subject)
	assert.Contains(t, msg.HTML, "ACME &lt;b&gt;")

	reply, err = c.ConsultationReply(consult)
	require.NoError(t, err)
	assert.Contains(t, reply.HTML, "Dear Jan Jansen,")
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"pdf":  "application/pdf",
		"PDF":  "application/pdf",
		".doc": "application/msword",
		"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"txt":  "application/octet-stream",
	}
	for ext, want := range tests {
		assert.Equal(t, want, ContentTypeFor(ext), ext)
	}
}

func TestPlainText(t *testing.T) {
	text, err := PlainText(`<html><head><style>p{}</style></head><body><h2>Title</h2><p>a &amp; b</p><p>line1<br>line2</p></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Title\na & b\nline1\nline2\n", text)
}
