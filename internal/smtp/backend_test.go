package smtp

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"incorvix/backend/internal/config"
)

const sampleMessage = "From: Jane Doe <jane@example.com>\r\n" +
	"To: contact@incorvix.nl\r\n" +
	"Reply-To: jane@example.com\r\n" +
	"Subject: =?utf-8?q?Sollicitatie_caf=C3=A9?=\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=iso-8859-1\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Caf=E9 application\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Café application</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf; name=\"cv.pdf\"\r\n" +
	"Content-Disposition: attachment; filename=\"cv.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQK\r\n" +
	"--outer--\r\n"

func TestParseEmail(t *testing.T) {
	parsed, err := ParseEmail([]byte(sampleMessage))
	require.NoError(t, err)

	assert.Equal(t, "Sollicitatie café", parsed.Subject)
	assert.Equal(t, "jane@example.com", parsed.From)
	assert.Equal(t, []string{"contact@incorvix.nl"}, parsed.To)
	assert.Equal(t, "jane@example.com", parsed.ReplyTo)
	assert.Equal(t, "1.0", parsed.Headers["Mime-Version"])
	assert.Equal(t, "Café application", strings.TrimSpace(parsed.Text))
	assert.Contains(t, parsed.HTML, "<p>Café application</p>")
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "cv.pdf", parsed.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", parsed.Attachments[0].ContentType)
	assert.Equal(t, []byte("%PDF-1.4\n"), parsed.Attachments[0].Content)
}

func TestParseEmailSinglePart(t *testing.T) {
	raw := "From: a@example.com\r\nSubject: hi\r\n\r\nplain body\r\n"
	parsed, err := ParseEmail([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "hi", parsed.Subject)
	assert.Equal(t, "plain body", strings.TrimSpace(parsed.Text))
	assert.Empty(t, parsed.Attachments)
}

func TestCharsetEncoding(t *testing.T) {
	assert.NotNil(t, charsetEncoding("gbk"))
	assert.NotNil(t, charsetEncoding("windows-1252"))
	assert.Nil(t, charsetEncoding("x-unknown"))
}

// startSink 在随机端口启动收件服务
func startSink(t *testing.T, cfg config.SinkConfig) (*Backend, string) {
	t.Helper()
	backend, err := NewBackend(cfg, zap.NewNop())
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, NewServer(backend, cfg), l) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return backend, l.Addr().String()
}

func dial(t *testing.T, addr string) *gosmtp.Client {
	t.Helper()
	c, err := gosmtp.Dial(addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Hello("test.local"))
	return c
}

func TestSinkReceivesMessage(t *testing.T) {
	dir := t.TempDir()
	backend, addr := startSink(t, config.SinkConfig{Domain: "localhost", OutputDir: dir})

	c := dial(t, addr)
	err := c.SendMail("contact@incorvix.nl", []string{"Contact@Incorvix.nl"}, strings.NewReader(sampleMessage))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := backend.WaitFor(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "contact@incorvix.nl", msgs[0].From)
	assert.Equal(t, []string{"contact@incorvix.nl"}, msgs[0].Recipients)
	assert.Equal(t, "Sollicitatie café", msgs[0].Parsed.Subject)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".eml"))
}

func TestSinkAuthentication(t *testing.T) {
	cfg := config.SinkConfig{Domain: "localhost", Username: "website", Password: "s3cret"}

	t.Run("正确凭证", func(t *testing.T) {
		backend, addr := startSink(t, cfg)
		c := dial(t, addr)
		require.NoError(t, c.Auth(sasl.NewPlainClient("", "website", "s3cret")))
		require.NoError(t, c.SendMail("a@example.com", []string{"b@example.com"}, strings.NewReader(sampleMessage)))
		assert.Len(t, backend.Messages(), 1)
	})

	t.Run("错误密码", func(t *testing.T) {
		_, addr := startSink(t, cfg)
		c := dial(t, addr)
		err := c.Auth(sasl.NewPlainClient("", "website", "wrong"))
		require.Error(t, err)
		var smtpErr *gosmtp.SMTPError
		require.ErrorAs(t, err, &smtpErr)
		assert.Equal(t, 535, smtpErr.Code)
	})

	t.Run("未认证投递被拒绝", func(t *testing.T) {
		backend, addr := startSink(t, cfg)
		c := dial(t, addr)
		err := c.Mail("a@example.com", nil)
		require.Error(t, err)
		assert.Empty(t, backend.Messages())
	})
}

func TestSinkRejectsInvalidRecipient(t *testing.T) {
	_, addr := startSink(t, config.SinkConfig{Domain: "localhost"})
	c := dial(t, addr)
	require.NoError(t, c.Mail("a@example.com", nil))
	err := c.Rcpt("not-an-address", nil)
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 501, smtpErr.Code)
}
