package service

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"incorvix/backend/internal/compose"
	"incorvix/backend/internal/config"
	"incorvix/backend/internal/domain"
	"incorvix/backend/internal/mailer"
	"incorvix/backend/internal/monitoring"
	"incorvix/backend/internal/upload"
)

// MockTransport 模拟邮件传输
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, msg *domain.ComposedMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockTransport) Name() string { return "mock" }

func ofKind(kind domain.MessageKind) any {
	return mock.MatchedBy(func(msg *domain.ComposedMessage) bool { return msg.Kind == kind })
}

// failingReads 包装存储，使读取始终失败
type failingReads struct {
	*upload.Store
}

func (f failingReads) Read(doc *domain.UploadedDocument) ([]byte, error) {
	return nil, &domain.AttachmentReadError{Path: doc.Path, Err: os.ErrPermission}
}

type fixture struct {
	cfg      *config.Config
	store    *upload.Store
	composer *compose.Composer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		Mail: config.MailConfig{
			Recipient:   "contact@incorvix.nl",
			FromAddress: "contact@incorvix.nl",
			FromName:    "Incorvix Website",
		},
		Upload: config.UploadConfig{
			Dir:               filepath.Join(t.TempDir(), "uploads"),
			MaxSize:           config.DefaultMaxUploadSize,
			AllowedExtensions: []string{"pdf", "doc"},
		},
		Pipeline: config.PipelineConfig{Timeout: 5 * time.Second},
	}
	store, err := upload.NewStore(cfg.Upload, zap.NewNop())
	require.NoError(t, err)
	composer, err := compose.New(cfg.Mail, nil)
	require.NoError(t, err)
	return &fixture{cfg: cfg, store: store, composer: composer}
}

func (f *fixture) application(tr mailer.Transport, uploads Uploads) *ApplicationService {
	if uploads == nil {
		uploads = f.store
	}
	return NewApplicationService(f.cfg, uploads, f.composer, tr, nil, zap.NewNop())
}

// failingAttach 包装邮件构建，使附件写入始终失败
type failingAttach struct {
	*compose.Composer
	attempts int
}

func (f *failingAttach) Application(sub *domain.Submission, doc *domain.UploadedDocument, content []byte) (*domain.ComposedMessage, error) {
	f.attempts++
	if content != nil {
		return nil, &domain.AttachmentAttachError{Filename: doc.OriginalName, Err: errors.New("base64 writer closed")}
	}
	return f.Composer.Application(sub, doc, nil)
}

func (f *fixture) uploadedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.store.Dir())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("cv", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["cv"][0]
}

func resumePDF(size int) []byte {
	out := make([]byte, size)
	copy(out, "%PDF-1.4\n")
	for i := 9; i < size; i++ {
		out[i] = byte('a' + i%26)
	}
	return out
}

func janeDoeFields() map[string]string {
	return map[string]string{
		"name":     "Jane Doe",
		"email":    "jane@example.com",
		"position": "frontend-developer",
	}
}

func TestApplicationSubmitJaneDoe(t *testing.T) {
	t.Run("成功投递并删除临时文件", func(t *testing.T) {
		f := newFixture(t)
		rec := mailer.NewRecorder()
		svc := f.application(rec, nil)
		content := resumePDF(50 * 1024)

		outcome, err := svc.Submit(context.Background(), ApplicationInput{
			Fields: janeDoeFields(),
			File:   fileHeader(t, "resume.pdf", content),
		})
		require.NoError(t, err)
		assert.True(t, outcome.Success)
		assert.Equal(t, domain.AttachmentSuccess, outcome.AttachmentStatus)
		assert.Equal(t, "recorder", outcome.Method)
		assert.Equal(t, "contact@incorvix.nl", outcome.Recipient)
		assert.True(t, outcome.AutoReplySent)
		assert.Empty(t, outcome.Warnings)
		assert.Empty(t, f.uploadedFiles(t))

		notification := rec.Last(domain.KindNotification)
		require.NotNil(t, notification)
		require.NotNil(t, notification.Attachment)
		assert.Equal(t, "application/pdf", notification.Attachment.ContentType)
		assert.Equal(t, len(content), notification.Attachment.Size)
		assert.Equal(t, "New Job Application from Jane Doe - Position: Frontend Developer", notification.Subject)
		require.NotNil(t, notification.ReplyTo)
		assert.Equal(t, "jane@example.com", notification.ReplyTo.Address)

		reply := rec.Last(domain.KindAutoReply)
		require.NotNil(t, reply)
		assert.Equal(t, "jane@example.com", reply.To[0].Address)
		assert.Nil(t, reply.Attachment)
	})

	t.Run("传输失败仍删除临时文件且不发自动回复", func(t *testing.T) {
		f := newFixture(t)
		rec := mailer.NewRecorder()
		rec.FailKinds[domain.KindNotification] = true
		svc := f.application(rec, nil)

		outcome, err := svc.Submit(context.Background(), ApplicationInput{
			Fields: janeDoeFields(),
			File:   fileHeader(t, "resume.pdf", resumePDF(50*1024)),
		})
		var te *domain.TransportError
		require.ErrorAs(t, err, &te)
		assert.False(t, outcome.Success)
		assert.Equal(t, domain.AttachmentSuccess, outcome.AttachmentStatus)
		assert.Equal(t, 1, rec.Count(domain.KindNotification))
		assert.Zero(t, rec.Count(domain.KindAutoReply))
		assert.Empty(t, f.uploadedFiles(t))
	})
}

func TestApplicationSubmitValidation(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]string
		want   []string
	}{
		{"缺少姓名", map[string]string{"email": "jane@example.com", "position": "other"}, []string{"name"}},
		{"缺少邮箱", map[string]string{"name": "Jane", "position": "other"}, []string{"email"}},
		{"缺少职位", map[string]string{"name": "Jane", "email": "jane@example.com"}, []string{"position"}},
		{"只有空白", map[string]string{"name": "  ", "email": " ", "position": "\t"}, []string{"name", "email", "position"}},
		{"邮箱格式错误", map[string]string{"name": "Jane", "email": "jane@", "position": "other"}, []string{"email"}},
		{"邮箱缺少域名后缀", map[string]string{"name": "Jane", "email": "jane@example", "position": "other"}, []string{"email"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tr := new(MockTransport)
			svc := f.application(tr, nil)

			outcome, err := svc.Submit(context.Background(), ApplicationInput{
				Fields: tc.fields,
				File:   fileHeader(t, "resume.pdf", resumePDF(1024)),
			})
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.want, ve.FieldNames())
			assert.False(t, outcome.Success)
			assert.Empty(t, f.uploadedFiles(t))
			tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		})
	}
}

func TestApplicationSubmitUploads(t *testing.T) {
	t.Run("可执行文件在落盘前被拒绝", func(t *testing.T) {
		f := newFixture(t)
		tr := new(MockTransport)
		svc := f.application(tr, nil)

		_, err := svc.Submit(context.Background(), ApplicationInput{
			Fields: janeDoeFields(),
			File:   fileHeader(t, "setup.exe", []byte("MZ\x90\x00")),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidFileType)
		assert.True(t, domain.IsUserError(err))
		assert.Empty(t, f.uploadedFiles(t))
		tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("11 MiB 文件被拒绝", func(t *testing.T) {
		f := newFixture(t)
		tr := new(MockTransport)
		svc := f.application(tr, nil)

		_, err := svc.Submit(context.Background(), ApplicationInput{
			Fields: janeDoeFields(),
			File:   fileHeader(t, "resume.pdf", resumePDF(11<<20)),
		})
		assert.ErrorIs(t, err, domain.ErrFileTooLarge)
		assert.Empty(t, f.uploadedFiles(t))
		tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("未上传文件", func(t *testing.T) {
		f := newFixture(t)
		rec := mailer.NewRecorder()
		outcome, err := f.application(rec, nil).Submit(context.Background(), ApplicationInput{
			Fields:  janeDoeFields(),
			FileErr: http.ErrMissingFile,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.AttachmentNoUpload, outcome.AttachmentStatus)
		assert.Nil(t, rec.Last(domain.KindNotification).Attachment)
	})

	t.Run("要求简历时缺少文件", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.Upload.CVRequired = true
		tr := new(MockTransport)
		_, err := f.application(tr, nil).Submit(context.Background(), ApplicationInput{Fields: janeDoeFields()})
		assert.ErrorIs(t, err, domain.ErrCVRequired)
		tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("上传未完整到达时继续发送", func(t *testing.T) {
		f := newFixture(t)
		rec := mailer.NewRecorder()
		outcome, err := f.application(rec, nil).Submit(context.Background(), ApplicationInput{
			Fields:  janeDoeFields(),
			FileErr: errors.New("multipart: NextPart: unexpected EOF"),
		})
		require.NoError(t, err)
		assert.Equal(t, "failed: upload incomplete", outcome.AttachmentStatus)
		assert.Equal(t, []string{"failed: upload incomplete"}, outcome.Warnings)
		assert.Equal(t, 1, rec.Count(domain.KindNotification))
	})

	t.Run("读取失败时降级为无附件发送", func(t *testing.T) {
		f := newFixture(t)
		rec := mailer.NewRecorder()
		svc := f.application(rec, failingReads{f.store})

		outcome, err := svc.Submit(context.Background(), ApplicationInput{
			Fields: janeDoeFields(),
			File:   fileHeader(t, "resume.pdf", resumePDF(2048)),
		})
		require.NoError(t, err)
		assert.True(t, outcome.Success)
		assert.Equal(t, "failed: could not read uploaded file", outcome.AttachmentStatus)
		assert.Len(t, outcome.Warnings, 1)

		notification := rec.Last(domain.KindNotification)
		require.NotNil(t, notification)
		assert.Nil(t, notification.Attachment)
		assert.Contains(t, notification.HTML, "could not be attached")
		assert.Empty(t, f.uploadedFiles(t))
	})
}

func TestApplicationAttachFallback(t *testing.T) {
	t.Run("附件写入失败时降级为无附件发送", func(t *testing.T) {
		f := newFixture(t)
		rec := mailer.NewRecorder()
		metrics := monitoring.NewMetrics(prometheus.NewRegistry())
		composer := &failingAttach{Composer: f.composer}
		svc := NewApplicationService(f.cfg, f.store, composer, rec, metrics, zap.NewNop())

		outcome, err := svc.Submit(context.Background(), ApplicationInput{
			Fields: janeDoeFields(),
			File:   fileHeader(t, "resume.pdf", resumePDF(2048)),
		})
		require.NoError(t, err)
		assert.True(t, outcome.Success)
		assert.Equal(t, "failed: could not attach file", outcome.AttachmentStatus)
		assert.Equal(t, []string{"failed: could not attach file"}, outcome.Warnings)
		assert.Equal(t, 2, composer.attempts)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AttachmentsFailed))

		notification := rec.Last(domain.KindNotification)
		require.NotNil(t, notification)
		assert.Nil(t, notification.Attachment)
		assert.Contains(t, notification.HTML, "could not be attached")
		assert.Equal(t, 1, rec.Count(domain.KindAutoReply))
		assert.Empty(t, f.uploadedFiles(t))
	})
}

func TestApplicationAutoReplyFollowsPrimary(t *testing.T) {
	tr := new(MockTransport)
	tr.On("Send", mock.Anything, ofKind(domain.KindNotification)).Return(nil).Twice()
	tr.On("Send", mock.Anything, ofKind(domain.KindNotification)).
		Return(&domain.TransportError{Method: "mock", Kind: domain.TransportRejected, Err: errors.New("550 no")}).Once()
	tr.On("Send", mock.Anything, ofKind(domain.KindAutoReply)).Return(nil)

	f := newFixture(t)
	svc := f.application(tr, nil)

	successes := 0
	for i := 0; i < 3; i++ {
		outcome, _ := svc.Submit(context.Background(), ApplicationInput{Fields: janeDoeFields()})
		if outcome.Success {
			successes++
		}
	}

	assert.Equal(t, 2, successes)
	tr.AssertNumberOfCalls(t, "Send", 2+1+2)
	replies := 0
	for _, call := range tr.Calls {
		if call.Arguments.Get(1).(*domain.ComposedMessage).Kind == domain.KindAutoReply {
			replies++
		}
	}
	assert.Equal(t, successes, replies)
}

func TestApplicationAutoReplyFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	rec := mailer.NewRecorder()
	rec.FailKinds[domain.KindAutoReply] = true

	outcome, err := f.application(rec, nil).Submit(context.Background(), ApplicationInput{Fields: janeDoeFields()})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.False(t, outcome.AutoReplySent)
	assert.Equal(t, 1, rec.Count(domain.KindAutoReply))
}

func TestApplicationTimeout(t *testing.T) {
	f := newFixture(t)
	f.cfg.Pipeline.Timeout = 50 * time.Millisecond
	rec := mailer.NewRecorder()
	rec.BeforeSend = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	outcome, err := f.application(rec, nil).Submit(context.Background(), ApplicationInput{
		Fields: janeDoeFields(),
		File:   fileHeader(t, "resume.pdf", resumePDF(4096)),
	})
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.False(t, outcome.Success)
	assert.Empty(t, f.uploadedFiles(t))
}

func TestApplicationMetrics(t *testing.T) {
	f := newFixture(t)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	svc := NewApplicationService(f.cfg, f.store, f.composer, mailer.NewRecorder(), metrics, zap.NewNop())

	_, err := svc.Submit(context.Background(), ApplicationInput{
		Fields: janeDoeFields(),
		File:   fileHeader(t, "resume.pdf", resumePDF(4096)),
	})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), ApplicationInput{Fields: map[string]string{}})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues("application", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues("application", "invalid")))
}

func TestContactService(t *testing.T) {
	t.Run("成功", func(t *testing.T) {
		f := newFixture(t)
		rec := mailer.NewRecorder()
		svc := NewContactService(f.cfg, f.composer, rec, nil, zap.NewNop())

		outcome, err := svc.Submit(context.Background(), &domain.ContactRequest{
			Name: " Jane Doe ", Email: "jane@example.com", Message: "Hi there",
		})
		require.NoError(t, err)
		assert.True(t, outcome.Success)
		assert.Equal(t, "New Contact Form Submission from Jane Doe", rec.Last(domain.KindNotification).Subject)
		assert.Equal(t, 1, rec.Count(domain.KindAutoReply))
	})

	t.Run("缺少留言", func(t *testing.T) {
		f := newFixture(t)
		tr := new(MockTransport)
		svc := NewContactService(f.cfg, f.composer, tr, nil, zap.NewNop())

		_, err := svc.Submit(context.Background(), &domain.ContactRequest{Name: "Jane", Email: "jane@example.com"})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, []string{"message"}, ve.FieldNames())
		tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestConsultationService(t *testing.T) {
	req := func() *domain.ConsultationRequest {
		return &domain.ConsultationRequest{
			FirstName: "Jane", LastName: "Doe", Email: "jane@example.com",
			Company: "Acme", Service: "sap-implementation", Message: "We need help",
		}
	}

	t.Run("成功", func(t *testing.T) {
		f := newFixture(t)
		rec := mailer.NewRecorder()
		svc := NewConsultationService(f.cfg, f.composer, rec, nil, zap.NewNop())

		outcome, err := svc.Submit(context.Background(), req())
		require.NoError(t, err)
		assert.True(t, outcome.Success)
		assert.Equal(t, "New Consultation Request from Jane Doe", rec.Last(domain.KindNotification).Subject)
	})

	t.Run("传输失败", func(t *testing.T) {
		f := newFixture(t)
		rec := mailer.NewRecorder()
		rec.FailKinds[domain.KindNotification] = true
		svc := NewConsultationService(f.cfg, f.composer, rec, nil, zap.NewNop())

		outcome, err := svc.Submit(context.Background(), req())
		var te *domain.TransportError
		require.ErrorAs(t, err, &te)
		assert.False(t, outcome.Success)
		assert.Zero(t, rec.Count(domain.KindAutoReply))
	})
}

func TestDiagnosticsService(t *testing.T) {
	f := newFixture(t)
	f.cfg.SMTP = config.SMTPConfig{Host: "smtp.example.com", Port: 465, Encryption: config.EncryptionTLS, Username: "website", Password: "hunter2"}

	smtpTransport := mailer.NewSMTPTransport(f.cfg.SMTP, zap.NewNop())
	svc := NewDiagnosticsService(f.cfg, f.store, f.composer, smtpTransport, zap.NewNop())
	report := svc.Report()
	assert.Equal(t, mailer.MethodSMTP, report.Transport)
	assert.Equal(t, "smtp.example.com", report.SMTPHost)
	assert.True(t, report.SMTPAuth)
	assert.True(t, report.UploadWritable)
	assert.Equal(t, "pdf,doc", report.AllowedTypes)

	t.Run("发送测试邮件", func(t *testing.T) {
		rec := mailer.NewRecorder()
		svc := NewDiagnosticsService(f.cfg, f.store, f.composer, rec, zap.NewNop())
		outcome, err := svc.SendTest(context.Background(), "ops@example.com")
		require.NoError(t, err)
		assert.True(t, outcome.Success)
		assert.Equal(t, "ops@example.com", outcome.Recipient)
		assert.Equal(t, "ops@example.com", rec.Last(domain.KindTest).To[0].Address)
	})

	t.Run("收件地址无效", func(t *testing.T) {
		tr := new(MockTransport)
		svc := NewDiagnosticsService(f.cfg, f.store, f.composer, tr, zap.NewNop())
		_, err := svc.SendTest(context.Background(), "not-an-address")
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve)
		tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}
