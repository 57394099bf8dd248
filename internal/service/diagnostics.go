package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"incorvix/backend/internal/compose"
	"incorvix/backend/internal/config"
	"incorvix/backend/internal/domain"
	"incorvix/backend/internal/mailer"
)

// Diagnostics 邮件配置诊断信息，不包含任何凭证
type Diagnostics struct {
	Transport      string `json:"transport"`
	SMTPHost       string `json:"smtp_host,omitempty"`
	SMTPPort       int    `json:"smtp_port,omitempty"`
	SMTPEncryption string `json:"smtp_encryption,omitempty"`
	SMTPAuth       bool   `json:"smtp_auth"`
	Recipient      string `json:"recipient"`
	From           string `json:"from"`
	UploadDir      string `json:"upload_dir"`
	UploadWritable bool   `json:"upload_writable"`
	UploadError    string `json:"upload_error,omitempty"`
	MaxUploadSize  int64  `json:"max_upload_size"`
	AllowedTypes   string `json:"allowed_extensions"`
	CVRequired     bool   `json:"cv_required"`
}

// WritableChecker 上传目录可写检查
type WritableChecker interface {
	CheckWritable() error
}

// DiagnosticsService 邮件投递诊断
type DiagnosticsService struct {
	cfg       *config.Config
	uploads   WritableChecker
	composer  *compose.Composer
	transport mailer.Transport
	logger    *zap.Logger
}

// NewDiagnosticsService 创建诊断服务
func NewDiagnosticsService(cfg *config.Config, uploads WritableChecker, composer *compose.Composer, transport mailer.Transport, log *zap.Logger) *DiagnosticsService {
	return &DiagnosticsService{cfg: cfg, uploads: uploads, composer: composer, transport: transport, logger: log}
}

// Report 汇总当前投递配置
func (s *DiagnosticsService) Report() Diagnostics {
	d := Diagnostics{
		Transport:     s.transport.Name(),
		Recipient:     s.cfg.Mail.Recipient,
		From:          s.cfg.Mail.FromAddress,
		UploadDir:     s.cfg.Upload.Dir,
		MaxUploadSize: s.cfg.Upload.MaxSize,
		AllowedTypes:  strings.Join(s.cfg.Upload.AllowedExtensions, ","),
		CVRequired:    s.cfg.Upload.CVRequired,
	}
	if d.Transport == mailer.MethodSMTP {
		d.SMTPHost = s.cfg.SMTP.Host
		d.SMTPPort = s.cfg.SMTP.Port
		d.SMTPEncryption = s.cfg.SMTP.Encryption
		d.SMTPAuth = s.cfg.SMTP.Username != ""
	}
	if err := s.uploads.CheckWritable(); err != nil {
		d.UploadError = err.Error()
	} else {
		d.UploadWritable = true
	}
	return d
}

// SendTest 通过当前传输发送测试邮件，to 为空时发往内部收件地址
func (s *DiagnosticsService) SendTest(ctx context.Context, to string) (*domain.DeliveryOutcome, error) {
	outcome := &domain.DeliveryOutcome{Method: s.transport.Name(), Recipient: s.composer.Recipient()}
	to = strings.TrimSpace(to)
	if to != "" {
		if !domain.ValidEmail(to) {
			err := &domain.ValidationError{Fields: []domain.FieldError{{Field: "to", Reason: domain.ReasonInvalid}}}
			outcome.Err = err
			return outcome, err
		}
		outcome.Recipient = to
	}

	if s.cfg.Pipeline.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Pipeline.Timeout)
		defer cancel()
	}

	msg, err := s.composer.Test(to, s.transport.Name())
	if err != nil {
		outcome.Err = err
		return outcome, err
	}
	if err := s.transport.Send(ctx, msg); err != nil {
		s.logger.Warn("测试邮件发送失败", zap.String("transport", s.transport.Name()), zap.Error(err))
		outcome.Err = err
		return outcome, err
	}
	outcome.Success = true
	s.logger.Info("测试邮件已发送", zap.String("transport", s.transport.Name()))
	return outcome, nil
}
