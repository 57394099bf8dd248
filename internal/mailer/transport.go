// Package mailer 提供可互换的出站邮件传输实现。
//
// 传输方式在启动时选定一次，之后管线只依赖 Transport 接口。
package mailer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"incorvix/backend/internal/config"
	"incorvix/backend/internal/domain"
	"incorvix/backend/internal/monitoring"
)

// 传输方式名称，同时作为响应中的 email_method
const (
	MethodSMTP     = "smtp"
	MethodSendmail = "sendmail"
	MethodSES      = "ses"
)

// Transport 出站邮件传输
type Transport interface {
	// Send 投递一封完整的邮件，失败时返回 *domain.TransportError
	Send(ctx context.Context, msg *domain.ComposedMessage) error
	// Name 传输方式名称
	Name() string
}

// Select 按配置选择传输方式
//
// auto 模式下优先使用已配置主机的 SMTP，其次是存在的本地 sendmail 程序。
//
// 返回值:
//   - Transport: 选定的传输
//   - error: 没有可用的传输方式
func Select(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Transport, error) {
	switch cfg.Mail.Transport {
	case config.TransportSMTP:
		return NewSMTPTransport(cfg.SMTP, logger), nil
	case config.TransportSendmail:
		return NewSendmailTransport(cfg.Mail.SendmailPath, logger)
	case config.TransportSES:
		return NewSESTransport(ctx, cfg.Mail.SESRegion, logger)
	case config.TransportAuto:
		if cfg.SMTP.Host != "" {
			return NewSMTPTransport(cfg.SMTP, logger), nil
		}
		if sendmailAvailable(cfg.Mail.SendmailPath) {
			return NewSendmailTransport(cfg.Mail.SendmailPath, logger)
		}
		return nil, fmt.Errorf("no mail transport available: set smtp.host or install %s", cfg.Mail.SendmailPath)
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Mail.Transport)
	}
}

func sendmailAvailable(path string) bool {
	if path == "" {
		return false
	}
	if _, err := exec.LookPath(path); err == nil {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Instrumented 为传输记录耗时指标和日志
type Instrumented struct {
	next    Transport
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// Instrument 包装传输，metrics 为 nil 时只记录日志
func Instrument(next Transport, metrics *monitoring.Metrics, logger *zap.Logger) *Instrumented {
	return &Instrumented{next: next, metrics: metrics, logger: logger}
}

// Name 被包装传输的名称
func (t *Instrumented) Name() string { return t.next.Name() }

// Send 投递并记录结果
func (t *Instrumented) Send(ctx context.Context, msg *domain.ComposedMessage) error {
	start := time.Now()
	err := t.next.Send(ctx, msg)
	elapsed := time.Since(start)

	if t.metrics != nil {
		t.metrics.RecordMailSend(t.next.Name(), string(msg.Kind), err, elapsed)
	}
	fields := []zap.Field{
		zap.String("transport", t.next.Name()),
		zap.String("kind", string(msg.Kind)),
		zap.Int("size", len(msg.Raw)),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		t.logger.Warn("邮件发送失败", append(fields, zap.Error(err))...)
		return err
	}
	t.logger.Debug("邮件已发送", fields...)
	return nil
}
