package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"incorvix/backend/internal/config"
	"incorvix/backend/internal/domain"
)

// SMTPTransport 通过认证 SMTP 客户端投递（implicit TLS / STARTTLS / 明文）
type SMTPTransport struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

// NewSMTPTransport 创建 SMTP 传输
func NewSMTPTransport(cfg config.SMTPConfig, logger *zap.Logger) *SMTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.HeloName == "" {
		cfg.HeloName = "localhost"
	}
	return &SMTPTransport{cfg: cfg, logger: logger}
}

// Name 传输方式名称
func (t *SMTPTransport) Name() string { return MethodSMTP }

// Send 建立会话、认证并提交邮件
//
// 失败按阶段分类：连接/TLS 失败为 connection，AUTH 被拒为 auth，
// MAIL/RCPT/DATA 被拒为 rejected。错误信息中不会出现密码。
func (t *SMTPTransport) Send(ctx context.Context, msg *domain.ComposedMessage) error {
	client, stop, err := t.connect(ctx)
	if err != nil {
		return t.fail(domain.TransportConnection, err)
	}
	defer stop()
	defer client.Close()

	if t.cfg.Username != "" {
		if err := client.Auth(sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)); err != nil {
			return t.fail(classify(ctx, err, domain.TransportAuth), contextCause(ctx, err))
		}
	}

	if err := client.SendMail(msg.EnvelopeFrom(), msg.Recipients(), bytes.NewReader(msg.Raw)); err != nil {
		return t.fail(classify(ctx, err, domain.TransportRejected), contextCause(ctx, err))
	}

	if err := client.Quit(); err != nil {
		t.logger.Debug("SMTP QUIT 失败", zap.Error(err))
	}
	return nil
}

// connect 按加密方式建立 SMTP 会话
//
// 拨号成功后即登记 context 监听：问候、EHLO 与 STARTTLS 握手期间
// context 结束也会关闭连接。返回的 stop 必须在会话结束后调用。
func (t *SMTPTransport) connect(ctx context.Context) (*gosmtp.Client, func() bool, error) {
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Address())
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", t.cfg.Address(), contextCause(ctx, err))
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	// 握手阶段的总时限，STARTTLS 内部命令不受 CommandTimeout 设置影响
	handshake := time.AfterFunc(t.cfg.Timeout, func() { _ = conn.Close() })
	abort := func(stage string, err error) (*gosmtp.Client, func() bool, error) {
		handshake.Stop()
		stop()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%s: %w", stage, contextCause(ctx, err))
	}

	tlsConfig := &tls.Config{
		ServerName:         t.cfg.Host,
		InsecureSkipVerify: t.cfg.SkipVerify, //nolint:gosec // 仅本地调试开启
		MinVersion:         tls.VersionTLS12,
	}

	var client *gosmtp.Client
	switch t.cfg.Encryption {
	case config.EncryptionTLS:
		client = gosmtp.NewClient(tls.Client(conn, tlsConfig))
	case config.EncryptionSTARTTLS:
		// 升级前的 EHLO 由 go-smtp 以 localhost 发出，升级后重新以 HeloName 问候
		client, err = gosmtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			return abort("starttls", err)
		}
	default:
		client = gosmtp.NewClient(conn)
	}
	client.CommandTimeout = t.cfg.Timeout
	client.SubmissionTimeout = t.cfg.Timeout

	if err := client.Hello(t.cfg.HeloName); err != nil {
		return abort("hello", err)
	}
	if !handshake.Stop() {
		return abort("handshake", os.ErrDeadlineExceeded)
	}
	return client, stop, nil
}

func (t *SMTPTransport) fail(kind domain.TransportErrorKind, err error) error {
	return &domain.TransportError{Method: MethodSMTP, Kind: kind, Err: err}
}

// classify 网络错误与超时归入 connection，其余（服务器回复、能力不支持）归入 protocolKind
func classify(ctx context.Context, err error, protocolKind domain.TransportErrorKind) domain.TransportErrorKind {
	if ctx.Err() != nil {
		return domain.TransportConnection
	}
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return protocolKind
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return domain.TransportConnection
	}
	return protocolKind
}

// contextCause context 已结束时把其原因并入错误，便于上层识别超时
func contextCause(ctx context.Context, err error) error {
	if cause := ctx.Err(); cause != nil && !errors.Is(err, cause) {
		return fmt.Errorf("%w: %w", cause, err)
	}
	return err
}
