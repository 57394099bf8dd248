// Package smtp 提供本地开发用的 SMTP 收件服务。
//
// 它接收并解析投递过来的邮件，保存在内存中（可选写入 .eml 文件），
// 不做任何转发，用于在没有真实邮件服务商时检查网站发出的邮件。
package smtp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"incorvix/backend/internal/config"
)

const maxMessageBytes = 25 << 20

// ReceivedMessage 一封已接收的邮件
type ReceivedMessage struct {
	ID         string
	Helo       string
	From       string
	Recipients []string
	Raw        []byte
	Parsed     *ParsedEmail
	ReceivedAt time.Time
}

// Backend 实现 go-smtp 的 Backend 接口
//
// 设置了用户名时要求 PLAIN 认证，否则接受匿名投递。
type Backend struct {
	username  string
	password  string
	outputDir string
	logger    *zap.Logger

	mu       sync.Mutex
	messages []*ReceivedMessage
	notify   chan struct{}
}

// NewBackend 创建收件后端
func NewBackend(cfg config.SinkConfig, logger *zap.Logger) (*Backend, error) {
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create sink output dir: %w", err)
		}
	}
	return &Backend{
		username:  cfg.Username,
		password:  cfg.Password,
		outputDir: cfg.OutputDir,
		logger:    logger,
		notify:    make(chan struct{}, 1),
	}, nil
}

// NewServer 创建绑定到该后端的 SMTP 服务器
//
// 收件服务只在本地使用，因此允许明文连接上的认证。
func NewServer(backend *Backend, cfg config.SinkConfig) *gosmtp.Server {
	server := gosmtp.NewServer(backend)
	server.Addr = cfg.Addr
	server.Domain = cfg.Domain
	server.AllowInsecureAuth = true
	server.ReadTimeout = 30 * time.Second
	server.WriteTimeout = 30 * time.Second
	server.MaxMessageBytes = maxMessageBytes
	server.MaxRecipients = 50
	return server
}

// Messages 返回已接收邮件的快照
func (b *Backend) Messages() []*ReceivedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*ReceivedMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

// WaitFor 等待直到至少收到 n 封邮件
func (b *Backend) WaitFor(ctx context.Context, n int) ([]*ReceivedMessage, error) {
	for {
		msgs := b.Messages()
		if len(msgs) >= n {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return msgs, ctx.Err()
		case <-b.notify:
		}
	}
}

func (b *Backend) store(msg *ReceivedMessage) error {
	if b.outputDir != "" {
		name := fmt.Sprintf("%s_%s.eml", msg.ReceivedAt.Format("20060102T150405"), msg.ID[:8])
		if err := os.WriteFile(filepath.Join(b.outputDir, name), msg.Raw, 0o644); err != nil {
			return err
		}
	}

	b.mu.Lock()
	b.messages = append(b.messages, msg)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// NewSession 创建新的 SMTP 会话
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	remote := ""
	if addr := c.Conn().RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &session{backend: b, remote: remote, helo: c.Hostname()}, nil
}

type session struct {
	backend       *Backend
	remote        string
	helo          string
	authenticated bool
	from          string
	recipients    []string
}

var errAuthRequired = &gosmtp.SMTPError{
	Code:         530,
	EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
	Message:      "authentication required",
}

var errInvalidCredentials = &gosmtp.SMTPError{
	Code:         535,
	EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
	Message:      "authentication credentials invalid",
}

// AuthMechanisms 支持的认证方式
func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

// Auth 处理 AUTH 命令
func (s *session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, gosmtp.ErrAuthUnknownMechanism
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if !s.backend.checkCredentials(username, password) {
			s.backend.logger.Warn("SMTP 认证失败", zap.String("remote", s.remote))
			return errInvalidCredentials
		}
		s.authenticated = true
		return nil
	}), nil
}

func (b *Backend) checkCredentials(username, password string) bool {
	if b.username == "" {
		return true
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(b.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(b.password)) == 1
	return userOK && passOK
}

// Mail 处理 MAIL 命令
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.backend.username != "" && !s.authenticated {
		return errAuthRequired
	}
	s.from = from
	return nil
}

// Rcpt 处理 RCPT 命令
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	if !strings.Contains(addr, "@") {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 接收并保存邮件内容
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, maxMessageBytes))
	if err != nil {
		return err
	}

	parsed, err := ParseEmail(raw)
	if err != nil {
		s.backend.logger.Warn("无法解析收到的邮件", zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "malformed message",
		}
	}

	msg := &ReceivedMessage{
		ID:         uuid.NewString(),
		Helo:       s.helo,
		From:       s.from,
		Recipients: append([]string(nil), s.recipients...),
		Raw:        raw,
		Parsed:     parsed,
		ReceivedAt: time.Now(),
	}
	if err := s.backend.store(msg); err != nil {
		s.backend.logger.Error("保存邮件失败", zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary storage failure",
		}
	}

	s.backend.logger.Info("收到邮件",
		zap.String("id", msg.ID),
		zap.String("subject", parsed.Subject),
		zap.Int("recipients", len(msg.Recipients)),
		zap.Int("attachments", len(parsed.Attachments)),
		zap.Int("size", len(raw)),
	)
	return nil
}

// Reset 重置状态
func (s *session) Reset() {
	s.from = ""
	s.recipients = nil
}

// Logout 会话结束
func (s *session) Logout() error {
	return nil
}

// Serve 在 listener 上运行服务器直到 ctx 结束
func Serve(ctx context.Context, server *gosmtp.Server, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(l) }()

	select {
	case err := <-errCh:
		if errors.Is(err, gosmtp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return server.Close()
		}
		return nil
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
