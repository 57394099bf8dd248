package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"incorvix/backend/internal/domain"
)

// SendmailTransport 把完整邮件交给本机的投递程序
//
// 收件人由程序从邮件头读取（-t），只能得到成功/失败两种结果。
type SendmailTransport struct {
	path   string
	logger *zap.Logger
}

// NewSendmailTransport 创建本地投递传输
func NewSendmailTransport(path string, logger *zap.Logger) (*SendmailTransport, error) {
	if path == "" {
		return nil, errors.New("sendmail path must not be empty")
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("sendmail not available: %w", err)
	}
	return &SendmailTransport{path: resolved, logger: logger}, nil
}

// Name 传输方式名称
func (t *SendmailTransport) Name() string { return MethodSendmail }

// Send 通过 stdin 提交邮件
func (t *SendmailTransport) Send(ctx context.Context, msg *domain.ComposedMessage) error {
	cmd := exec.CommandContext(ctx, t.path, "-t", "-i", "-f", msg.EnvelopeFrom())
	cmd.Stdin = bytes.NewReader(msg.Raw)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		t.logger.Warn("本地投递程序返回失败",
			zap.String("path", t.path),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
			zap.Error(err))
		return &domain.TransportError{Method: MethodSendmail, Kind: domain.TransportSubmission, Err: errors.New("mail submission failed")}
	}
	return nil
}
