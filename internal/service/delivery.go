// Package service 实现表单提交管线：校验 → 上传 → 构建邮件 → 投递 → 结果。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"incorvix/backend/internal/domain"
	"incorvix/backend/internal/logger"
	"incorvix/backend/internal/mailer"
	"incorvix/backend/internal/monitoring"
)

// 提交结果标签，用于指标
const (
	outcomeSuccess = "success"
	outcomeInvalid = "invalid"
	outcomeFailed  = "failed"
	outcomeTimeout = "timeout"
)

// delivery 各表单共用的投递流程：主邮件成功后才发送自动回复
type delivery struct {
	form      string
	transport mailer.Transport
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	timeout   time.Duration
}

// withTimeout 为单次提交设置总耗时上限
func (d *delivery) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

// send 投递主邮件，成功后尝试自动回复
//
// 自动回复失败只记录日志，不影响结果。
func (d *delivery) send(ctx context.Context, outcome *domain.DeliveryOutcome, primary *domain.ComposedMessage, reply func() (*domain.ComposedMessage, error), submitter string) error {
	if err := d.transport.Send(ctx, primary); err != nil {
		return d.fail(ctx, outcome, err)
	}
	outcome.Success = true

	replyMsg, err := reply()
	if err != nil {
		d.logger.Error("构建自动回复失败", zap.String("form", d.form), zap.Error(err))
	} else if err := d.transport.Send(ctx, replyMsg); err != nil {
		d.logger.Warn("自动回复发送失败",
			zap.String("form", d.form),
			logger.Email("to", submitter),
			zap.Error(err))
	} else {
		outcome.AutoReplySent = true
	}

	d.record(outcomeSuccess)
	return nil
}

// fail 区分超时与传输失败
func (d *delivery) fail(ctx context.Context, outcome *domain.DeliveryOutcome, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", domain.ErrTimeout, d.timeout, err)
		d.record(outcomeTimeout)
	} else {
		d.record(outcomeFailed)
	}
	outcome.Err = err
	return err
}

// reject 记录校验失败
func (d *delivery) reject(outcome *domain.DeliveryOutcome, err error) error {
	outcome.Err = err
	d.record(outcomeInvalid)
	return err
}

func (d *delivery) record(outcome string) {
	if d.metrics != nil {
		d.metrics.RecordSubmission(d.form, outcome)
	}
}
