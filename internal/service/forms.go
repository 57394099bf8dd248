package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"incorvix/backend/internal/compose"
	"incorvix/backend/internal/config"
	"incorvix/backend/internal/domain"
	"incorvix/backend/internal/logger"
	"incorvix/backend/internal/mailer"
	"incorvix/backend/internal/monitoring"
)

// ContactService 联系表单
type ContactService struct {
	delivery
	composer *compose.Composer
}

// NewContactService 创建联系表单服务
func NewContactService(cfg *config.Config, composer *compose.Composer, transport mailer.Transport, metrics *monitoring.Metrics, log *zap.Logger) *ContactService {
	return &ContactService{
		delivery: delivery{form: "contact", transport: transport, metrics: metrics, logger: log, timeout: cfg.Pipeline.Timeout},
		composer: composer,
	}
}

// Submit 校验并投递联系表单
func (s *ContactService) Submit(ctx context.Context, req *domain.ContactRequest) (*domain.DeliveryOutcome, error) {
	outcome := &domain.DeliveryOutcome{
		SubmissionID: uuid.NewString(),
		Method:       s.transport.Name(),
		Recipient:    s.composer.Recipient(),
	}
	domain.NormalizeContact(req)
	if err := domain.Validate(req); err != nil {
		return outcome, s.reject(outcome, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg, err := s.composer.Contact(req)
	if err != nil {
		s.logger.Error("构建联系表单通知失败", zap.Error(err))
		return outcome, s.fail(ctx, outcome, err)
	}
	err = s.send(ctx, outcome, msg, func() (*domain.ComposedMessage, error) {
		return s.composer.ContactReply(req)
	}, req.Email)
	if err != nil {
		s.logger.Error("联系表单通知发送失败", zap.String("submission_id", outcome.SubmissionID), zap.Error(err))
		return outcome, err
	}

	s.logger.Info("联系表单已提交",
		zap.String("submission_id", outcome.SubmissionID),
		logger.Email("email", req.Email))
	return outcome, nil
}

// ConsultationService 咨询预约表单
type ConsultationService struct {
	delivery
	composer *compose.Composer
}

// NewConsultationService 创建咨询预约服务
func NewConsultationService(cfg *config.Config, composer *compose.Composer, transport mailer.Transport, metrics *monitoring.Metrics, log *zap.Logger) *ConsultationService {
	return &ConsultationService{
		delivery: delivery{form: "consultation", transport: transport, metrics: metrics, logger: log, timeout: cfg.Pipeline.Timeout},
		composer: composer,
	}
}

// Submit 校验并投递咨询预约
func (s *ConsultationService) Submit(ctx context.Context, req *domain.ConsultationRequest) (*domain.DeliveryOutcome, error) {
	outcome := &domain.DeliveryOutcome{
		SubmissionID: uuid.NewString(),
		Method:       s.transport.Name(),
		Recipient:    s.composer.Recipient(),
	}
	domain.NormalizeConsultation(req)
	if err := domain.Validate(req); err != nil {
		return outcome, s.reject(outcome, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg, err := s.composer.Consultation(req)
	if err != nil {
		s.logger.Error("构建咨询通知失败", zap.Error(err))
		return outcome, s.fail(ctx, outcome, err)
	}
	err = s.send(ctx, outcome, msg, func() (*domain.ComposedMessage, error) {
		return s.composer.ConsultationReply(req)
	}, req.Email)
	if err != nil {
		s.logger.Error("咨询通知发送失败", zap.String("submission_id", outcome.SubmissionID), zap.Error(err))
		return outcome, err
	}

	s.logger.Info("咨询预约已提交",
		zap.String("submission_id", outcome.SubmissionID),
		logger.Email("email", req.Email),
		zap.String("service", req.Service))
	return outcome, nil
}
