package service

import (
	"context"
	"errors"
	"mime/multipart"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"incorvix/backend/internal/config"
	"incorvix/backend/internal/domain"
	"incorvix/backend/internal/logger"
	"incorvix/backend/internal/mailer"
	"incorvix/backend/internal/monitoring"
	"incorvix/backend/internal/upload"
)

// 附件降级原因，出现在 attachment_status 的 "failed: " 之后
const (
	reasonUploadIncomplete = "upload incomplete"
	reasonUploadFailed     = "could not store uploaded file"
	reasonReadFailed       = "could not read uploaded file"
	reasonAttachFailed     = "could not attach file"
)

// Uploads 上传文件存储
type Uploads interface {
	Accept(ctx context.Context, fh *multipart.FileHeader) (*domain.UploadedDocument, error)
	Read(doc *domain.UploadedDocument) ([]byte, error)
	Remove(doc *domain.UploadedDocument) error
}

// ApplicationComposer 职位申请邮件构建
//
// Application 附件写入失败时返回 *domain.AttachmentAttachError，
// 以 nil content 重建即得到无附件版本。
type ApplicationComposer interface {
	Recipient() string
	Application(sub *domain.Submission, doc *domain.UploadedDocument, content []byte) (*domain.ComposedMessage, error)
	ApplicationReply(sub *domain.Submission) (*domain.ComposedMessage, error)
}

// ApplicationInput 一次职位申请请求的原始输入
type ApplicationInput struct {
	Fields map[string]string     // 表单字段
	File   *multipart.FileHeader // cv 文件，未上传时为 nil
	// FileErr 读取 cv 文件部分时的错误；http.ErrMissingFile 表示未选择文件
	FileErr error
}

// ApplicationService 职位申请管线
type ApplicationService struct {
	delivery
	uploads    Uploads
	composer   ApplicationComposer
	cvRequired bool
}

// NewApplicationService 创建职位申请服务
func NewApplicationService(
	cfg *config.Config,
	uploads Uploads,
	composer ApplicationComposer,
	transport mailer.Transport,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *ApplicationService {
	return &ApplicationService{
		delivery: delivery{
			form:      "application",
			transport: transport,
			metrics:   metrics,
			logger:    log,
			timeout:   cfg.Pipeline.Timeout,
		},
		uploads:    uploads,
		composer:   composer,
		cvRequired: cfg.Upload.CVRequired,
	}
}

// Submit 执行完整的申请管线
//
// 校验失败时不会写盘也不会发信。上传的临时文件在任何返回路径上都会被删除。
// 附件读取或写入失败时降级为无附件发送，并在 AttachmentStatus 中说明原因。
//
// 返回值:
//   - *domain.DeliveryOutcome: 始终非 nil，包含传输方式、收件地址与附件状态
//   - error: *domain.ValidationError、*domain.UploadError、domain.ErrCVRequired、
//     domain.ErrTimeout 或 *domain.TransportError
func (s *ApplicationService) Submit(ctx context.Context, in ApplicationInput) (*domain.DeliveryOutcome, error) {
	outcome := &domain.DeliveryOutcome{
		SubmissionID: uuid.NewString(),
		Method:       s.transport.Name(),
		Recipient:    s.composer.Recipient(),
	}

	sub, err := domain.ParseSubmission(in.Fields)
	if err != nil {
		return outcome, s.reject(outcome, err)
	}
	sub.ID = outcome.SubmissionID

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	log := s.logger.With(
		zap.String("submission_id", sub.ID),
		logger.Email("email", sub.Email),
		zap.String("position", sub.Position),
	)

	doc, status, err := s.acceptUpload(ctx, log, in)
	defer s.cleanup(log, doc)
	if err != nil {
		if domain.IsUserError(err) {
			return outcome, s.reject(outcome, err)
		}
		return outcome, s.fail(ctx, outcome, err)
	}

	msg, status := s.compose(log, sub, doc, status)
	outcome.AttachmentStatus = status
	if status != "" && status != domain.AttachmentSuccess && status != domain.AttachmentNoUpload {
		outcome.Warnings = append(outcome.Warnings, status)
	}
	if msg == nil {
		return outcome, s.fail(ctx, outcome, errors.New("notification could not be composed"))
	}

	err = s.send(ctx, outcome, msg, func() (*domain.ComposedMessage, error) {
		return s.composer.ApplicationReply(sub)
	}, sub.Email)
	if err != nil {
		log.Error("申请通知发送失败",
			zap.String("transport", s.transport.Name()),
			zap.String("attachment_status", outcome.AttachmentStatus),
			zap.Error(err))
		return outcome, err
	}

	log.Info("申请已提交",
		zap.String("transport", s.transport.Name()),
		zap.String("attachment_status", outcome.AttachmentStatus),
		zap.Bool("auto_reply_sent", outcome.AutoReplySent))
	return outcome, nil
}

// acceptUpload 处理可选的简历上传
//
// 返回的 status 非空表示上传未能使用，管线将以无附件方式继续。
func (s *ApplicationService) acceptUpload(ctx context.Context, log *zap.Logger, in ApplicationInput) (*domain.UploadedDocument, string, error) {
	var status string

	switch {
	case in.File != nil:
		doc, err := s.uploads.Accept(ctx, in.File)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordUpload(doc.Size)
			}
			return doc, "", nil
		}
		var ue *domain.UploadError
		if errors.As(err, &ue) {
			log.Info("上传文件被拒绝", zap.String("filename", ue.Filename), zap.Error(ue.Err))
			return nil, "", err
		}
		if ctx.Err() != nil {
			return nil, "", err
		}
		log.Warn("上传文件保存失败，继续处理无附件申请", zap.Error(err))
		status = domain.AttachmentFailed(reasonUploadFailed)
	case in.FileErr != nil && !upload.IsMissingFile(in.FileErr):
		log.Warn("上传未完整到达，继续处理无附件申请", zap.Error(in.FileErr))
		status = domain.AttachmentFailed(reasonUploadIncomplete)
	}

	if s.cvRequired {
		return nil, "", domain.ErrCVRequired
	}
	return nil, status, nil
}

// compose 构建通知邮件，附件失败时降级为无附件
func (s *ApplicationService) compose(log *zap.Logger, sub *domain.Submission, doc *domain.UploadedDocument, status string) (*domain.ComposedMessage, string) {
	if doc == nil {
		msg, err := s.composer.Application(sub, nil, nil)
		if err != nil {
			log.Error("构建申请通知失败", zap.Error(err))
			return nil, status
		}
		if status == "" {
			status = domain.AttachmentNoUpload
		}
		return msg, status
	}

	content, err := s.uploads.Read(doc)
	if err != nil {
		log.Warn("读取简历失败，以无附件方式发送", zap.Error(err))
		s.attachmentFailed()
		status = domain.AttachmentFailed(reasonReadFailed)
		content = nil
	}

	msg, err := s.composer.Application(sub, doc, content)
	var ae *domain.AttachmentAttachError
	if errors.As(err, &ae) {
		log.Warn("附件写入失败，以无附件方式发送", zap.Error(err))
		s.attachmentFailed()
		status = domain.AttachmentFailed(reasonAttachFailed)
		msg, err = s.composer.Application(sub, doc, nil)
	}
	if err != nil {
		log.Error("构建申请通知失败", zap.Error(err))
		return nil, status
	}
	if status == "" {
		status = domain.AttachmentSuccess
	}
	return msg, status
}

// cleanup 删除临时文件，所有返回路径都会执行
func (s *ApplicationService) cleanup(log *zap.Logger, doc *domain.UploadedDocument) {
	if doc == nil {
		return
	}
	err := s.uploads.Remove(doc)
	if s.metrics != nil {
		s.metrics.RecordCleanup(err)
	}
	if err != nil {
		log.Error("删除临时上传文件失败", zap.String("path", doc.Path), zap.Error(err))
	}
}

func (s *ApplicationService) attachmentFailed() {
	if s.metrics != nil {
		s.metrics.RecordAttachmentFailure()
	}
}
