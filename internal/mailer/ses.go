package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"incorvix/backend/internal/domain"
)

// sesAPI SES v2 客户端中用到的部分
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESTransport 通过 Amazon SES v2 发送原始 MIME 邮件
type SESTransport struct {
	client sesAPI
	logger *zap.Logger
}

// NewSESTransport 使用默认凭证链创建 SES 传输
func NewSESTransport(ctx context.Context, region string, logger *zap.Logger) (*SESTransport, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &SESTransport{client: sesv2.NewFromConfig(awsCfg), logger: logger}, nil
}

// Name 传输方式名称
func (t *SESTransport) Name() string { return MethodSES }

// Send 以 Raw 内容提交，保留已构建的 MIME 结构与附件
func (t *SESTransport) Send(ctx context.Context, msg *domain.ComposedMessage) error {
	out, err := t.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.EnvelopeFrom()),
		Destination:      &types.Destination{ToAddresses: msg.Recipients()},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: msg.Raw},
		},
	})
	if err != nil {
		kind := domain.TransportConnection
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			kind = domain.TransportRejected
			if apiErr.ErrorCode() == "AccessDeniedException" || apiErr.ErrorCode() == "UnrecognizedClientException" {
				kind = domain.TransportAuth
			}
		}
		return &domain.TransportError{Method: MethodSES, Kind: kind, Err: err}
	}
	t.logger.Debug("SES 已接收邮件", zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}
