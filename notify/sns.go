package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsPublisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSProvider sends transactional SMS through AWS SNS.
type SNSProvider struct {
	client snsPublisher
	to     string
	logger *slog.Logger
}

// NewSNSProvider creates an SNS provider with static credentials. The SDK
// does not retry publishes.
func NewSNSProvider(ctx context.Context, accessKeyID, secretAccessKey, region, to string, logger *slog.Logger) (*SNSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(1),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SNSProvider{
		client: sns.NewFromConfig(cfg),
		to:     to,
		logger: logger,
	}, nil
}

func (p *SNSProvider) Name() string { return ProviderSNS }

// Send publishes the message directly to the recipient phone number.
func (p *SNSProvider) Send(ctx context.Context, msg Message) error {
	out, err := p.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(p.to),
		Message:     aws.String(msg.Text),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}

	p.logger.Info("SMS sent via SNS",
		"to", p.to,
		"tier", msg.Alert.TierName,
		"message_id", aws.ToString(out.MessageId))
	return nil
}
