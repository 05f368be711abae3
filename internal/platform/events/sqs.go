package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
)

// SQSAPI is the subset of the SQS client used by SQSPublisher.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends order events to an SQS queue.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
	env      envelope
}

// NewSQSClient loads the default AWS configuration for region.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if r := strings.TrimSpace(region); r != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(r))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

// NewSQSPublisher constructs an SQS backed order event publisher.
func NewSQSPublisher(client SQSAPI, queueURL string, opts ...Option) (*SQSPublisher, error) {
	if client == nil {
		return nil, errors.New("sqs order publisher: client is required")
	}
	queueURL = strings.TrimSpace(queueURL)
	if queueURL == "" {
		return nil, errors.New("sqs order publisher: queue url is required")
	}
	return &SQSPublisher{client: client, queueURL: queueURL, env: buildEnvelope(opts)}, nil
}

// PublishOrderPlaced sends an order.placed message with string attributes.
func (p *SQSPublisher) PublishOrderPlaced(ctx context.Context, order domain.OrderRecord) error {
	event, data, err := p.env.encode(order)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]sqstypes.MessageAttributeValue)
	for key, value := range p.env.attributes(event) {
		attrs[key] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(value),
		}
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(data)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("send order event: %w", err)
	}
	return nil
}

// Close is a no-op; the SQS client holds no connections that need releasing.
func (p *SQSPublisher) Close() error { return nil }
