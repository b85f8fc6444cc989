package sqsq

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/cannetwork/notifier/pkg/queue"
)

type Config struct {
	QueueURL string
	Region   string
	// Endpoint overrides the SQS endpoint (LocalStack, ElasticMQ).
	Endpoint  string
	AccessKey string
	SecretKey string
}

type sqsAPI interface {
	SendMessageBatch(ctx context.Context, in *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// Sender submits batches to one SQS queue. A single Sender is safe to share
// across requests.
type Sender struct {
	api      sqsAPI
	queueURL string
}

func New(ctx context.Context, cfg Config) (*Sender, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("sqs queue url is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Sender{api: client, queueURL: cfg.QueueURL}, nil
}

func (s *Sender) SendBatch(ctx context.Context, entries []queue.Entry) (queue.BatchResult, error) {
	if len(entries) == 0 {
		return queue.BatchResult{}, nil
	}
	if len(entries) > queue.MaxBatchEntries {
		return queue.BatchResult{}, fmt.Errorf("batch of %d entries exceeds the limit of %d", len(entries), queue.MaxBatchEntries)
	}

	in := &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(s.queueURL),
		Entries:  make([]types.SendMessageBatchRequestEntry, 0, len(entries)),
	}
	for _, e := range entries {
		in.Entries = append(in.Entries, types.SendMessageBatchRequestEntry{
			Id:                aws.String(e.ID),
			MessageBody:       aws.String(string(e.Body)),
			MessageAttributes: stringAttributes(e.Attributes),
		})
	}

	out, err := s.api.SendMessageBatch(ctx, in)
	if err != nil {
		return queue.BatchResult{}, wrapAPIError("SendMessageBatch", err)
	}

	res := queue.BatchResult{
		Successful: make([]queue.Success, 0, len(out.Successful)),
		Failed:     make([]queue.Failure, 0, len(out.Failed)),
	}
	for _, ok := range out.Successful {
		res.Successful = append(res.Successful, queue.Success{
			ID:        aws.ToString(ok.Id),
			MessageID: aws.ToString(ok.MessageId),
		})
	}
	for _, f := range out.Failed {
		res.Failed = append(res.Failed, queue.Failure{
			ID:          aws.ToString(f.Id),
			Code:        aws.ToString(f.Code),
			Message:     aws.ToString(f.Message),
			SenderFault: f.SenderFault,
		})
	}
	return res, nil
}

// Ping checks that the queue exists and is reachable with the configured
// credentials.
func (s *Sender) Ping(ctx context.Context) error {
	_, err := s.api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(s.queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return wrapAPIError("GetQueueAttributes", err)
	}
	return nil
}

func stringAttributes(attrs map[string]string) map[string]types.MessageAttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]types.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		if v == "" {
			// SQS rejects empty attribute values.
			continue
		}
		out[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	return out
}

func wrapAPIError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("sqs %s: %s: %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("sqs %s: %w", op, err)
}
