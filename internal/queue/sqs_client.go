package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
)

// sqsAPI abstracts the AWS SQS client for testability.
type sqsAPI interface {
	GetQueueURL(ctx context.Context, name string) (string, error)
	CreateQueue(ctx context.Context, name string) (string, error)
	SendMessage(ctx context.Context, input *sqsSendInput) (*sqsSendOutput, error)
	ReceiveMessage(ctx context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error)
	DeleteMessage(ctx context.Context, input *sqsDeleteInput) error
	ApproximateCount(ctx context.Context, queueURL string) (int, error)
	PurgeQueue(ctx context.Context, queueURL string) error
}

// sqsSendInput mirrors the fields needed for SQS SendMessage.
type sqsSendInput struct {
	QueueURL     string
	MessageBody  string
	DelaySeconds int32
	Attributes   map[string]string
}

// sqsSendOutput contains the result of a successful SendMessage call.
type sqsSendOutput struct {
	MessageID string
}

// sqsReceiveInput mirrors the fields needed for SQS ReceiveMessage.
type sqsReceiveInput struct {
	QueueURL            string
	MaxNumberOfMessages int32
	WaitTimeSeconds     int32
	VisibilityTimeout   int32 // zero: queue default
}

// sqsReceiveOutput contains the messages returned by ReceiveMessage.
type sqsReceiveOutput struct {
	Messages []sqsReceivedMessage
}

// sqsReceivedMessage represents a single message received from SQS.
type sqsReceivedMessage struct {
	MessageID     string
	ReceiptHandle string
	Body          string
	Attributes    map[string]string
	ReceiveCount  int
	SentAt        time.Time
}

// sqsDeleteInput mirrors the fields needed for SQS DeleteMessage.
type sqsDeleteInput struct {
	QueueURL      string
	ReceiptHandle string
}

// awsSQSClient wraps the real AWS SQS SDK client and implements sqsAPI.
type awsSQSClient struct {
	client *sqs.Client
}

// newAWSSQSClient creates an awsSQSClient from the SQS fields of cfg. A
// custom endpoint and static credentials allow pointing at localstack.
func newAWSSQSClient(ctx context.Context, cfg Config) (*awsSQSClient, error) {
	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.SQSRegion),
	}
	if cfg.SQSAccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SQSAccessKeyID, cfg.SQSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var sqsOptFns []func(*sqs.Options)
	if cfg.SQSEndpoint != "" {
		sqsOptFns = append(sqsOptFns, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.SQSEndpoint)
		})
	}

	return &awsSQSClient{client: sqs.NewFromConfig(awsCfg, sqsOptFns...)}, nil
}

// GetQueueURL looks up a queue by name. A missing queue yields ErrQueueNotFound.
func (c *awsSQSClient) GetQueueURL(ctx context.Context, name string) (string, error) {
	out, err := c.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		if isQueueDoesNotExist(err) {
			return "", fmt.Errorf("%s: %w", name, ErrQueueNotFound)
		}
		return "", err
	}
	return aws.ToString(out.QueueUrl), nil
}

// CreateQueue creates a standard queue. SQS treats it as a no-op when a queue
// with the same name and attributes exists.
func (c *awsSQSClient) CreateQueue(ctx context.Context, name string) (string, error) {
	out, err := c.client.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String(name)})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.QueueUrl), nil
}

// SendMessage sends a message to the specified SQS queue.
func (c *awsSQSClient) SendMessage(ctx context.Context, input *sqsSendInput) (*sqsSendOutput, error) {
	params := &sqs.SendMessageInput{
		QueueUrl:     &input.QueueURL,
		MessageBody:  &input.MessageBody,
		DelaySeconds: input.DelaySeconds,
	}
	if len(input.Attributes) > 0 {
		params.MessageAttributes = make(map[string]types.MessageAttributeValue, len(input.Attributes))
		for k, v := range input.Attributes {
			params.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}

	out, err := c.client.SendMessage(ctx, params)
	if err != nil {
		return nil, err
	}
	return &sqsSendOutput{MessageID: aws.ToString(out.MessageId)}, nil
}

// ReceiveMessage polls the specified SQS queue for messages.
func (c *awsSQSClient) ReceiveMessage(ctx context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error) {
	params := &sqs.ReceiveMessageInput{
		QueueUrl:              &input.QueueURL,
		MaxNumberOfMessages:   input.MaxNumberOfMessages,
		WaitTimeSeconds:       input.WaitTimeSeconds,
		MessageAttributeNames: []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
			types.MessageSystemAttributeNameSentTimestamp,
		},
	}
	if input.VisibilityTimeout > 0 {
		params.VisibilityTimeout = input.VisibilityTimeout
	}

	out, err := c.client.ReceiveMessage(ctx, params)
	if err != nil {
		return nil, err
	}

	messages := make([]sqsReceivedMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		rm := sqsReceivedMessage{
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
			Attributes:    make(map[string]string, len(m.MessageAttributes)),
		}
		for k, v := range m.MessageAttributes {
			rm.Attributes[k] = aws.ToString(v.StringValue)
		}
		if n, err := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil {
			rm.ReceiveCount = n
		}
		if ms, err := strconv.ParseInt(m.Attributes[string(types.MessageSystemAttributeNameSentTimestamp)], 10, 64); err == nil {
			rm.SentAt = time.UnixMilli(ms)
		}
		messages = append(messages, rm)
	}
	return &sqsReceiveOutput{Messages: messages}, nil
}

// DeleteMessage deletes a message from the specified SQS queue.
func (c *awsSQSClient) DeleteMessage(ctx context.Context, input *sqsDeleteInput) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &input.QueueURL,
		ReceiptHandle: &input.ReceiptHandle,
	})
	return err
}

// ApproximateCount sums visible, in-flight and delayed messages.
func (c *awsSQSClient) ApproximateCount(ctx context.Context, queueURL string) (int, error) {
	out, err := c.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: &queueURL,
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
			types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
		},
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, v := range out.Attributes {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse queue attribute %q: %w", v, err)
		}
		total += n
	}
	return total, nil
}

// PurgeQueue deletes every message in the queue.
func (c *awsSQSClient) PurgeQueue(ctx context.Context, queueURL string) error {
	_, err := c.client.PurgeQueue(ctx, &sqs.PurgeQueueInput{QueueUrl: &queueURL})
	return err
}

// isQueueDoesNotExist matches both the JSON protocol error type and the legacy
// query protocol error code.
func isQueueDoesNotExist(err error) bool {
	var qne *types.QueueDoesNotExist
	if errors.As(err, &qne) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "AWS.SimpleQueueService.NonExistentQueue"
	}
	return false
}
