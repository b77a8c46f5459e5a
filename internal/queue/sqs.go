package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// SQSAPI is the slice of the SQS client used here.
type SQSAPI interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// ClientConfig tunes the SQS client built for each run.
type ClientConfig struct {
	Region          string
	AccessKey       string
	SecretKey       string
	Endpoint        string
	MaxConnsPerHost int
	Timeout         time.Duration
	MaxAttempts     int
}

// LoadAWSConfig resolves credentials and region once per process. Static
// keys are used when set; otherwise the default chain applies.
func LoadAWSConfig(ctx context.Context, cc ClientConfig) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cc.Region)}
	if cc.AccessKey != "" && cc.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cc.AccessKey, cc.SecretKey, ""),
		))
	}
	if cc.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cc.MaxAttempts))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// NewSQSClient builds a client with its own keep-alive connection pool.
func NewSQSClient(awsCfg aws.Config, cc ClientConfig) *sqs.Client {
	httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		if cc.MaxConnsPerHost > 0 {
			tr.MaxConnsPerHost = cc.MaxConnsPerHost
			tr.MaxIdleConnsPerHost = cc.MaxConnsPerHost
		}
	})
	if cc.Timeout > 0 {
		httpClient = httpClient.WithTimeout(cc.Timeout)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		o.HTTPClient = httpClient
		if cc.Endpoint != "" {
			o.BaseEndpoint = aws.String(cc.Endpoint)
		}
	})
}

// SQSTransport sends batches with SendMessageBatch.
type SQSTransport struct {
	client   SQSAPI
	queueURL string
}

// NewSQSTransport creates a transport for queueURL.
func NewSQSTransport(client SQSAPI, queueURL string) *SQSTransport {
	return &SQSTransport{client: client, queueURL: queueURL}
}

// MaxBatchSize implements Transport.
func (t *SQSTransport) MaxBatchSize() int { return MaxBatchSize }

// SendBatch implements Transport. Entry ids are msg<i>, matching the payload index.
func (t *SQSTransport) SendBatch(ctx context.Context, payloads []domain.RecipientPayload, attrs Attributes) (*BatchResult, error) {
	if len(payloads) == 0 || len(payloads) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d entries", ErrInvalidBatch, len(payloads))
	}

	msgAttrs := map[string]types.MessageAttributeValue{
		"FromName": {DataType: aws.String("String"), StringValue: aws.String(attrs.FromName)},
		"Subject":  {DataType: aws.String("String"), StringValue: aws.String(attrs.Subject)},
	}

	entries := make([]types.SendMessageBatchRequestEntry, 0, len(payloads))
	for i, p := range payloads {
		body, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload %d: %w", i, err)
		}
		entries = append(entries, types.SendMessageBatchRequestEntry{
			Id:                aws.String("msg" + strconv.Itoa(i)),
			MessageBody:       aws.String(string(body)),
			MessageAttributes: msgAttrs,
		})
	}

	out, err := t.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(t.queueURL),
		Entries:  entries,
	})
	if err != nil {
		if isThrottleError(err) {
			return nil, fmt.Errorf("%w: %v", ErrThrottled, err)
		}
		return nil, fmt.Errorf("send message batch: %w", err)
	}

	res := &BatchResult{Successful: len(out.Successful)}
	for _, f := range out.Failed {
		idx, ok := entryIndex(aws.ToString(f.Id), len(payloads))
		if !ok {
			continue
		}
		res.Failed = append(res.Failed, EntryFailure{
			Index:       idx,
			Code:        aws.ToString(f.Code),
			Message:     aws.ToString(f.Message),
			SenderFault: f.SenderFault,
		})
	}
	return res, nil
}

func entryIndex(id string, n int) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimPrefix(id, "msg"))
	if err != nil || idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

func isThrottleError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return isThrottleCode(apiErr.ErrorCode())
	}
	return false
}
