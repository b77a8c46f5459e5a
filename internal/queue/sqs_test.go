package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

type fakeSQS struct {
	input *sqs.SendMessageBatchInput
	out   *sqs.SendMessageBatchOutput
	err   error
}

func (f *fakeSQS) SendMessageBatch(_ context.Context, in *sqs.SendMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestSQSTransportBuildsEntries(t *testing.T) {
	api := &fakeSQS{out: &sqs.SendMessageBatchOutput{
		Successful: []types.SendMessageBatchResultEntry{{Id: aws.String("msg0")}},
		Failed: []types.BatchResultErrorEntry{
			{Id: aws.String("msg1"), Code: aws.String("InternalError"), Message: aws.String("oops"), SenderFault: false},
		},
	}}
	tr := NewSQSTransport(api, "https://sqs.example/queue")

	res, err := tr.SendBatch(context.Background(), payloads(2), Attributes{FromName: "Acme", Subject: "Hello"})
	require.NoError(t, err)

	assert.Equal(t, "https://sqs.example/queue", aws.ToString(api.input.QueueUrl))
	require.Len(t, api.input.Entries, 2)
	e := api.input.Entries[1]
	assert.Equal(t, "msg1", aws.ToString(e.Id))
	assert.Equal(t, "Acme", aws.ToString(e.MessageAttributes["FromName"].StringValue))
	assert.Equal(t, "Hello", aws.ToString(e.MessageAttributes["Subject"].StringValue))
	assert.Equal(t, "String", aws.ToString(e.MessageAttributes["Subject"].DataType))

	var body domain.RecipientPayload
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(e.MessageBody)), &body))
	assert.Equal(t, "r1@example.com", body.Email)

	assert.Equal(t, 1, res.Successful)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 1, res.Failed[0].Index)
	assert.Equal(t, "InternalError", res.Failed[0].Code)
}

func TestSQSTransportRejectsBadBatchSizes(t *testing.T) {
	tr := NewSQSTransport(&fakeSQS{}, "q")

	_, err := tr.SendBatch(context.Background(), nil, Attributes{})
	assert.ErrorIs(t, err, ErrInvalidBatch)
	_, err = tr.SendBatch(context.Background(), payloads(11), Attributes{})
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestSQSTransportMapsThrottling(t *testing.T) {
	api := &fakeSQS{err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "rate exceeded"}}
	tr := NewSQSTransport(api, "q")

	_, err := tr.SendBatch(context.Background(), payloads(1), Attributes{})
	assert.ErrorIs(t, err, ErrThrottled)
}

func TestSQSTransportOtherErrorsAreNotThrottles(t *testing.T) {
	api := &fakeSQS{err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}}
	tr := NewSQSTransport(api, "q")

	_, err := tr.SendBatch(context.Background(), payloads(1), Attributes{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrThrottled)
}

func TestSQSTransportIgnoresUnknownEntryIDs(t *testing.T) {
	api := &fakeSQS{out: &sqs.SendMessageBatchOutput{
		Failed: []types.BatchResultErrorEntry{{Id: aws.String("bogus")}, {Id: aws.String("msg9")}},
	}}
	tr := NewSQSTransport(api, "q")

	res, err := tr.SendBatch(context.Background(), payloads(2), Attributes{})
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
}

func TestNewSQSClient(t *testing.T) {
	cfg := aws.Config{Region: "us-east-1"}
	client := NewSQSClient(cfg, ClientConfig{MaxConnsPerHost: 50, Endpoint: "http://localhost:4566"})
	assert.NotNil(t, client)
}
