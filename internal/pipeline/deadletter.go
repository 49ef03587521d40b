package internal

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	zlog "github.com/rs/zerolog/log"
)

const deadLetterTimeout = 5 * time.Second

// DeadLetter forwards permanently failed deliveries to an SQS queue so
// they can be inspected out of band. A nil DeadLetter is a no-op.
type DeadLetter struct {
	client *sqs.Client
	url    string
}

func NewDeadLetter(ctx context.Context, queueURL string) (*DeadLetter, error) {
	if queueURL == "" {
		return nil, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return &DeadLetter{
		client: sqs.NewFromConfig(cfg),
		url:    queueURL,
	}, nil
}

func (d *DeadLetter) Forward(ctx context.Context, body []byte, cause error) {
	if d == nil {
		return
	}

	_, err := d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.url),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"error": {
				DataType:    aws.String("String"),
				StringValue: aws.String(cause.Error()),
			},
		},
	})
	if err != nil {
		zlog.Error().Err(err).Msg("failed to forward delivery to dead letter queue")
	}
}
