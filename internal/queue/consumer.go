package queue

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
)

// Handler processes one raw message body. Returning an error wrapping
// models.ErrTransient leaves the message on the queue for redelivery
// (and eventually the DLQ); any other outcome acknowledges it.
type Handler func(ctx context.Context, body string) error

// Consumer long-polls one queue and dispatches messages to a Handler.
// Messages within a batch are handled sequentially; FIFO ordering per
// message group is the broker's responsibility.
type Consumer struct {
	client   *Client
	queueURL string
	handler  Handler
	logger   *logging.Logger
}

// NewConsumer builds a consumer for queueURL.
func NewConsumer(client *Client, name, queueURL string, handler Handler) *Consumer {
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		handler:  handler,
		logger:   logging.NewLogger("consumer-"+name, false),
	}
}

// Run polls until ctx is cancelled. Receive errors are logged and the
// loop continues; only context cancellation stops it.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Str("queue", c.queueURL).Msg("Consumer started")
	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info().Msg("Consumer stopped")
			return err
		}

		resp, err := c.client.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.logger.Warn().Err(err).Msg("Receive failed, retrying")
			continue
		}

		for _, msg := range resp.Messages {
			body := aws.ToString(msg.Body)
			err := c.handler(ctx, body)
			if err != nil && models.IsTransient(err) {
				// Leave the message; the visibility timeout will expire and
				// the broker redelivers up to its receive limit before DLQ.
				c.logger.Warn().Err(err).Msg("Transient failure, message left for redelivery")
				continue
			}
			if err != nil {
				c.logger.Error().Err(err).Msg("Terminal failure, message acknowledged")
			}
			if _, delErr := c.client.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(c.queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			}); delErr != nil {
				c.logger.Warn().Err(delErr).Msg("Delete failed; message may redeliver")
			}
		}
	}
}
