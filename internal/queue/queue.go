// Package queue provides the FIFO message broker adapter (SQS) and the
// consumer loop used by the zip and file workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
)

// Client wraps the SQS API for FIFO send and purge.
//
// FIFO semantics the pipeline relies on: messages with the same group id
// are delivered in order to at most one consumer at a time, and
// deduplication ids collide within a 5-minute window.
type Client struct {
	sqs    *sqs.Client
	logger *logging.Logger
}

// NewClient creates the queue adapter using the default AWS credential
// chain.
func NewClient(ctx context.Context, region string) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Client{
		sqs:    sqs.NewFromConfig(awsCfg),
		logger: logging.NewLogger("queue", false),
	}, nil
}

// Send publishes payload (JSON-encoded) to queueURL with the given FIFO
// group and deduplication ids.
func (c *Client) Send(ctx context.Context, queueURL string, payload any, groupID, dedupID string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal queue payload: %w", err)
	}
	_, err = c.sqs.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(queueURL),
		MessageBody:            aws.String(string(body)),
		MessageGroupId:         aws.String(groupID),
		MessageDeduplicationId: aws.String(dedupID),
	})
	if err != nil {
		return models.Transientf("send to %s failed: %v", queueURL, err)
	}
	c.logger.Debug().
		Str("queue", queueURL).
		Str("group", groupID).
		Str("dedup", dedupID).
		Msg("Message sent")
	return nil
}

// PurgeAll drops all in-flight messages from the given queues. The purge
// is eventually consistent; callers must tolerate up to 60 s of residual
// delivery.
func (c *Client) PurgeAll(ctx context.Context, queueURLs []string) error {
	for _, url := range queueURLs {
		if _, err := c.sqs.PurgeQueue(ctx, &sqs.PurgeQueueInput{QueueUrl: aws.String(url)}); err != nil {
			return models.Transientf("purge of %s failed: %v", url, err)
		}
		c.logger.Info().Str("queue", url).Msg("Queue purged")
	}
	return nil
}
