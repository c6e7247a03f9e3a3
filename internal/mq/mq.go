// Package mq publishes metadata write requests onto the ingestion queue.
package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/rodriv/photo-pipeline/internal/sqlbatch"
)

// API is the subset of the SQS client the publisher uses.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher sends one WriteRequest per image; the consumer batches them.
type Publisher struct {
	Client   API
	QueueURL string
}

// Publish serializes req as the {text, values} wire format and enqueues it.
func (p *Publisher) Publish(ctx context.Context, req sqlbatch.WriteRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal write request: %w", err)
	}
	_, err = p.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.QueueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("enqueue write request: %w", err)
	}
	return nil
}
