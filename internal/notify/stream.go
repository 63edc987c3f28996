package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/redis/go-redis/v9"
)

// StreamSender appends notifications to a Redis stream for another service
// to deliver.
type StreamSender struct {
	client    *redis.Client
	streamKey string
}

func NewStreamSender(client *redis.Client, streamKey string) *StreamSender {
	return &StreamSender{client: client, streamKey: streamKey}
}

func (s *StreamSender) Send(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamKey,
		Values: map[string]interface{}{
			"userId":    n.UserID,
			"title":     n.Title,
			"message":   n.Message,
			"createdAt": n.CreatedAt.Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add notification to stream: %w", err)
	}
	return nil
}
