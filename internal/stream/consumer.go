package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Scanner runs one problem scan synchronously.
type Scanner interface {
	Scan(ctx context.Context, problemID int64, threshold *float64) (*models.ScanRecord, error)
}

// Consumer turns scan requests on a Redis stream into scans. Entries left
// pending by a crashed consumer are claimed after they sit idle.
type Consumer struct {
	client            *redis.Client
	streamKey         string
	consumerGroup     string
	consumerName      string
	scanner           Scanner
	retryHandler      *RetryHandler
	retentionDuration time.Duration

	readCount       int64
	readBlock       time.Duration
	claimMinIdle    time.Duration
	pendingInterval time.Duration
	trimInterval    time.Duration
	lastPendingScan time.Time
}

func NewConsumer(
	client *redis.Client,
	streamKey string,
	consumerGroup string,
	consumerName string,
	scanner Scanner,
	retryHandler *RetryHandler,
	retentionDuration time.Duration,
) *Consumer {
	return &Consumer{
		client:            client,
		streamKey:         streamKey,
		consumerGroup:     consumerGroup,
		consumerName:      consumerName,
		scanner:           scanner,
		retryHandler:      retryHandler,
		retentionDuration: retentionDuration,
		// Scans are heavy; take a few requests at a time.
		readCount:       4,
		readBlock:       2 * time.Second,
		claimMinIdle:    5 * time.Minute,
		pendingInterval: time.Minute,
		trimInterval:    time.Hour,
	}
}

// Start blocks, consuming until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create consumer group")
	}

	if err := c.claimPending(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to recover pending scan requests on startup")
	}
	c.lastPendingScan = time.Now()

	go c.trimLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.readOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Error consuming scan requests")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.streamKey, c.consumerGroup, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			log.Debug().Str("group", c.consumerGroup).Msg("Consumer group already exists")
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Info().
		Str("group", c.consumerGroup).
		Str("stream", c.streamKey).
		Msg("Created consumer group")
	return nil
}

// claimPending takes over requests another consumer read but never acked.
// A scan can legitimately run for minutes, so only long-idle entries are
// claimed.
func (c *Consumer) claimPending(ctx context.Context) error {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.streamKey,
		Group:  c.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  50,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		if p.Idle >= c.claimMinIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.streamKey,
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		MinIdle:  c.claimMinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to claim pending requests: %w", err)
	}

	log.Info().Int("claimed", len(claimed)).Msg("Claimed idle scan requests")

	for i := range claimed {
		if err := c.handle(ctx, &claimed[i]); err != nil {
			log.Error().Err(err).Str("message_id", claimed[i].ID).Msg("Failed to process claimed scan request")
		}
	}
	return nil
}

func (c *Consumer) readOnce(ctx context.Context) error {
	if time.Since(c.lastPendingScan) > c.pendingInterval {
		if err := c.claimPending(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to recover pending scan requests")
		}
		c.lastPendingScan = time.Now()
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{c.streamKey, ">"},
		Count:    c.readCount,
		Block:    c.readBlock,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, s := range streams {
		if s.Stream != c.streamKey {
			continue
		}
		for i := range s.Messages {
			if err := c.handle(ctx, &s.Messages[i]); err != nil {
				log.Error().Err(err).Str("message_id", s.Messages[i].ID).Msg("Failed to process scan request")
			}
		}
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg *redis.XMessage) error {
	fields := make(map[string]string, len(msg.Values))
	for key, val := range msg.Values {
		if value, ok := val.(string); ok {
			fields[key] = value
		}
	}

	req, err := ParseScanRequest(&StreamMessage{ID: msg.ID, Fields: fields})
	if err != nil {
		// Never processable: drop it.
		c.acknowledge(ctx, msg.ID)
		return err
	}

	dlqFields := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		dlqFields[k] = v
	}

	err = c.retryHandler.RetryWithBackoff(ctx, func() error {
		record, err := c.scanner.Scan(ctx, req.ProblemID, req.Threshold)
		if err != nil {
			return err
		}
		log.Info().
			Str("message_id", msg.ID).
			Int64("problemId", req.ProblemID).
			Str("scanId", record.ScanID).
			Int("flagged", record.Summary.Flagged).
			Msg("Scan request processed")
		return nil
	}, msg.ID, dlqFields)

	if errors.Is(err, context.Canceled) {
		// Shutting down: leave it pending for the next consumer.
		return err
	}
	if errors.Is(err, ErrDeferred) {
		// claimPending picks it up again once it has sat idle.
		return err
	}

	// Success, or already dead-lettered.
	c.acknowledge(ctx, msg.ID)
	return err
}

// trimLoop drops entries older than the retention window.
func (c *Consumer) trimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.trimInterval)
	defer ticker.Stop()

	for {
		if err := c.trim(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Failed to trim scan request stream")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Consumer) trim(ctx context.Context) error {
	cutoff := time.Now().Add(-c.retentionDuration)
	minID := fmt.Sprintf("%d-0", cutoff.UnixMilli())

	trimmed, err := c.client.XTrimMinID(ctx, c.streamKey, minID).Result()
	if err != nil {
		return fmt.Errorf("failed to trim stream: %w", err)
	}
	if trimmed > 0 {
		log.Debug().
			Int64("trimmed", trimmed).
			Dur("retention", c.retentionDuration).
			Msg("Trimmed old scan requests")
	}
	return nil
}

func (c *Consumer) acknowledge(ctx context.Context, messageID string) {
	if err := c.client.XAck(context.WithoutCancel(ctx), c.streamKey, c.consumerGroup, messageID).Err(); err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("Failed to acknowledge message")
		return
	}
	log.Debug().Str("message_id", messageID).Msg("Message acknowledged")
}
