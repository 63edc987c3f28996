package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	statusKeyPrefix = "dupcheck:scan_status:"
	statusTTL       = 12 * time.Hour
)

// StatusTracker keeps the transient lifecycle step of each problem's scan.
type StatusTracker interface {
	SetStep(ctx context.Context, problemID int64, step models.Step) error
	// Step returns StepNoScan when nothing has been recorded.
	Step(ctx context.Context, problemID int64) (models.Step, error)
}

var validSteps = map[models.Step]bool{
	models.StepNoScan:   true,
	models.StepScanning: true,
	models.StepScanned:  true,
	models.StepFailed:   true,
}

func checkStep(step models.Step) error {
	if !validSteps[step] {
		return fmt.Errorf("unknown step: %s", step)
	}
	return nil
}

// RedisStatusTracker stores steps under dupcheck:scan_status:{problemId}.
type RedisStatusTracker struct {
	client *redis.Client
}

func NewRedisStatusTracker(client *redis.Client) *RedisStatusTracker {
	return &RedisStatusTracker{client: client}
}

func statusKey(problemID int64) string {
	return statusKeyPrefix + strconv.FormatInt(problemID, 10)
}

func (t *RedisStatusTracker) SetStep(ctx context.Context, problemID int64, step models.Step) error {
	if err := checkStep(step); err != nil {
		return err
	}

	rkey := statusKey(problemID)
	if err := t.client.Set(ctx, rkey, string(step), statusTTL).Err(); err != nil {
		log.Error().Err(err).
			Str("step", string(step)).
			Int64("problemId", problemID).
			Str("redisKey", rkey).
			Msg("Failed to update status in Redis")
		return fmt.Errorf("failed to update status in Redis: %w", err)
	}

	log.Trace().
		Str("step", string(step)).
		Int64("problemId", problemID).
		Msg("Status updated in Redis")

	return nil
}

func (t *RedisStatusTracker) Step(ctx context.Context, problemID int64) (models.Step, error) {
	val, err := t.client.Get(ctx, statusKey(problemID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.StepNoScan, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read status from Redis: %w", err)
	}
	return models.Step(val), nil
}

// MemoryStatusTracker keeps steps in process memory. Entries do not expire.
type MemoryStatusTracker struct {
	mu    sync.RWMutex
	steps map[int64]models.Step
}

func NewMemoryStatusTracker() *MemoryStatusTracker {
	return &MemoryStatusTracker{steps: make(map[int64]models.Step)}
}

func (t *MemoryStatusTracker) SetStep(_ context.Context, problemID int64, step models.Step) error {
	if err := checkStep(step); err != nil {
		return err
	}
	t.mu.Lock()
	t.steps[problemID] = step
	t.mu.Unlock()
	return nil
}

func (t *MemoryStatusTracker) Step(_ context.Context, problemID int64) (models.Step, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if step, ok := t.steps[problemID]; ok {
		return step, nil
	}
	return models.StepNoScan, nil
}
