package plagiarism

import (
	"context"
	"testing"
	"time"

	"github.com/RishiKendai/dupcheck/internal/infra/redis/redistest"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatusTracker(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryStatusTracker()

	step, err := tracker.Step(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StepNoScan, step)

	require.NoError(t, tracker.SetStep(ctx, 1, models.StepScanning))
	step, err = tracker.Step(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StepScanning, step)

	assert.Error(t, tracker.SetStep(ctx, 1, models.Step("exploded")))
}

func TestRedisStatusTracker(t *testing.T) {
	ctx := context.Background()
	client, store := redistest.NewClient()
	defer client.Close()
	tracker := NewRedisStatusTracker(client)

	step, err := tracker.Step(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, models.StepNoScan, step)

	require.NoError(t, tracker.SetStep(ctx, 3, models.StepScanned))
	step, err = tracker.Step(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, models.StepScanned, step)

	assert.InDelta(t, (12 * time.Hour).Seconds(), store.TTL("dupcheck:scan_status:3").Seconds(), 1)

	assert.Error(t, tracker.SetStep(ctx, 3, models.Step("exploded")))
	step, err = tracker.Step(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, models.StepScanned, step)
}

func TestRedisStatusTrackerErrors(t *testing.T) {
	ctx := context.Background()
	client, store := redistest.NewClient()
	defer client.Close()
	tracker := NewRedisStatusTracker(client)

	store.FailOn("set", assert.AnError)
	assert.ErrorIs(t, tracker.SetStep(ctx, 3, models.StepScanning), assert.AnError)

	store.FailOn("get", assert.AnError)
	_, err := tracker.Step(ctx, 3)
	assert.ErrorIs(t, err, assert.AnError)
}
