package notify

import (
	"context"
	"testing"
	"time"

	"github.com/RishiKendai/dupcheck/internal/infra/redis/redistest"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamSenderAppendsNotification(t *testing.T) {
	client, store := redistest.NewClient()
	defer client.Close()
	sender := NewStreamSender(client, "notifications")

	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := sender.Send(context.Background(), &models.Notification{
		UserID:    42,
		Title:     "Code Duplication Detected",
		Message:   "review it",
		CreatedAt: createdAt,
	})
	require.NoError(t, err)

	entries := store.Stream("notifications")
	require.Len(t, entries, 1)
	assert.Equal(t, map[string]interface{}{
		"userId":    "42",
		"title":     "Code Duplication Detected",
		"message":   "review it",
		"createdAt": "2026-03-01T12:00:00Z",
	}, entries[0].Values)
}

func TestStreamSenderStampsCreatedAt(t *testing.T) {
	client, store := redistest.NewClient()
	defer client.Close()

	n := &models.Notification{UserID: 1, Title: "t", Message: "m"}
	require.NoError(t, NewStreamSender(client, "notifications").Send(context.Background(), n))

	assert.False(t, n.CreatedAt.IsZero())
	require.Len(t, store.Stream("notifications"), 1)
}

func TestStreamSenderError(t *testing.T) {
	client, store := redistest.NewClient()
	defer client.Close()
	store.FailOn("xadd", assert.AnError)

	err := NewStreamSender(client, "notifications").Send(context.Background(), &models.Notification{UserID: 1})
	assert.ErrorIs(t, err, assert.AnError)
}
