package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSenderPostsNotification(t *testing.T) {
	var (
		gotKey  string
		payload webhookPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "secret")
	err := sender.Send(context.Background(), &models.Notification{
		UserID:  42,
		Title:   "Code Duplication Detected",
		Message: "review it",
	})
	require.NoError(t, err)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, int64(42), payload.UserID)
	assert.Equal(t, "Code Duplication Detected", payload.Title)
	assert.Equal(t, "code_duplication_detected", payload.Event)
	assert.False(t, payload.CreatedAt.IsZero())
}

func TestWebhookSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, "").Send(context.Background(), &models.Notification{UserID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
