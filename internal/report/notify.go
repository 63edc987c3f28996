package report

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/metrics"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	NotificationTitle = "Code Duplication Detected"

	notifyKeyPrefix = "dupcheck:notified:"
	notifyGuardTTL  = 30 * 24 * time.Hour
)

// NotifyGuard makes sure a submitter hears about a scan at most once.
type NotifyGuard interface {
	// Claim reports whether the caller won the right to notify.
	Claim(ctx context.Context, scanID string, userID int64) (bool, error)
	// Release gives the claim back after a failed delivery.
	Release(ctx context.Context, scanID string, userID int64) error
}

// Notify tells the flagged submitter about a finding. It returns false
// without sending when the submitter was already notified for this scan.
func (r *Renderer) Notify(ctx context.Context, findingID int64) (bool, error) {
	if r.sender == nil {
		return false, fmt.Errorf("no notification sender configured")
	}

	f, err := r.findings.Get(ctx, findingID)
	if err != nil {
		return false, err
	}

	s, err := r.submissions.GetSubmission(ctx, f.SubmissionID)
	if apperr.IsNotFound(err) {
		return false, ErrFlaggedSubmissionRemoved
	}
	if err != nil {
		return false, err
	}

	title := "#" + strconv.FormatInt(f.ProblemID, 10)
	problem, err := r.problems.GetProblem(ctx, f.ProblemID)
	switch {
	case err == nil:
		title = problem.Title
	case !apperr.IsNotFound(err):
		return false, err
	}

	claimed, err := r.guard.Claim(ctx, f.ScanID, s.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification: %w", err)
	}
	if !claimed {
		metrics.ObserveNotification("duplicate")
		log.Debug().Int64("findingId", f.ID).Int64("userId", s.UserID).Msg("Submitter already notified for this scan")
		return false, nil
	}

	n := &models.Notification{
		UserID: s.UserID,
		Title:  NotificationTitle,
		Message: fmt.Sprintf(
			"A potential code duplication has been detected in your submission for problem '%s'. Please review the details.",
			title,
		),
	}
	if err := r.sender.Send(ctx, n); err != nil {
		if relErr := r.guard.Release(context.WithoutCancel(ctx), f.ScanID, s.UserID); relErr != nil {
			log.Warn().Err(relErr).Int64("userId", s.UserID).Msg("Failed to release notification claim")
		}
		metrics.ObserveNotification("failed")
		return false, fmt.Errorf("failed to send notification: %w", err)
	}

	metrics.ObserveNotification("sent")
	log.Info().
		Int64("findingId", f.ID).
		Int64("userId", s.UserID).
		Str("scanId", f.ScanID).
		Msg("Duplication notification sent")

	return true, nil
}

func notifyKey(scanID string, userID int64) string {
	return notifyKeyPrefix + scanID + ":" + strconv.FormatInt(userID, 10)
}

// RedisNotifyGuard claims with SETNX so every replica shares the guard.
type RedisNotifyGuard struct {
	client *redis.Client
}

func NewRedisNotifyGuard(client *redis.Client) *RedisNotifyGuard {
	return &RedisNotifyGuard{client: client}
}

func (g *RedisNotifyGuard) Claim(ctx context.Context, scanID string, userID int64) (bool, error) {
	return g.client.SetNX(ctx, notifyKey(scanID, userID), time.Now().UTC().Format(time.RFC3339), notifyGuardTTL).Result()
}

func (g *RedisNotifyGuard) Release(ctx context.Context, scanID string, userID int64) error {
	return g.client.Del(ctx, notifyKey(scanID, userID)).Err()
}

type MemoryNotifyGuard struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func NewMemoryNotifyGuard() *MemoryNotifyGuard {
	return &MemoryNotifyGuard{claimed: make(map[string]bool)}
}

func (g *MemoryNotifyGuard) Claim(_ context.Context, scanID string, userID int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := notifyKey(scanID, userID)
	if g.claimed[key] {
		return false, nil
	}
	g.claimed[key] = true
	return true, nil
}

func (g *MemoryNotifyGuard) Release(_ context.Context, scanID string, userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, notifyKey(scanID, userID))
	return nil
}
