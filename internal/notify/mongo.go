package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/RishiKendai/dupcheck/internal/repository"
)

const notificationsCollection = "notifications"

// MongoSender writes notifications into the judge's notifications
// collection, where the judge UI picks them up.
type MongoSender struct {
	mongoRepo *repository.MongoRepository
}

func NewMongoSender(mongoRepo *repository.MongoRepository) *MongoSender {
	return &MongoSender{mongoRepo: mongoRepo}
}

func (s *MongoSender) Send(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := s.mongoRepo.InsertOne(ctx, notificationsCollection, n); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}
