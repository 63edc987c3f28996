package repository

import (
	"context"
	"fmt"

	"github.com/RishiKendai/dupcheck/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

type UsersRepository struct {
	mongoRepo *MongoRepository
}

func NewUsersRepository(mongoRepo *MongoRepository) *UsersRepository {
	return &UsersRepository{
		mongoRepo: mongoRepo,
	}
}

// GetUsernames resolves user ids to usernames. Unknown ids are absent from
// the result.
func (r *UsersRepository) GetUsernames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	filter := bson.M{"_id": bson.M{"$in": ids}}
	opts := options.Find().SetProjection(bson.M{"username": 1})

	cursor, err := r.mongoRepo.FindMany(ctx, usersCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names, nil
}
