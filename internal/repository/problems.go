package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const problemsCollection = "problems"

type ProblemsRepository struct {
	mongoRepo *MongoRepository
}

func NewProblemsRepository(mongoRepo *MongoRepository) *ProblemsRepository {
	return &ProblemsRepository{
		mongoRepo: mongoRepo,
	}
}

func (r *ProblemsRepository) GetProblem(ctx context.Context, id int64) (*models.Problem, error) {
	var p models.Problem
	err := r.mongoRepo.FindOne(ctx, problemsCollection, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("problem %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find problem: %w", err)
	}
	return &p, nil
}
