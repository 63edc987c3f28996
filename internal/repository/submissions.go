package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const submissionsCollection = "submissions"

// SubmissionsRepository reads the judge's submissions. It never writes.
type SubmissionsRepository struct {
	mongoRepo *MongoRepository
}

func NewSubmissionsRepository(mongoRepo *MongoRepository) *SubmissionsRepository {
	return &SubmissionsRepository{
		mongoRepo: mongoRepo,
	}
}

// ListByProblem returns every submission of a problem ordered by id.
// Documents that fail to decode are reported as skipped.
func (r *SubmissionsRepository) ListByProblem(ctx context.Context, problemID int64) ([]*models.Submission, []models.SkippedSubmission, error) {
	filter := bson.M{"problemId": problemID}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.mongoRepo.FindMany(ctx, submissionsCollection, filter, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find submissions: %w", err)
	}
	defer cursor.Close(ctx)

	var (
		submissions []*models.Submission
		skipped     []models.SkippedSubmission
	)
	for cursor.Next(ctx) {
		var s models.Submission
		if err := cursor.Decode(&s); err != nil {
			id, _ := cursor.Current.Lookup("_id").AsInt64OK()
			decodeErr := &apperr.DecodeError{SubmissionID: id, Err: err}
			log.Warn().Err(decodeErr).Int64("problemId", problemID).Msg("Skipping undecodable submission")
			skipped = append(skipped, models.SkippedSubmission{SubmissionID: id, Reason: decodeErr.Error()})
			continue
		}
		submissions = append(submissions, &s)
	}
	if err := cursor.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate submissions: %w", err)
	}

	return submissions, skipped, nil
}

func (r *SubmissionsRepository) GetSubmission(ctx context.Context, id int64) (*models.Submission, error) {
	var s models.Submission
	err := r.mongoRepo.FindOne(ctx, submissionsCollection, bson.M{"_id": id}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("submission %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}
	return &s, nil
}
