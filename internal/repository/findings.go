package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	findingsCollection = "duplication_findings"
	scansCollection    = "duplication_scans"
	countersCollection = "counters"

	findingsCounterID = "duplication_findings"

	// readAttempts bounds how often a reader retries when a commit lands
	// between resolving the scan pointer and reading its findings.
	readAttempts = 3
)

// FindingsRepository stores findings without multi-document transactions.
// Each scan writes its rows under a fresh scan id, then flips the
// per-problem pointer in duplication_scans. Readers resolve the pointer
// first, so they only ever see one complete scan.
type FindingsRepository struct {
	mongoRepo *MongoRepository
}

func NewFindingsRepository(mongoRepo *MongoRepository) *FindingsRepository {
	return &FindingsRepository{
		mongoRepo: mongoRepo,
	}
}

// EnsureIndexes creates the indexes the read paths rely on.
func (r *FindingsRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.mongoRepo.GetCollection(findingsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "problemId", Value: 1}, {Key: "scanId", Value: 1}, {Key: "similarityScore", Value: -1}}},
		{Keys: bson.D{{Key: "scanId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create finding indexes: %w", err)
	}
	return nil
}

// ReplaceFindings commits findings as the problem's new set. On any error
// the previous set stays visible.
func (r *FindingsRepository) ReplaceFindings(ctx context.Context, scan *models.ScanRecord, findings []*models.DuplicationFinding) error {
	if len(findings) > 0 {
		first, err := r.allocateIDs(ctx, len(findings))
		if err != nil {
			return &apperr.StorageError{Op: "allocate finding ids", Err: err}
		}

		docs := make([]interface{}, 0, len(findings))
		for i, f := range findings {
			f.ID = first + int64(i)
			f.ProblemID = scan.ProblemID
			f.ScanID = scan.ScanID
			docs = append(docs, f)
		}

		if err := r.mongoRepo.InsertMany(ctx, findingsCollection, docs); err != nil {
			r.discardScan(ctx, scan)
			return &apperr.StorageError{Op: "insert findings", Err: err}
		}
	}

	previous, err := r.commitScan(ctx, scan)
	if err != nil {
		r.discardScan(ctx, scan)
		if errors.Is(err, apperr.ErrStaleScan) {
			return err
		}
		return &apperr.StorageError{Op: "commit scan", Err: err}
	}

	if previous != "" && previous != scan.ScanID {
		deleted, err := r.mongoRepo.DeleteMany(context.WithoutCancel(ctx), findingsCollection, bson.M{"scanId": previous})
		if err != nil {
			log.Warn().Err(err).
				Int64("problemId", scan.ProblemID).
				Str("scanId", previous).
				Msg("Failed to delete superseded findings")
		} else {
			log.Debug().Int64("deleted", deleted).Str("scanId", previous).Msg("Deleted superseded findings")
		}
	}

	return nil
}

// allocateIDs reserves n consecutive finding ids and returns the first.
func (r *FindingsRepository) allocateIDs(ctx context.Context, n int) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.mongoRepo.FindOneAndUpdate(ctx, countersCollection,
		bson.M{"_id": findingsCounterID},
		bson.M{"$inc": bson.M{"seq": int64(n)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate ids: %w", err)
	}

	return counter.Seq - int64(n) + 1, nil
}

// commitScan flips the problem's pointer to scan and returns the scan id it
// replaced. A pointer with a later start time is never overwritten: the
// guarded upsert then collides on _id and the scan is stale.
func (r *FindingsRepository) commitScan(ctx context.Context, scan *models.ScanRecord) (string, error) {
	filter := bson.M{
		"_id":       scan.ProblemID,
		"startedAt": bson.M{"$lte": scan.StartedAt},
	}
	update := bson.M{"$set": bson.M{
		"scanId":      scan.ScanID,
		"threshold":   scan.Threshold,
		"startedAt":   scan.StartedAt,
		"completedAt": scan.CompletedAt,
		"summary":     scan.Summary,
		"skipped":     scan.Skipped,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var prev models.ScanRecord
	err := r.mongoRepo.FindOneAndUpdate(ctx, scansCollection, filter, update, opts).Decode(&prev)
	switch {
	case err == nil:
		return prev.ScanID, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return "", nil
	case mongo.IsDuplicateKeyError(err):
		return "", apperr.ErrStaleScan
	default:
		return "", err
	}
}

func (r *FindingsRepository) discardScan(ctx context.Context, scan *models.ScanRecord) {
	if _, err := r.mongoRepo.DeleteMany(context.WithoutCancel(ctx), findingsCollection, bson.M{"scanId": scan.ScanID}); err != nil {
		log.Warn().Err(err).
			Int64("problemId", scan.ProblemID).
			Str("scanId", scan.ScanID).
			Msg("Failed to discard staged findings")
	}
}

func (r *FindingsRepository) GetScan(ctx context.Context, problemID int64) (*models.ScanRecord, error) {
	var scan models.ScanRecord
	err := r.mongoRepo.FindOne(ctx, scansCollection, bson.M{"_id": problemID}).Decode(&scan)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("scan for problem %d: %w", problemID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scan: %w", err)
	}
	return &scan, nil
}

// Get returns a finding of the problem's current scan. Superseded ids are
// not found.
func (r *FindingsRepository) Get(ctx context.Context, id int64) (*models.DuplicationFinding, error) {
	var f models.DuplicationFinding
	err := r.mongoRepo.FindOne(ctx, findingsCollection, bson.M{"_id": id}).Decode(&f)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("finding %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find finding: %w", err)
	}

	scan, err := r.GetScan(ctx, f.ProblemID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, fmt.Errorf("finding %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	if scan.ScanID != f.ScanID {
		return nil, fmt.Errorf("finding %d: %w", id, apperr.ErrNotFound)
	}

	return &f, nil
}

// ListForProblem returns the current findings of a problem, highest score
// first. A problem never scanned has no findings.
func (r *FindingsRepository) ListForProblem(ctx context.Context, problemID int64) ([]*models.DuplicationFinding, error) {
	_, findings, err := r.CurrentFindings(ctx, problemID)
	return findings, err
}

// CurrentFindings returns the problem's current scan together with its
// findings, read so that both belong to the same scan. A problem never
// scanned yields a nil scan and no findings.
func (r *FindingsRepository) CurrentFindings(ctx context.Context, problemID int64) (*models.ScanRecord, []*models.DuplicationFinding, error) {
	for attempt := 0; attempt < readAttempts; attempt++ {
		scan, err := r.GetScan(ctx, problemID)
		if apperr.IsNotFound(err) {
			return nil, []*models.DuplicationFinding{}, nil
		}
		if err != nil {
			return nil, nil, err
		}

		findings, err := r.findByScan(ctx, problemID, scan.ScanID)
		if err != nil {
			return nil, nil, err
		}

		// The rows are only trustworthy if the pointer did not move
		// while they were read.
		again, err := r.GetScan(ctx, problemID)
		if err != nil && !apperr.IsNotFound(err) {
			return nil, nil, err
		}
		if err == nil && again.ScanID == scan.ScanID {
			return again, findings, nil
		}
	}

	return nil, nil, &apperr.StorageError{
		Op:  "list findings",
		Err: fmt.Errorf("problem %d: scan pointer kept moving during read", problemID),
	}
}

func (r *FindingsRepository) findByScan(ctx context.Context, problemID int64, scanID string) ([]*models.DuplicationFinding, error) {
	filter := bson.M{"problemId": problemID, "scanId": scanID}
	opts := options.Find().SetSort(bson.D{
		{Key: "similarityScore", Value: -1},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.mongoRepo.FindMany(ctx, findingsCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find findings: %w", err)
	}
	defer cursor.Close(ctx)

	findings := []*models.DuplicationFinding{}
	if err := cursor.All(ctx, &findings); err != nil {
		return nil, fmt.Errorf("failed to decode findings: %w", err)
	}
	return findings, nil
}

// ListAll returns the current findings of every scanned problem.
func (r *FindingsRepository) ListAll(ctx context.Context) ([]*models.DuplicationFinding, error) {
	cursor, err := r.mongoRepo.FindMany(ctx, scansCollection, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to find scans: %w", err)
	}
	defer cursor.Close(ctx)

	var scans []models.ScanRecord
	if err := cursor.All(ctx, &scans); err != nil {
		return nil, fmt.Errorf("failed to decode scans: %w", err)
	}

	all := []*models.DuplicationFinding{}
	for _, s := range scans {
		findings, err := r.ListForProblem(ctx, s.ProblemID)
		if err != nil {
			return nil, err
		}
		all = append(all, findings...)
	}

	SortFindings(all)
	return all, nil
}

// SortFindings orders findings by score descending, then id ascending.
func SortFindings(findings []*models.DuplicationFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].SimilarityScore != findings[j].SimilarityScore {
			return findings[i].SimilarityScore > findings[j].SimilarityScore
		}
		return findings[i].ID < findings[j].ID
	})
}
