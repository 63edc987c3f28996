// Package repository reads the judge's collections and stores duplication
// findings, in MongoDB or in memory.
package repository

import (
	"context"

	mongoInfra "github.com/RishiKendai/dupcheck/internal/infra/mongo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository is the thin collection-level access shared by the judge
// readers, the finding store and the notification sender.
type MongoRepository struct {
	db *mongo.Database
}

func NewMongoRepository(client *mongoInfra.Client) *MongoRepository {
	return &MongoRepository{
		db: client.Database,
	}
}

func (r *MongoRepository) InsertOne(ctx context.Context, collection string, document interface{}, opts ...*options.InsertOneOptions) error {
	_, err := r.db.Collection(collection).InsertOne(ctx, document, opts...)
	return err
}

func (r *MongoRepository) InsertMany(ctx context.Context, collection string, documents []interface{}, opts ...*options.InsertManyOptions) error {
	_, err := r.db.Collection(collection).InsertMany(ctx, documents, opts...)
	return err
}

func (r *MongoRepository) FindOne(ctx context.Context, collection string, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	return r.db.Collection(collection).FindOne(ctx, filter, opts...)
}

func (r *MongoRepository) FindMany(ctx context.Context, collection string, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	return r.db.Collection(collection).Find(ctx, filter, opts...)
}

func (r *MongoRepository) FindOneAndUpdate(ctx context.Context, collection string, filter, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	return r.db.Collection(collection).FindOneAndUpdate(ctx, filter, update, opts...)
}

// DeleteMany returns the number of documents removed.
func (r *MongoRepository) DeleteMany(ctx context.Context, collection string, filter interface{}, opts ...*options.DeleteOptions) (int64, error) {
	res, err := r.db.Collection(collection).DeleteMany(ctx, filter, opts...)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MongoRepository) GetCollection(collectionName string) *mongo.Collection {
	return r.db.Collection(collectionName)
}
