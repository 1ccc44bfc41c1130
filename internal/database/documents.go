package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"documind/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DocumentStore keeps the extracted text handed over by ingestion.
type DocumentStore interface {
	Put(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
}

type MongoDocumentStore struct {
	coll *mongo.Collection
}

func NewMongoDocumentStore(db *mongo.Database) *MongoDocumentStore {
	return &MongoDocumentStore{coll: db.Collection("documents")}
}

// Put upserts the raw text, keeping the original creation time.
func (s *MongoDocumentStore) Put(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{
			"$set":         bson.M{"raw_text": doc.RawText, "updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *MongoDocumentStore) Get(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find document %s: %w", id, err)
	}
	return &doc, nil
}
