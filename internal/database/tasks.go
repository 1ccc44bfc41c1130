// Package database persists analysis tasks and ingested documents in
// MongoDB, with in-memory equivalents for local runs and tests.
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

// TaskStore holds AnalysisTasks. Save replaces the whole task, so a result
// written with it is durable before the next stage starts.
type TaskStore interface {
	Create(ctx context.Context, task *models.AnalysisTask) error
	Get(ctx context.Context, id string) (*models.AnalysisTask, error)
	Save(ctx context.Context, task *models.AnalysisTask) error
	// FailStale marks pending or running tasks not updated since before as
	// failed and returns how many were changed.
	FailStale(ctx context.Context, before time.Time, reason string) (int64, error)
}

type MongoTaskStore struct {
	coll *mongo.Collection
}

func NewMongoTaskStore(db *mongo.Database) *MongoTaskStore {
	return &MongoTaskStore{coll: db.Collection("analysis_tasks")}
}

func (s *MongoTaskStore) Create(ctx context.Context, task *models.AnalysisTask) error {
	if _, err := s.coll.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

func (s *MongoTaskStore) Get(ctx context.Context, id string) (*models.AnalysisTask, error) {
	var task models.AnalysisTask
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find task %s: %w", id, err)
	}
	return &task, nil
}

func (s *MongoTaskStore) Save(ctx context.Context, task *models.AnalysisTask) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": task.ID}, task, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

func (s *MongoTaskStore) FailStale(ctx context.Context, before time.Time, reason string) (int64, error) {
	now := time.Now().UTC()
	res, err := s.coll.UpdateMany(ctx,
		bson.M{
			"status":     bson.M{"$in": []models.TaskStatus{models.TaskPending, models.TaskRunning}},
			"updated_at": bson.M{"$lt": before},
		},
		bson.M{"$set": bson.M{
			"status":       models.TaskFailed,
			"error":        reason,
			"updated_at":   now,
			"completed_at": now,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("fail stale tasks: %w", err)
	}
	return res.ModifiedCount, nil
}
