package ai

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UsageRecord accumulates token usage per task, stage, tier and model.
type UsageRecord struct {
	TaskID       string    `bson:"task_id" json:"task_id"`
	Stage        string    `bson:"stage" json:"stage"`
	Tier         string    `bson:"tier" json:"tier"`
	Model        string    `bson:"model" json:"model"`
	Calls        int       `bson:"calls" json:"calls"`
	InputTokens  int       `bson:"input_tokens" json:"input_tokens"`
	OutputTokens int       `bson:"output_tokens" json:"output_tokens"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// UsageLedger keeps LLM cost attribution auditable.
type UsageLedger interface {
	Record(ctx context.Context, r UsageRecord) error
	TaskUsage(ctx context.Context, taskID string) ([]UsageRecord, error)
}

// MongoUsageLedger stores usage in the llm_usage collection.
type MongoUsageLedger struct {
	col *mongo.Collection
}

func NewMongoUsageLedger(db *mongo.Database) *MongoUsageLedger {
	return &MongoUsageLedger{col: db.Collection("llm_usage")}
}

// Record increments counters atomically, creating the row on first use.
func (l *MongoUsageLedger) Record(ctx context.Context, r UsageRecord) error {
	now := time.Now()
	_, err := l.col.UpdateOne(
		ctx,
		bson.M{"task_id": r.TaskID, "stage": r.Stage, "tier": r.Tier, "model": r.Model},
		bson.M{
			"$inc": bson.M{
				"calls":         r.Calls,
				"input_tokens":  r.InputTokens,
				"output_tokens": r.OutputTokens,
			},
			"$set": bson.M{"updated_at": now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (l *MongoUsageLedger) TaskUsage(ctx context.Context, taskID string) ([]UsageRecord, error) {
	cur, err := l.col.Find(ctx, bson.M{"task_id": taskID}, options.Find().SetSort(bson.D{{Key: "stage", Value: 1}, {Key: "tier", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []UsageRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MemoryUsageLedger is the in-process ledger used without MongoDB.
type MemoryUsageLedger struct {
	mu      sync.Mutex
	records map[[4]string]*UsageRecord
}

func NewMemoryUsageLedger() *MemoryUsageLedger {
	return &MemoryUsageLedger{records: map[[4]string]*UsageRecord{}}
}

func (l *MemoryUsageLedger) Record(_ context.Context, r UsageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := [4]string{r.TaskID, r.Stage, r.Tier, r.Model}
	cur, ok := l.records[key]
	if !ok {
		cur = &UsageRecord{TaskID: r.TaskID, Stage: r.Stage, Tier: r.Tier, Model: r.Model}
		l.records[key] = cur
	}
	cur.Calls += r.Calls
	cur.InputTokens += r.InputTokens
	cur.OutputTokens += r.OutputTokens
	cur.UpdatedAt = time.Now()
	return nil
}

func (l *MemoryUsageLedger) TaskUsage(_ context.Context, taskID string) ([]UsageRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []UsageRecord
	for _, r := range l.records {
		if r.TaskID == taskID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Tier < out[j].Tier
	})
	return out, nil
}
