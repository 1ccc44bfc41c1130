package vectorindex

import (
	"context"
	"fmt"

	"documind/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoIndex runs Atlas $vectorSearch over the chunk_vectors collection.
// The Atlas index must declare "vector" as a cosine vector field and
// document_id and embedding_model as filter fields.
type MongoIndex struct {
	col       *mongo.Collection
	indexName string
}

func NewMongoIndex(db *mongo.Database, indexName string) *MongoIndex {
	return &MongoIndex{
		col:       db.Collection("chunk_vectors"),
		indexName: indexName,
	}
}

func (m *MongoIndex) Upsert(ctx context.Context, points []models.ChunkVector) error {
	if len(points) == 0 {
		return nil
	}
	batch := make([]mongo.WriteModel, 0, len(points))
	for _, p := range points {
		batch = append(batch, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"chunk_id": p.ChunkID}).
			SetUpdate(bson.M{"$set": p}).
			SetUpsert(true))
	}
	if _, err := m.col.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("upsert chunk vectors: %w", err)
	}
	return nil
}

func (m *MongoIndex) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}

	search := bson.D{
		{Key: "index", Value: m.indexName},
		{Key: "path", Value: "vector"},
		{Key: "queryVector", Value: vector},
		{Key: "numCandidates", Value: topK * 10},
		{Key: "limit", Value: topK},
	}
	if f := mongoFilter(filter); len(f) > 0 {
		search = append(search, bson.E{Key: "filter", Value: f})
	}
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: search}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "chunk_id", Value: 1},
			{Key: "document_id", Value: 1},
			{Key: "position", Value: 1},
			{Key: "text", Value: 1},
			{Key: "label", Value: 1},
			{Key: "start", Value: 1},
			{Key: "end", Value: 1},
			{Key: "embedding_model", Value: 1},
			{Key: "vector", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cur, err := m.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		models.ChunkVector `bson:",inline"`
		Score              float64 `bson:"score"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode vector search: %w", err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{ChunkVector: r.ChunkVector, Score: cosineFromAtlas(r.Score)})
	}
	sortHits(hits)
	return hits, nil
}

func (m *MongoIndex) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := m.col.DeleteMany(ctx, bson.M{"document_id": documentID}); err != nil {
		return fmt.Errorf("delete chunk vectors: %w", err)
	}
	return nil
}

func mongoFilter(f Filter) bson.D {
	var out bson.D
	if f.DocumentID != "" {
		out = append(out, bson.E{Key: "document_id", Value: f.DocumentID})
	}
	if f.EmbeddingModel != "" {
		out = append(out, bson.E{Key: "embedding_model", Value: f.EmbeddingModel})
	}
	return out
}

// cosineFromAtlas undoes Atlas's (1 + cosine) / 2 score normalisation.
func cosineFromAtlas(score float64) float64 {
	return 2*score - 1
}
