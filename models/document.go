package models

import "time"

// Document is the unit of analysis: externally extracted text plus the
// chunks produced at parse time.
type Document struct {
	ID        string    `bson:"_id" json:"document_id"`
	RawText   string    `bson:"raw_text" json:"raw_text"`
	Chunks    []Chunk   `bson:"-" json:"chunks,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Chunk is a bounded contiguous span of a document's text.
// Start and End are byte offsets into Document.RawText.
type Chunk struct {
	ID         string `bson:"chunk_id" json:"chunk_id"`
	DocumentID string `bson:"document_id" json:"document_id"`
	Position   int    `bson:"position" json:"position"`
	Text       string `bson:"text" json:"text"`
	Start      int    `bson:"start" json:"start"`
	End        int    `bson:"end" json:"end"`
	Label      string `bson:"label,omitempty" json:"label,omitempty"`
}

// ChunkVector is a denormalized chunk stored for Atlas $vectorSearch.
type ChunkVector struct {
	ChunkID        string    `bson:"chunk_id" json:"chunk_id"`
	DocumentID     string    `bson:"document_id" json:"document_id"`
	Position       int       `bson:"position" json:"position"`
	Text           string    `bson:"text" json:"text"`
	Label          string    `bson:"label,omitempty" json:"label,omitempty"`
	Start          int       `bson:"start" json:"start"`
	End            int       `bson:"end" json:"end"`
	EmbeddingModel string    `bson:"embedding_model" json:"embedding_model"`
	Vector         []float32 `bson:"vector" json:"-"`
}

// Chunk drops the index-only fields.
func (cv ChunkVector) Chunk() Chunk {
	return Chunk{
		ID:         cv.ChunkID,
		DocumentID: cv.DocumentID,
		Position:   cv.Position,
		Text:       cv.Text,
		Start:      cv.Start,
		End:        cv.End,
		Label:      cv.Label,
	}
}

// NewChunkVector pairs a chunk with its embedding.
func NewChunkVector(ch Chunk, model string, vector []float32) ChunkVector {
	return ChunkVector{
		ChunkID:        ch.ID,
		DocumentID:     ch.DocumentID,
		Position:       ch.Position,
		Text:           ch.Text,
		Label:          ch.Label,
		Start:          ch.Start,
		End:            ch.End,
		EmbeddingModel: model,
		Vector:         vector,
	}
}
