package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// Document is one indexed knowledge-base chunk. Ranking is delegated to
// Postgres (vector distance when an embedding exists, text rank otherwise).
type Document struct {
	ChunkID string `gorm:"column:chunk_id;type:text;primaryKey" json:"chunk_id"`
	Title   string `gorm:"column:title;type:text" json:"title"`
	Chunk   string `gorm:"column:chunk;type:text" json:"chunk"`

	Tags pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"`

	// pgvector
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector(768)" json:"-"`

	// Score is the retrieval relevance computed per query. Zero for
	// keyword-matched rows, which carry no distance.
	Score float64 `gorm:"->;-:migration" json:"score"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Document) TableName() string { return "documents" }
