package postgres

import (
	"context"
	"errors"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

type DocumentRepository interface {
	GetByChunkID(ctx context.Context, chunkID string) (*models.Document, error)
	GetByChunkIDs(ctx context.Context, chunkIDs []string) ([]models.Document, error)
	SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]models.Document, error)
	SearchByKeyword(ctx context.Context, query string, limit int) ([]models.Document, error)
	Upsert(ctx context.Context, d *models.Document) error
}

type documentRepo struct {
	db *gorm.DB
}

func NewDocumentRepo(db *gorm.DB) DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) GetByChunkID(ctx context.Context, chunkID string) (*models.Document, error) {
	var d models.Document
	err := r.db.WithContext(ctx).
		Where("chunk_id = ?", chunkID).
		Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &d, err
}

func (r *documentRepo) GetByChunkIDs(ctx context.Context, chunkIDs []string) ([]models.Document, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	var out []models.Document
	err := r.db.WithContext(ctx).
		Where("chunk_id IN ?", chunkIDs).
		Find(&out).Error
	return out, err
}

func (r *documentRepo) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]models.Document, error) {
	var out []models.Document
	vec := pgvector.NewVector(embedding)
	err := r.db.WithContext(ctx).
		Select("*, 1 - (embedding <=> ?) AS score", vec).
		Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL:  "embedding <=> ?",
			Vars: []interface{}{vec},
		}}).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SearchByKeyword is the fallback ranking used when no embedding is
// available for the query.
func (r *documentRepo) SearchByKeyword(ctx context.Context, query string, limit int) ([]models.Document, error) {
	var out []models.Document
	err := r.db.WithContext(ctx).
		Where("chunk ILIKE ? OR title ILIKE ?", "%"+query+"%", "%"+query+"%").
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *documentRepo) Upsert(ctx context.Context, d *models.Document) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "chunk", "tags", "embedding", "updated_at"}),
		}).
		Create(d).Error
}
