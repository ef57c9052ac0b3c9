package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

type QuoteRepository interface {
	Create(ctx context.Context, q *models.Quote) error
	GetByID(ctx context.Context, id string) (*models.Quote, error)
	MarkEmailSent(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]models.Quote, error)
}

type quoteRepo struct {
	db *gorm.DB
}

func NewQuoteRepo(db *gorm.DB) QuoteRepository {
	return &quoteRepo{db: db}
}

func (r *quoteRepo) Create(ctx context.Context, q *models.Quote) error {
	return r.db.WithContext(ctx).Create(q).Error
}

func (r *quoteRepo) GetByID(ctx context.Context, id string) (*models.Quote, error) {
	var q models.Quote
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &q, err
}

func (r *quoteRepo) MarkEmailSent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("id = ?", id).
		Update("email_sent", true).Error
}

func (r *quoteRepo) List(ctx context.Context, limit int) ([]models.Quote, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Quote
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
