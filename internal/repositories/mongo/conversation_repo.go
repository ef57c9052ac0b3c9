package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

type ConversationRepository interface {
	Create(ctx context.Context, c *models.Conversation) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, sessionID string, m models.ConversationMessage) error
	End(ctx context.Context, sessionID string, endedAt time.Time) error
	ListRecent(ctx context.Context, limit int64) ([]models.Conversation, error)
}

type conversationRepo struct {
	col *mongo.Collection
}

func NewConversationRepo(db *mongo.Database) ConversationRepository {
	return &conversationRepo{col: db.Collection("conversations")}
}

func (r *conversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now().UTC()
	}
	if c.Messages == nil {
		c.Messages = []models.ConversationMessage{}
	}
	_, err := r.col.InsertOne(ctx, c)
	return err
}

func (r *conversationRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Conversation, error) {
	var c models.Conversation
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &c, err
}

func (r *conversationRepo) AppendMessage(ctx context.Context, sessionID string, m models.ConversationMessage) error {
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$push": bson.M{"messages": m}},
	)
	return err
}

func (r *conversationRepo) End(ctx context.Context, sessionID string, endedAt time.Time) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{"ended_at": endedAt.UTC()}},
	)
	return err
}

func (r *conversationRepo) ListRecent(ctx context.Context, limit int64) ([]models.Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(limit)
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Conversation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
