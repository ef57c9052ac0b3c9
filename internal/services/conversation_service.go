package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/providers/email"
	mongorepo "github.com/Alserial/VoiceRAG/internal/repositories/mongo"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

// ConversationService records session transcripts and mails them out when a
// session ends. Implements realtime.ConversationLog. All writes are
// best-effort: a missing Mongo connection degrades to a no-op rather than
// breaking the audio path.
type ConversationService interface {
	Begin(ctx context.Context, sessionID string)
	Append(ctx context.Context, sessionID, role, content string)
	End(ctx context.Context, sessionID string)

	Get(ctx context.Context, sessionID string) (*models.Conversation, error)
	List(ctx context.Context, limit int64) ([]models.Conversation, error)
}

type conversationService struct {
	repo         mongorepo.ConversationRepository // nil when mongo is not configured
	mailer       email.Mailer
	transcriptTo string
	log          *logrus.Entry
}

func NewConversationService(repo mongorepo.ConversationRepository, mailer email.Mailer, transcriptTo string, log *logrus.Entry) ConversationService {
	return &conversationService{
		repo:         repo,
		mailer:       mailer,
		transcriptTo: transcriptTo,
		log:          log,
	}
}

func (s *conversationService) Begin(ctx context.Context, sessionID string) {
	if s.repo == nil {
		return
	}
	err := s.repo.Create(ctx, &models.Conversation{
		SessionID: sessionID,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("could not start conversation record")
	}
}

func (s *conversationService) Append(ctx context.Context, sessionID, role, content string) {
	if s.repo == nil || strings.TrimSpace(content) == "" {
		return
	}
	err := s.repo.AppendMessage(ctx, sessionID, models.ConversationMessage{
		Role:    role,
		Content: content,
		At:      time.Now().UTC(),
	})
	if err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("could not append transcript message")
	}
}

func (s *conversationService) End(ctx context.Context, sessionID string) {
	if s.repo == nil {
		return
	}
	if err := s.repo.End(ctx, sessionID, time.Now().UTC()); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("could not close conversation record")
	}
	s.mailTranscript(ctx, sessionID)
}

func (s *conversationService) mailTranscript(ctx context.Context, sessionID string) {
	if s.transcriptTo == "" || !s.mailer.Configured() {
		return
	}
	conv, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil || len(conv.Messages) == 0 {
		return
	}
	if err := s.mailer.SendTranscript(s.transcriptTo, sessionID, formatTranscript(conv.Messages)); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("could not mail transcript")
	}
}

func (s *conversationService) Get(ctx context.Context, sessionID string) (*models.Conversation, error) {
	const op = "ConversationService.Get"

	if s.repo == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "conversation storage not configured", nil)
	}
	conv, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}
	return conv, nil
}

func (s *conversationService) List(ctx context.Context, limit int64) ([]models.Conversation, error) {
	const op = "ConversationService.List"

	if s.repo == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "conversation storage not configured", nil)
	}
	convs, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list conversations", err)
	}
	return convs, nil
}

func formatTranscript(messages []models.ConversationMessage) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString("[")
		b.WriteString(m.At.Format("15:04:05"))
		b.WriteString("] ")
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
