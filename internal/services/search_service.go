package services

import (
	"context"
	"errors"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/providers/llm"
	pgrepo "github.com/Alserial/VoiceRAG/internal/repositories/postgres"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

const searchLimit = 5

type SearchService interface {
	Search(ctx context.Context, query string) ([]models.Document, error)
	Lookup(ctx context.Context, chunkIDs []string) ([]models.Document, error)
	Index(ctx context.Context, doc models.Document) error
	Chunk(ctx context.Context, chunkID string) (*models.Document, error)
}

type searchService struct {
	docs pgrepo.DocumentRepository
	llm  llm.Provider
	log  *logrus.Entry
}

func NewSearchService(docs pgrepo.DocumentRepository, provider llm.Provider, log *logrus.Entry) SearchService {
	return &searchService{docs: docs, llm: provider, log: log}
}

// Search ranks by vector distance when the query can be embedded, falling
// back to keyword matching otherwise.
func (s *searchService) Search(ctx context.Context, query string) ([]models.Document, error) {
	const op = "SearchService.Search"

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "query is required", nil)
	}

	if s.llm.Configured() {
		embedding, err := s.llm.Embed(ctx, query)
		if err == nil {
			docs, err := s.docs.SearchByEmbedding(ctx, embedding, searchLimit)
			if err == nil {
				return docs, nil
			}
			s.log.WithError(err).Warn("vector search failed, falling back to keyword")
		} else {
			s.log.WithError(err).Warn("query embedding failed, falling back to keyword")
		}
	}

	docs, err := s.docs.SearchByKeyword(ctx, query, searchLimit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "keyword search failed", err)
	}
	return docs, nil
}

// Index embeds a chunk and upserts it into the document store. Without an
// embedding model the chunk is still stored and reachable by keyword search.
func (s *searchService) Index(ctx context.Context, doc models.Document) error {
	const op = "SearchService.Index"

	if s.docs == nil {
		return utils.E(utils.CodeUnavailable, op, "document store not configured", nil)
	}
	if strings.TrimSpace(doc.ChunkID) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "chunk_id is required", nil)
	}
	if strings.TrimSpace(doc.Chunk) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "chunk is required", nil)
	}

	if s.llm.Configured() {
		embedding, err := s.llm.Embed(ctx, doc.Chunk)
		if err != nil {
			s.log.WithError(err).WithField("chunk_id", doc.ChunkID).Warn("chunk embedding failed, storing without vector")
		} else {
			doc.Embedding = pgvector.NewVector(embedding)
		}
	}

	if err := s.docs.Upsert(ctx, &doc); err != nil {
		return utils.E(utils.CodeInternal, op, "store document chunk", err)
	}
	return nil
}

func (s *searchService) Lookup(ctx context.Context, chunkIDs []string) ([]models.Document, error) {
	const op = "SearchService.Lookup"

	docs, err := s.docs.GetByChunkIDs(ctx, chunkIDs)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "chunk lookup failed", err)
	}
	return docs, nil
}

func (s *searchService) Chunk(ctx context.Context, chunkID string) (*models.Document, error) {
	const op = "SearchService.Chunk"

	if s.docs == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "document store not configured", nil)
	}
	doc, err := s.docs.GetByChunkID(ctx, chunkID)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeNotFound, op, "chunk not found", err)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "chunk lookup failed", err)
	}
	return doc, nil
}
