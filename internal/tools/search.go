package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

// DocumentSearcher is the slice of the search service the RAG tools need.
type DocumentSearcher interface {
	Search(ctx context.Context, query string) ([]models.Document, error)
	Lookup(ctx context.Context, chunkIDs []string) ([]models.Document, error)
}

// NewSearchTool builds the knowledge-base search tool. Results go back to
// the model so it can ground its answer.
func NewSearchTool(searcher DocumentSearcher) Tool {
	return Tool{
		Name: "search",
		Description: "Search the knowledge base. The knowledge base is in English, translate to and from English if " +
			"needed. Results are a JSON array of snippets, each with an id, title, text and relevance score. " +
			"Cite snippets by their id using the report_grounding tool.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, inv Invocation) (Result, error) {
			var args struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(inv.Args, &args); err != nil {
				return Result{}, utils.E(utils.CodeInvalidArgument, "tools.search", "decode arguments", err)
			}
			if strings.TrimSpace(args.Query) == "" {
				return Result{}, utils.E(utils.CodeInvalidArgument, "tools.search", "query is required", nil)
			}

			docs, err := searcher.Search(ctx, args.Query)
			if err != nil {
				return Result{}, err
			}

			type snippet struct {
				ID    string  `json:"id"`
				Title string  `json:"title"`
				Text  string  `json:"text"`
				Score float64 `json:"score"`
			}
			snippets := make([]snippet, 0, len(docs))
			for _, d := range docs {
				snippets = append(snippets, snippet{ID: d.ChunkID, Title: d.Title, Text: d.Chunk, Score: d.Score})
			}
			return JSONResult(snippets, ToServer), nil
		},
	}
}

// NewGroundingTool builds the citation tool. The model reports which chunks
// it used; the resolved sources go to the client for display.
func NewGroundingTool(searcher DocumentSearcher) Tool {
	return Tool{
		Name: "report_grounding",
		Description: "Report use of a source from the knowledge base as part of an answer (effectively, cite the source). " +
			"Each search snippet carries an id; pass the ids of the snippets you used. Always use this tool to cite " +
			"sources when responding with information from the knowledge base.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"sources": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "List of source names from last statement actually used, do not include the ones not used to formulate a response",
				},
			},
			"required":             []string{"sources"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, inv Invocation) (Result, error) {
			var args struct {
				Sources []string `json:"sources"`
			}
			if err := json.Unmarshal(inv.Args, &args); err != nil {
				return Result{}, utils.E(utils.CodeInvalidArgument, "tools.report_grounding", "decode arguments", err)
			}

			docs, err := searcher.Lookup(ctx, args.Sources)
			if err != nil {
				return Result{}, err
			}

			type source struct {
				ChunkID string `json:"chunk_id"`
				Title   string `json:"title"`
				Chunk   string `json:"chunk"`
			}
			sources := make([]source, 0, len(docs))
			for _, d := range docs {
				sources = append(sources, source{ChunkID: d.ChunkID, Title: d.Title, Chunk: d.Chunk})
			}
			return JSONResult(map[string]interface{}{"sources": sources}, ToClient), nil
		},
	}
}
