package llm

import (
	"context"
	"encoding/json"

	"github.com/Alserial/VoiceRAG/internal/utils"
)

// Provider wraps the generative model used for structured extraction,
// intent classification and query embedding.
type Provider interface {
	// ExtractJSON sends the input to the model under the given system
	// instruction and returns the raw JSON object the model produced.
	ExtractJSON(ctx context.Context, system, input string) (json.RawMessage, error)

	// Classify picks one label for the input. The returned label is always
	// one of the provided labels.
	Classify(ctx context.Context, system, input string, labels []string) (string, error)

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Configured reports whether a real model backs this provider.
	Configured() bool

	Close() error
}

// Unconfigured is the degraded provider used when no API key is set.
// Every call fails with UNAVAILABLE so callers can fall back to
// heuristics or mock results.
type Unconfigured struct{}

func (Unconfigured) ExtractJSON(ctx context.Context, system, input string) (json.RawMessage, error) {
	return nil, utils.E(utils.CodeUnavailable, "llm.ExtractJSON", "llm provider not configured", nil)
}

func (Unconfigured) Classify(ctx context.Context, system, input string, labels []string) (string, error) {
	return "", utils.E(utils.CodeUnavailable, "llm.Classify", "llm provider not configured", nil)
}

func (Unconfigured) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, utils.E(utils.CodeUnavailable, "llm.Embed", "llm provider not configured", nil)
}

func (Unconfigured) Configured() bool { return false }

func (Unconfigured) Close() error { return nil }
