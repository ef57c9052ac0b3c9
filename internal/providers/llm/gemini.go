package llm

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/genai"

	"github.com/Alserial/VoiceRAG/internal/utils"
)

// Gemini implements Provider on top of the Gemini API.
type Gemini struct {
	client     *genai.Client
	model      string
	embedModel string
}

func NewGemini(ctx context.Context, apiKey, model, embedModel string) (*Gemini, error) {
	const op = "llm.NewGemini"

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, utils.E(utils.CodeUpstream, op, "create gemini client", err)
	}

	if model == "" {
		model = "gemini-2.0-flash"
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}

	return &Gemini{client: client, model: model, embedModel: embedModel}, nil
}

func (g *Gemini) Configured() bool { return true }

func (g *Gemini) Close() error { return nil }

func (g *Gemini) ExtractJSON(ctx context.Context, system, input string) (json.RawMessage, error) {
	const op = "Gemini.ExtractJSON"

	contents := []*genai.Content{
		genai.NewContentFromText(input, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(float32(0)),
		ResponseMIMEType:  "application/json",
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, utils.E(utils.CodeUpstream, op, "generate content", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, utils.E(utils.CodeUpstream, op, "empty model response", nil)
	}

	raw := json.RawMessage(stripCodeFence(text))
	if !json.Valid(raw) {
		return nil, utils.E(utils.CodeUpstream, op, "model returned invalid JSON", nil)
	}
	return raw, nil
}

func (g *Gemini) Classify(ctx context.Context, system, input string, labels []string) (string, error) {
	const op = "Gemini.Classify"

	prompt := input + "\n\nAnswer with exactly one of: " + strings.Join(labels, ", ")
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(float32(0)),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", utils.E(utils.CodeUpstream, op, "generate content", err)
	}

	answer := strings.ToLower(strings.TrimSpace(responseText(resp)))
	for _, label := range labels {
		if strings.Contains(answer, strings.ToLower(label)) {
			return label, nil
		}
	}
	return "", utils.E(utils.CodeUpstream, op, "model answer matched no label", nil)
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	const op = "Gemini.Embed"

	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}
	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, nil)
	if err != nil {
		return nil, utils.E(utils.CodeUpstream, op, "embed content", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, utils.E(utils.CodeUpstream, op, "empty embedding response", nil)
	}
	return resp.Embeddings[0].Values, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}

// stripCodeFence removes a markdown ```json fence if the model wrapped its
// output in one despite the JSON response mime type.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
