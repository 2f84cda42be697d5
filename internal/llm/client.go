// Package llm holds the language-model collaborators fragments can query:
// provider clients, the registry that picks one, and response schemas.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"codeprompt/internal/logging"
)

// ErrEmptyResponse is returned when a provider answers with no content.
var ErrEmptyResponse = errors.New("empty LLM response")

// Client answers a prompt with a JSON object. A nil schema lets the
// provider choose the shape.
type Client interface {
	Query(ctx context.Context, prompt string, schema *Schema) (map[string]any, error)
	Name() string
}

// NopClient answers every query with nothing. It stands in when no
// provider is configured.
type NopClient struct{}

func (NopClient) Query(ctx context.Context, prompt string, schema *Schema) (map[string]any, error) {
	logging.LLMDebug("NopClient: dropping query (%d chars)", len(prompt))
	return nil, nil
}

func (NopClient) Name() string { return "nop" }

// GeminiClient queries Google's Gemini API in JSON response mode.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

// NewGeminiClient creates a Gemini client for model.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Name() string { return "gemini:" + g.model }

// Query sends prompt and decodes the JSON object the model returns.
func (g *GeminiClient) Query(ctx context.Context, prompt string, schema *Schema) (map[string]any, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "Gemini query")
	defer timer.Stop()

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if schema != nil {
		cfg.ResponseSchema = schema.ToGenAI()
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		cfg,
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	return decodeObject(resp.Candidates[0].Content.Parts[0].Text, schema)
}

// decodeObject parses a model answer and checks it against schema.
func decodeObject(text string, schema *Schema) (map[string]any, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	if schema != nil {
		if err := schema.Validate(out); err != nil {
			return nil, fmt.Errorf("response does not match schema: %w", err)
		}
	}
	return out, nil
}
