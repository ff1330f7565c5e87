package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when GeminiConfig.Model is empty.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey string

	// Model is the Gemini model name.
	// Default: DefaultGeminiModel
	Model string

	// BaseURL overrides the API endpoint.
	BaseURL string
}

// Gemini generates text with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini generator.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	var config *genai.GenerateContentConfig
	if req.System != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(promptOf(req)), config)
	if err != nil {
		return Response{}, fmt.Errorf("gemini: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return Response{}, fmt.Errorf("gemini: %w", ErrNoOutput)
	}

	out := Response{Text: text, Model: g.model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int64(u.PromptTokenCount)
		out.OutputTokens = int64(u.CandidatesTokenCount)
	}
	return out, nil
}

var _ Generator = (*Gemini)(nil)
