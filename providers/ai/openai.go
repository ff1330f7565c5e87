package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultOpenAIModel is used when OpenAIConfig.Model is empty.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI generator.
type OpenAIConfig struct {
	APIKey string

	// Model is the chat model name.
	// Default: DefaultOpenAIModel
	Model string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// MaxTokens bounds the completion length. Zero leaves it to the API.
	MaxTokens int64
}

// OpenAI generates text with the OpenAI chat completions API.
// SDK retries are disabled; retrying is the guard's job.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// NewOpenAI creates an OpenAI generator.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, req Request) (Response, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(promptOf(req)))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: messages,
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(o.maxTokens)
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return Response{}, fmt.Errorf("openai: %w", ErrNoOutput)
	}

	return Response{
		Text:         completion.Choices[0].Message.Content,
		Model:        completion.Model,
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}, nil
}

func promptOf(req Request) string {
	if req.Prompt != "" {
		return req.Prompt
	}
	if req.Language != "" {
		return fmt.Sprintf("Write an article about %s in %s.", req.Topic, req.Language)
	}
	return fmt.Sprintf("Write an article about %s.", req.Topic)
}

var _ Generator = (*OpenAI)(nil)
