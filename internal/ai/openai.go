package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIConfig struct {
	APIKey     string `json:"api_key"`
	BaseURL    string `json:"base_url"`
	JSONOutput bool   `json:"json_output"`
	MaxRetries int    `json:"max_retries"`
}

// chatProvider talks to any OpenAI compatible chat completions endpoint.
type chatProvider struct {
	name       string
	apiKey     string
	jsonOutput bool
	client     openai.Client
}

func newChatProvider(name, apiKey, baseURL string, jsonOutput bool, maxRetries int, extra ...option.RequestOption) *chatProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(maxRetries),
	}
	opts = append(opts, extra...)
	return &chatProvider{
		name:       name,
		apiKey:     apiKey,
		jsonOutput: jsonOutput,
		client:     openai.NewClient(opts...),
	}
}

func (p *chatProvider) Name() string {
	return p.name
}

func (p *chatProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if p.apiKey == "" {
		return "", ErrUnavailable
	}
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if p.jsonOutput {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", p.name)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *chatProvider) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s request failed (status %d): %w", p.name, apiErr.StatusCode, err)
	}
	return err
}

func createOpenAIFactory(args interface{}) (IProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return newChatProvider("openai", strings.TrimSpace(cfg.APIKey), baseURL, cfg.JSONOutput, cfg.MaxRetries), nil
}

func init() {
	Register("openai", createOpenAIFactory)
}
