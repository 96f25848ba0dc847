package ai

import (
	"strings"

	"github.com/openai/openai-go/v3/option"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey      string `json:"api_key"`
	BaseURL     string `json:"base_url"`
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
	JSONOutput  bool   `json:"json_output"`
	MaxRetries  int    `json:"max_retries"`
}

func createOpenRouterFactory(args interface{}) (IProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	var extra []option.RequestOption
	if referer := strings.TrimSpace(cfg.HTTPReferer); referer != "" {
		extra = append(extra, option.WithHeader("HTTP-Referer", referer))
	}
	if title := strings.TrimSpace(cfg.XTitle); title != "" {
		extra = append(extra, option.WithHeader("X-Title", title))
	}
	return newChatProvider("openrouter", strings.TrimSpace(cfg.APIKey), baseURL, cfg.JSONOutput, cfg.MaxRetries, extra...), nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}
