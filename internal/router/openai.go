package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/sashabaranov/go-openai"
)

// Built-in provider kinds. Both speak the OpenAI chat completions API.
const (
	KindGroq   = "groq"
	KindOpenAI = "openai"
)

const (
	DefaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// DefaultTemperature is used when a request does not set one.
	DefaultTemperature = 0.3
)

// OpenAIDriver calls an OpenAI-compatible chat completions endpoint.
type OpenAIDriver struct {
	kind    string
	baseURL string
	client  *http.Client
}

// NewOpenAIDriver creates a driver for kind whose default endpoint is baseURL.
// A provider's Endpoint overrides baseURL.
func NewOpenAIDriver(kind, baseURL string) *OpenAIDriver {
	return &OpenAIDriver{
		kind:    kind,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Kind returns the provider kind this driver serves.
func (d *OpenAIDriver) Kind() string { return d.kind }

// Call sends one chat completion request. A missing API key is an error.
func (d *OpenAIDriver) Call(ctx context.Context, provider *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error) {
	if provider.APIKey == "" {
		return nil, fmt.Errorf("%s: api key not configured for provider %s", d.kind, provider.Name)
	}

	cfg := openai.DefaultConfig(provider.APIKey)
	cfg.BaseURL = d.baseURL
	if provider.Endpoint != "" {
		cfg.BaseURL = provider.Endpoint
	}
	cfg.HTTPClient = d.client
	client := openai.NewClientWithConfig(cfg)

	model := req.Model
	if model == "" {
		model = provider.DefaultModel
	}

	temperature := float32(DefaultTemperature)
	if req.Temperature != nil {
		temperature = float32(*req.Temperature)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: temperature,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("%s: chat completion failed: %w", d.kind, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w from %s (no choices)", d.kind, ErrEmptyResponse, provider.Name)
	}

	return &models.RouteResponse{
		ID:       resp.ID,
		Provider: provider.Name,
		Model:    model,
		Content:  resp.Choices[0].Message.Content,
		Usage: models.TokenUsage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:  int64(resp.Usage.TotalTokens),
		},
	}, nil
}

func toOpenAIMessages(msgs []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
