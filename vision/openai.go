package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o-mini"

// ErrMissingAPIKey is returned by NewOpenAI without an API key.
var ErrMissingAPIKey = errors.New("VISION_API_KEY is required for live vision")

// OpenAIConfig configures a live vision client. Setting APIVersion selects
// the Azure OpenAI / AI Foundry dialect with BaseURL as the resource endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	APIVersion string
	MaxTokens  int
}

// OpenAI is an Extractor backed by an OpenAI-compatible chat completion API.
type OpenAI struct {
	logger    zerolog.Logger
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAI(logger zerolog.Logger, cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var clientCfg openai.ClientConfig
	if cfg.APIVersion != "" {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		clientCfg.APIVersion = cfg.APIVersion
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 800
	}

	return &OpenAI{
		logger:    logger,
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (o *OpenAI) Extract(ctx context.Context, prompt string, image []byte, schema map[string]any) (map[string]any, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	dataURI := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
	req := openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt + "\n\nRespond with JSON matching this schema:\n" + string(schemaJSON),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURI,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("vision response has no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("vision response is not a JSON object: %w", err)
	}
	if payload == nil {
		return nil, errors.New("vision response is empty")
	}

	o.logger.Debug().
		Str("model", o.model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Vision extraction")
	return payload, nil
}
