package outreach

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/metrics"
	"github.com/airrygarments/stylematch/internal/models"
)

// Operation labels used for LLM metrics and logs.
const (
	OpExtractProduct = "extract_product"
	OpExtractClient  = "extract_client"
	OpComposeEmail   = "compose_email"
)

const defaultCompletionTimeout = 2 * time.Minute

// Completer sends a single-turn prompt to a language model and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, operation, prompt string) (string, error)
}

// LLM is a Completer backed by any OpenAI-compatible chat completions endpoint (Groq by default).
type LLM struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	metrics     *metrics.Metrics
}

// NewLLM creates a chat completions client from the outreach config. m may be nil.
func NewLLM(cfg *config.OutreachConfig, m *metrics.Metrics) (*LLM, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: language model API key is not configured", models.ErrInvalidArgument)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: language model name is not configured", models.ErrInvalidArgument)
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &LLM{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     defaultCompletionTimeout,
		metrics:     m,
	}, nil
}

// Model returns the configured model name.
func (l *LLM) Model() string {
	return l.model
}

// Complete sends prompt as a single user message.
func (l *LLM) Complete(ctx context.Context, operation, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	temperature := l.temperature
	if temperature == 0 {
		// A zero temperature is dropped by omitempty on the wire.
		temperature = math.SmallestNonzeroFloat32
	}
	req := openai.ChatCompletionRequest{
		Model:       l.model,
		MaxTokens:   l.maxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	start := time.Now()
	content, err := l.send(ctx, req)
	l.metrics.ObserveLLM(operation, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%s: %w", operation, err)
	}
	return content, nil
}

func (l *LLM) send(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
