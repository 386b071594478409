// Package insights turns the user's market data into short written analyses
// through an LLM and stores them for the dashboard.
package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/riddle022/farmavision/pkg/logger"
)

// Generation is one produced analysis.
type Generation struct {
	Content    string `json:"content"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
}

// Generator produces an analysis from a prompt. Implementations wrap a
// concrete LLM provider.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (*Generation, error)
}

var _ Generator = (*OpenAIGenerator)(nil)

// OpenAIGenerator calls the OpenAI chat completion API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	log         logger.Logger
}

// OpenAIConfig for the OpenAI generator.
type OpenAIConfig struct {
	APIKey      string
	Model       string  // default: gpt-4o-mini
	Temperature float32 // default: 0.7
	MaxTokens   int     // default: 800
}

// NewOpenAIGenerator creates an OpenAI-backed generator.
func NewOpenAIGenerator(cfg OpenAIConfig, log logger.Logger) *OpenAIGenerator {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 800
	}
	return &OpenAIGenerator{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		log:         log,
	}
}

// Generate sends one chat completion request.
func (g *OpenAIGenerator) Generate(ctx context.Context, system, prompt string) (*Generation, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	duration := time.Since(start)
	if err != nil {
		g.log.Error("insight generation failed", "model", g.model, "duration", duration.String(), "error", err)
		return nil, fmt.Errorf("openai chat failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	g.log.Info("insight generated",
		"model", g.model, "tokens", resp.Usage.TotalTokens, "duration", duration.String())
	return &Generation{
		Content:    resp.Choices[0].Message.Content,
		Model:      g.model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
