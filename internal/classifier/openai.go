package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-portal/internal/config"
	"github.com/spec-kit/triage-portal/internal/domain"
)

var errEmptyCompletion = errors.New("completion returned no choices")

// OpenAIClassifier classifies requests with an OpenAI-compatible chat completion endpoint.
type OpenAIClassifier struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewOpenAIClassifier builds a classifier from configuration.
func NewOpenAIClassifier(cfg config.ClassifierConfig, logger *zap.Logger) *OpenAIClassifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClassifier{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Classify asks the model for a verdict and normalizes the answer.
func (c *OpenAIClassifier) Classify(ctx context.Context, requestText string) (domain.Classification, *Trace) {
	prompt := BuildPrompt(requestText)
	trace := &Trace{Model: c.model, Prompt: prompt}

	content, tokens, latency, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, c.temperature, c.maxTokens)
	trace.Latency = latency
	trace.TokensUsed = tokens
	if err != nil {
		c.logger.Warn("classifier call failed", zap.Error(err), zap.Duration("latency", latency))
		trace.Response = err.Error()
		return domain.FallbackClassification(domain.ClassificationUpstreamError, UpstreamReasoning, ""), trace
	}
	trace.Response = content

	verdict := ParseVerdict(content)
	if verdict.Degraded() {
		c.logger.Warn("classifier response unparsable", zap.Int("length", len(content)))
	} else if len(verdict.Anomalies) > 0 {
		c.logger.Warn("classifier response normalized", zap.Strings("anomalies", verdict.Anomalies))
	}
	return verdict, trace
}

// Respond answers a support question, apologizing when the model is unavailable.
func (c *OpenAIClassifier) Respond(ctx context.Context, supportContext, question string) string {
	content, _, _, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "You are a helpful IT support assistant. Provide clear, concise, and professional responses."},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Context: %s\n\nQuestion: %s", supportContext, question)},
	}, 0.7, 400)
	if err != nil {
		c.logger.Warn("responder call failed", zap.Error(err))
		return ApologyMessage
	}
	return content
}

func (c *OpenAIClassifier) complete(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32, maxTokens int) (string, int, time.Duration, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := c.now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	latency := c.now().Sub(started)
	if err != nil {
		return "", 0, latency, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", resp.Usage.TotalTokens, latency, errEmptyCompletion
	}
	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, latency, nil
}
