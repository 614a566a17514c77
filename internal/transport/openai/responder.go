package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/domain"
	"github.com/helpdesk-cloud/faqd/internal/metrics"
)

// RefusalMessage is returned verbatim for questions outside the assistant's
// declared domain.
const RefusalMessage = "This is not really what I was trained for, therefore I cannot answer. Try again."

const answerSystemPrompt = `You are an expert in IT support and account management.

You answer only to this kind of questions and nothing more.

Provide a short but helpful answer.`

// Responder produces answers via an OpenAI-compatible chat completion API,
// gated by a topic classifier. Answers are never cached at this layer.
type Responder struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	gate        TopicGate
	logger      *zap.Logger
}

// ResponderConfig holds the generative fallback settings.
type ResponderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	// Gate overrides the default LLM classifier. Nil uses the LLM gate on the
	// same client and model.
	Gate   TopicGate
	Logger *zap.Logger
}

// NewResponder creates a generative fallback client.
func NewResponder(cfg *ResponderConfig) *Responder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientCfg)

	gate := cfg.Gate
	if gate == nil {
		gate = NewLLMGate(client, cfg.Model)
	}

	return &Responder{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		gate:        gate,
		logger:      cfg.Logger,
	}
}

// Answer classifies the question's topic and either generates a
// domain-appropriate answer or refuses. Gate accuracy is advisory: an
// off-topic question the classifier misses will still be answered.
func (r *Responder) Answer(ctx context.Context, question string) (domain.Reply, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	topic, err := r.gate.Classify(ctx, question)
	if err != nil {
		metrics.GenerativeRequestsTotal.WithLabelValues(r.model, "error").Inc()
		return domain.Reply{}, parseGenerativeError(err)
	}

	if topic != TopicSupport {
		r.logger.Info("Refusing off-topic question", zap.String("topic", string(topic)))
		metrics.GenerativeRequestsTotal.WithLabelValues(r.model, "refused").Inc()
		return domain.Reply{Text: RefusalMessage, Refused: true}, nil
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
	})
	if err != nil {
		metrics.GenerativeRequestsTotal.WithLabelValues(r.model, "error").Inc()
		return domain.Reply{}, parseGenerativeError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		metrics.GenerativeRequestsTotal.WithLabelValues(r.model, "error").Inc()
		return domain.Reply{}, fmt.Errorf("empty completion response: %w", domain.ErrGenerativeUnavailable)
	}

	metrics.GenerativeRequestsTotal.WithLabelValues(r.model, "success").Inc()
	return domain.Reply{Text: resp.Choices[0].Message.Content}, nil
}

func parseGenerativeError(err error) error {
	return parseAPIError(err, "completion", domain.ErrGenerativeUnavailable)
}
