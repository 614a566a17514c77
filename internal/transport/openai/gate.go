package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Topic is the gate's classification of a question.
type Topic string

const (
	// TopicSupport marks IT-support and account-management questions.
	TopicSupport Topic = "IT"
	// TopicOther marks everything else; such questions are refused.
	TopicOther Topic = "NON_IT"
)

// TopicGate decides whether a question belongs to the assistant's domain.
// The decision is advisory: classifiers are imperfect and the gate is kept
// separate from routing so its accuracy can be iterated independently.
type TopicGate interface {
	Classify(ctx context.Context, question string) (Topic, error)
}

const gatePrompt = `Given the following question, determine if it's related to IT support / account management or not.
Classify it as either ` + "`IT`" + ` if it is or ` + "`NON_IT`" + ` if it's not.

Examples:

<question>
How do I reset my password?
</question>
Classification: IT

<question>
Can I get a discount if I buy a lot of stuff?
</question>
Classification: NON_IT

Do not respond with more than this classification.

<question>
%s
</question>
Classification:`

// LLMGate classifies topics with a zero-temperature chat completion.
type LLMGate struct {
	client *openai.Client
	model  string
}

// NewLLMGate creates the default topic classifier.
func NewLLMGate(client *openai.Client, model string) *LLMGate {
	return &LLMGate{client: client, model: model}
}

// Classify implements TopicGate. An unrecognized label is treated as
// off-topic rather than an error.
func (g *LLMGate) Classify(ctx context.Context, question string) (Topic, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(gatePrompt, question)},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return TopicOther, nil
	}

	label := strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content))

	// NON_IT contains IT, so check the negative label first.
	if strings.Contains(label, string(TopicOther)) {
		return TopicOther, nil
	}
	if strings.Contains(label, string(TopicSupport)) {
		return TopicSupport, nil
	}
	return TopicOther, nil
}
