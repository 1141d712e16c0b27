package generation

import (
	"context"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const defaultCoachSystemPrompt = "You are an upbeat AI nutrition coach. You help with meal planning, " +
	"calorie counting, and nutrition advice, always tying answers back to the user's fitness goals."

// OpenAIGenerator produces replies through the OpenAI chat completion API,
// pinned to a coach persona via a system prompt.
type OpenAIGenerator struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

type OpenAIOption func(*OpenAIGenerator)

func WithModel(model string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		g.model = model
	}
}

func WithSystemPrompt(prompt string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		g.systemPrompt = prompt
	}
}

func NewOpenAIGenerator(apiKey string, options ...OpenAIOption) *OpenAIGenerator {
	ret := &OpenAIGenerator{
		client:       openai.NewClient(apiKey),
		model:        openai.GPT3Dot5Turbo,
		systemPrompt: defaultCoachSystemPrompt,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: g.systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		// Keep context cancellation recognizable so superseded requests are
		// not reported as generator failures.
		if errors.Is(err, context.Canceled) {
			return "", context.Canceled
		}
		return "", errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

var _ Generator = (*OpenAIGenerator)(nil)
