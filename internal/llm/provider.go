// Package llm narrows the OpenAI client down to the one call the
// pipeline makes, so analysis, summarization, and synthesis can all be
// tested against a stub without credentials.
package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the single capability the pipeline needs from a model
// backend. Any OpenAI-compatible server satisfies it through
// OpenAIProvider; tests hand in fakes.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider adapts *openai.Client to Client.
type OpenAIProvider struct {
	Inner *openai.Client
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}
