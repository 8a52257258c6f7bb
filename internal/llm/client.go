package llm

import (
	"context"
	"errors"
)

// ErrRateLimited marks quota/throughput exhaustion signalled by the model
// backend. Callers distinguish it from other failures with errors.Is.
var ErrRateLimited = errors.New("llm: rate limited")

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}
