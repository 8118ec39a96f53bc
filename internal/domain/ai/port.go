package ai

import "context"

// CompletionRequest is a single system+user chat turn.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Client port (completion service)
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
