package ai

import "context"

// Completion is a raw provider response. Token counts are whatever the
// provider reports; zero when it reports nothing.
type Completion struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is a minimal chat-completion client.
type Provider interface {
	Complete(ctx context.Context, model string, messages []Message) (*Completion, error)
}
