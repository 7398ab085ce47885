// Package llm provides the provider-agnostic completion capability the reply
// composer consumes. Three interchangeable backends are supported: Anthropic
// Claude via AWS Bedrock, OpenAI and Google Gemini.
package llm

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is the internal message representation shared by all backends.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage reports provider token accounting when available.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request is a single completion call.
type Request struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// Response is the completed text plus provider metadata.
type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// Client is the completion capability. Implementations wrap one provider;
// Complete fails with a provider error on auth, quota or timeout problems.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
