package providers

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrProviderNotConfigured is returned when a provider slot has no kind
	// or no credential.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrEmptyResponse marks a call that succeeded but produced no text.
	ErrEmptyResponse = errors.New("provider returned empty response")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type LLMResponse struct {
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason"`
	Usage        *UsageInfo `json:"usage,omitempty"`
}

// CallOptions tune one exchange. Temperature is always sent; MaxTokens zero
// leaves the provider default.
type CallOptions struct {
	Temperature float64
	MaxTokens   int
}

// LLMProvider sends one chat exchange. messages may open with a single
// RoleSystem entry; the rest alternate user and assistant turns.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, model string, opts CallOptions) (*LLMResponse, error)
	GetDefaultModel() string
}
