package providers

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dotsetgreg/deskpatrol/pkg/config"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-latest"
	defaultAnthropicMaxTokens = 1024
)

func init() {
	register(ProviderAnthropic, kindSpec{build: newAnthropicProvider, check: keyed(ProviderAnthropic)})
}

type anthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

func newAnthropicProvider(cfg config.ProviderConfig) (LLMProvider, error) {
	hc, err := newHTTPClient(ProviderAnthropic, cfg.Proxy)
	if err != nil {
		return nil, err
	}
	opts := []aoption.RequestOption{
		aoption.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		aoption.WithHTTPClient(hc),
		aoption.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.APIBase); base != "" {
		opts = append(opts, aoption.WithBaseURL(base))
	}
	return &anthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: modelOr(cfg, defaultAnthropicModel),
	}, nil
}

func (p *anthropicProvider) GetDefaultModel() string { return p.defaultModel }

func (p *anthropicProvider) Chat(ctx context.Context, messages []Message, model string, opts CallOptions) (*LLMResponse, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = p.defaultModel
	}
	system, turns := splitSystem(messages)

	maxTokens := defaultAnthropicMaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, t := range mergeTurns(turns) {
		if t.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
			continue
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API request failed: %s", augmentProviderError(ProviderAnthropic, err.Error()))
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return nil, ErrEmptyResponse
	}
	return &LLMResponse{
		Content:      sb.String(),
		FinishReason: string(msg.StopReason),
		Usage: &UsageInfo{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}
