package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotsetgreg/deskpatrol/pkg/config"
	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

func init() {
	register(ProviderOpenAI, kindSpec{build: newOpenAIProvider, check: keyed(ProviderOpenAI)})
}

type openAIProvider struct {
	client       openai.Client
	defaultModel string
}

func newOpenAIProvider(cfg config.ProviderConfig) (LLMProvider, error) {
	hc, err := newHTTPClient(ProviderOpenAI, cfg.Proxy)
	if err != nil {
		return nil, err
	}
	opts := []ooption.RequestOption{
		ooption.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		ooption.WithHTTPClient(hc),
		ooption.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.APIBase); base != "" {
		opts = append(opts, ooption.WithBaseURL(base))
	}
	return &openAIProvider{
		client:       openai.NewClient(opts...),
		defaultModel: modelOr(cfg, defaultOpenAIModel),
	}, nil
}

func (p *openAIProvider) GetDefaultModel() string { return p.defaultModel }

func (p *openAIProvider) Chat(ctx context.Context, messages []Message, model string, opts CallOptions) (*LLMResponse, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = p.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		Temperature: openai.Float(opts.Temperature),
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai API request failed: %s", augmentProviderError(ProviderOpenAI, err.Error()))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}
	return &LLMResponse{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: &UsageInfo{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
