package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotsetgreg/deskpatrol/pkg/config"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-flash"

func init() {
	register(ProviderGemini, kindSpec{build: newGeminiProvider, check: keyed(ProviderGemini)})
}

type geminiProvider struct {
	client       *genai.Client
	defaultModel string
}

func newGeminiProvider(cfg config.ProviderConfig) (LLMProvider, error) {
	hc, err := newHTTPClient(ProviderGemini, cfg.Proxy)
	if err != nil {
		return nil, err
	}
	cc := &genai.ClientConfig{
		APIKey:     strings.TrimSpace(cfg.APIKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if base := strings.TrimSpace(cfg.APIBase); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	// No network traffic happens at construction with an API key backend.
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiProvider{client: client, defaultModel: modelOr(cfg, defaultGeminiModel)}, nil
}

func (p *geminiProvider) GetDefaultModel() string { return p.defaultModel }

func (p *geminiProvider) Chat(ctx context.Context, messages []Message, model string, opts CallOptions) (*LLMResponse, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = p.defaultModel
	}
	system, turns := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range mergeTurns(turns) {
		role := genai.Role(genai.RoleUser)
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}

	gc := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(opts.Temperature))}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(opts.MaxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return nil, fmt.Errorf("gemini API request failed: %s", augmentProviderError(ProviderGemini, err.Error()))
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	out := &LLMResponse{Content: text}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &UsageInfo{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}
