package providers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dotsetgreg/deskpatrol/pkg/config"
)

const (
	defaultGroqAPIBase       = "https://api.groq.com/openai/v1"
	defaultGroqModel         = "llama-3.1-8b-instant"
	defaultOpenRouterAPIBase = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "openai/gpt-4o-mini"
)

func init() {
	register(ProviderGroq, kindSpec{
		build: compatibleBuilder(ProviderGroq, defaultGroqAPIBase, defaultGroqModel),
		check: keyed(ProviderGroq),
	})
	register(ProviderOpenRouter, kindSpec{
		build: compatibleBuilder(ProviderOpenRouter, defaultOpenRouterAPIBase, defaultOpenRouterModel),
		check: keyed(ProviderOpenRouter),
	})
	register(ProviderChatCompletions, kindSpec{
		build: compatibleBuilder(ProviderChatCompletions, "", ""),
		check: validateChatCompletionsConfig,
	})
}

func validateChatCompletionsConfig(cfg config.ProviderConfig) error {
	if err := keyed(ProviderChatCompletions)(cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.APIBase) == "" {
		return fmt.Errorf("%w: chat_completions requires api_base", ErrProviderNotConfigured)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return fmt.Errorf("%w: chat_completions requires model", ErrProviderNotConfigured)
	}
	return nil
}

// compatibleBuilder serves every OpenAI-compatible /chat/completions endpoint
// through the shared HTTP client.
func compatibleBuilder(kind, defaultBase, defaultModel string) func(cfg config.ProviderConfig) (LLMProvider, error) {
	return func(cfg config.ProviderConfig) (LLMProvider, error) {
		apiBase := strings.TrimSpace(cfg.APIBase)
		if apiBase == "" {
			apiBase = defaultBase
		}
		header := http.Header{}
		if kind == ProviderOpenRouter {
			header.Set("X-Title", "deskpatrol")
		}
		return newCompatClient(kind, apiBase, modelOr(cfg, defaultModel), cfg.Proxy, newAPIKey(cfg.APIKey, kind+" api_key"), header)
	}
}
