package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dotsetgreg/deskpatrol/pkg/config"
)

const (
	ProviderGemini          = "gemini"
	ProviderAnthropic       = "anthropic"
	ProviderOpenAI          = "openai"
	ProviderGroq            = "groq"
	ProviderOpenRouter      = "openrouter"
	ProviderChatCompletions = "chat_completions"
)

// kindSpec describes one provider kind. check reports what the slot is
// missing; it runs before build and on its own for status output.
type kindSpec struct {
	build func(cfg config.ProviderConfig) (LLMProvider, error)
	check func(cfg config.ProviderConfig) error
}

// kinds is filled from init funcs only and read-only afterwards.
var kinds = map[string]kindSpec{}

func register(kind string, spec kindSpec) {
	kind = NormalizeProviderName(kind)
	if kind == "" || spec.build == nil {
		panic("providers: register needs a kind and a build func")
	}
	if _, dup := kinds[kind]; dup {
		panic("providers: duplicate kind " + kind)
	}
	kinds[kind] = spec
}

// SupportedProviders lists registered kinds in sorted order.
func SupportedProviders() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func NormalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func lookup(cfg config.ProviderConfig) (kindSpec, string, error) {
	kind := NormalizeProviderName(cfg.Kind)
	if kind == "" {
		return kindSpec{}, kind, fmt.Errorf("%w: kind is empty", ErrProviderNotConfigured)
	}
	spec, ok := kinds[kind]
	if !ok {
		return kindSpec{}, kind, fmt.Errorf("unsupported provider %q: supported providers are %s",
			kind, strings.Join(SupportedProviders(), ", "))
	}
	return spec, kind, nil
}

func (s kindSpec) validate(cfg config.ProviderConfig) error {
	if s.check == nil {
		return nil
	}
	return s.check(cfg)
}

// ValidateProviderConfig checks that the slot names a registered kind and
// carries what that kind needs. An empty kind yields ErrProviderNotConfigured.
func ValidateProviderConfig(cfg config.ProviderConfig) error {
	spec, _, err := lookup(cfg)
	if err != nil {
		return err
	}
	return spec.validate(cfg)
}

// CreateProvider builds the client for one slot.
func CreateProvider(cfg config.ProviderConfig) (LLMProvider, error) {
	spec, _, err := lookup(cfg)
	if err != nil {
		return nil, err
	}
	if err := spec.validate(cfg); err != nil {
		return nil, err
	}
	return spec.build(cfg)
}

// keyed is the check shared by every key-authenticated kind.
func keyed(kind string) func(cfg config.ProviderConfig) error {
	return func(cfg config.ProviderConfig) error {
		_, err := newAPIKey(cfg.APIKey, kind+" api_key").resolve()
		return err
	}
}

func modelOr(cfg config.ProviderConfig, fallback string) string {
	if m := strings.TrimSpace(cfg.Model); m != "" {
		return m
	}
	return fallback
}
