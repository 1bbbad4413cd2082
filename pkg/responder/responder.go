// Package responder turns a question plus knowledge context into a reply by
// walking an ordered chain of language-model providers.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dotsetgreg/deskpatrol/pkg/config"
	"github.com/dotsetgreg/deskpatrol/pkg/logger"
	"github.com/dotsetgreg/deskpatrol/pkg/providers"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Turn struct {
	Role Role
	Text string
}

type Request struct {
	// Context is the assembled knowledge excerpt; empty means none matched.
	Context       string
	Query         string
	Direct        bool
	History       []Turn
	NeedsGreeting bool
}

type Answer struct {
	Text     string
	Provider string
}

// Answerer is what the patrol depends on.
type Answerer interface {
	Generate(ctx context.Context, req Request) (Answer, error)
}

type ProviderFailure struct {
	Slot string
	Kind string
	Err  error
}

// GenerationError lists why every slot in the chain failed. Generate still
// returns the apology text alongside it.
type GenerationError struct {
	Failures []ProviderFailure
}

func (e *GenerationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s(%s): %v", f.Slot, f.Kind, f.Err))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

func (e *GenerationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Slot is one link of the chain. A slot whose provider could not be built
// keeps the construction error and is reported as a failure when reached.
type Slot struct {
	Name      string
	Kind      string
	Provider  providers.LLMProvider
	Model     string
	MaxTokens int
	Err       error
}

// NewSlot builds a slot from a provider config without failing: a missing
// key or unknown kind is recorded on the slot.
func NewSlot(name string, cfg config.ProviderConfig) Slot {
	s := Slot{
		Name:      name,
		Kind:      providers.NormalizeProviderName(cfg.Kind),
		Model:     strings.TrimSpace(cfg.Model),
		MaxTokens: max(0, cfg.MaxTokens),
	}
	p, err := providers.CreateProvider(cfg)
	if err != nil {
		s.Err = err
		return s
	}
	s.Provider = p
	return s
}

type Responder struct {
	botName string
	slots   []Slot
}

func New(botName string, slots ...Slot) *Responder {
	return &Responder{botName: botName, slots: slots}
}

// FromConfig wires the primary and secondary provider slots.
func FromConfig(cfg config.Config) *Responder {
	return New(cfg.Bot.Name,
		NewSlot("primary", cfg.Providers.Primary),
		NewSlot("secondary", cfg.Providers.Secondary),
	)
}

// Slots exposes the chain, in call order, for status output.
func (r *Responder) Slots() []Slot {
	return append([]Slot(nil), r.slots...)
}

func (r *Responder) Generate(ctx context.Context, req Request) (Answer, error) {
	messages := r.buildMessages(req)
	genErr := &GenerationError{}

	for _, slot := range r.slots {
		text, err := r.call(ctx, slot, messages)
		if err == nil {
			return Answer{Text: text, Provider: slot.Name}, nil
		}
		genErr.Failures = append(genErr.Failures, ProviderFailure{Slot: slot.Name, Kind: slot.Kind, Err: err})
		logger.WarnCF("responder", "Provider failed, trying next", map[string]any{
			"slot":  slot.Name,
			"kind":  slot.Kind,
			"error": err.Error(),
		})
		if ctx.Err() != nil {
			break
		}
	}
	return Answer{Text: Apology}, genErr
}

func (r *Responder) call(ctx context.Context, slot Slot, messages []providers.Message) (string, error) {
	if slot.Provider == nil {
		if slot.Err != nil {
			return "", slot.Err
		}
		return "", providers.ErrProviderNotConfigured
	}
	resp, err := slot.Provider.Chat(ctx, messages, slot.Model, providers.CallOptions{Temperature: 0, MaxTokens: slot.MaxTokens})
	if err != nil {
		return "", err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", providers.ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Content), nil
}

func (r *Responder) buildMessages(req Request) []providers.Message {
	messages := make([]providers.Message, 0, len(req.History)+2)
	messages = append(messages, providers.Message{
		Role:    providers.RoleSystem,
		Content: SystemPrompt(r.botName, req.Context, req.NeedsGreeting),
	})
	for _, t := range req.History {
		role := providers.RoleUser
		if t.Role == RoleModel {
			role = providers.RoleAssistant
		}
		messages = append(messages, providers.Message{Role: role, Content: t.Text})
	}
	return append(messages, providers.Message{Role: providers.RoleUser, Content: req.Query})
}

// IsNotConfigured reports whether every failure in err was a missing
// provider configuration.
func IsNotConfigured(err error) bool {
	var ge *GenerationError
	if !errors.As(err, &ge) || len(ge.Failures) == 0 {
		return false
	}
	for _, f := range ge.Failures {
		if !errors.Is(f.Err, providers.ErrProviderNotConfigured) {
			return false
		}
	}
	return true
}
