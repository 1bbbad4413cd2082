package providers

import (
	"fmt"
	"net/http"
	"strings"
)

// apiKey is a slot credential. field names the config path in errors so an
// operator can tell which slot is misconfigured.
type apiKey struct {
	value string
	field string
}

func newAPIKey(value, field string) apiKey {
	return apiKey{value: strings.TrimSpace(value), field: field}
}

// resolve rejects empty keys and template leftovers such as "<GROQ_API_KEY>"
// or "${GROQ_API_KEY}" that were never substituted.
func (k apiKey) resolve() (string, error) {
	if k.value == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrProviderNotConfigured, k.field)
	}
	if isPlaceholder(k.value) {
		return "", fmt.Errorf("%w: %s looks like an unexpanded placeholder", ErrProviderNotConfigured, k.field)
	}
	return k.value, nil
}

func (k apiKey) setBearer(h http.Header) error {
	v, err := k.resolve()
	if err != nil {
		return err
	}
	h.Set("Authorization", "Bearer "+v)
	return nil
}

func isPlaceholder(v string) bool {
	return (strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">")) ||
		(strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}"))
}
