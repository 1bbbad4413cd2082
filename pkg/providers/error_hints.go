package providers

import "strings"

func augmentProviderError(providerName, message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return msg
	}

	lower := strings.ToLower(msg)
	switch NormalizeProviderName(providerName) {
	case ProviderGroq:
		if strings.Contains(lower, "rate limit") {
			return msg + " Hint: Groq free-tier limits are per minute; lower the patrol schedule frequency or set a paid key."
		}
	case ProviderOpenRouter:
		if strings.Contains(lower, "no endpoints found") {
			return msg + " Hint: the model id must include the vendor prefix, e.g. openai/gpt-4o-mini."
		}
	case ProviderGemini:
		if strings.Contains(lower, "api key not valid") {
			return msg + " Hint: gemini expects a Google AI Studio key, not a Vertex AI service account."
		}
	}
	if strings.Contains(lower, "incorrect api key") || strings.Contains(lower, "invalid api key") {
		return msg + " Hint: check providers.primary.api_key / providers.secondary.api_key for this kind."
	}
	return msg
}
