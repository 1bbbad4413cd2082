package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	maxErrorBodyChars  = 2000
)

// compatClient talks to any endpoint that speaks the OpenAI
// /chat/completions wire format (Groq, OpenRouter, self-hosted gateways).
type compatClient struct {
	kind     string
	endpoint string
	model    string
	key      apiKey
	header   http.Header
	http     *http.Client
}

type compatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type compatResponse struct {
	Choices []struct {
		Message struct {
			Content any `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *UsageInfo `json:"usage"`
}

func newCompatClient(kind, apiBase, model, proxy string, key apiKey, header http.Header) (*compatClient, error) {
	base := strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: %s api_base is empty", ErrProviderNotConfigured, kind)
	}
	hc, err := newHTTPClient(kind, proxy)
	if err != nil {
		return nil, err
	}
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")
	return &compatClient{
		kind:     kind,
		endpoint: base + "/chat/completions",
		model:    strings.TrimSpace(model),
		key:      key,
		header:   header,
		http:     hc,
	}, nil
}

// newHTTPClient applies the slot proxy, if any.
func newHTTPClient(kind, proxy string) (*http.Client, error) {
	hc := &http.Client{Timeout: defaultHTTPTimeout}
	if proxy = strings.TrimSpace(proxy); proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse %s proxy: %w", kind, err)
		}
		hc.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	}
	return hc, nil
}

func (c *compatClient) Chat(ctx context.Context, messages []Message, model string, opts CallOptions) (*LLMResponse, error) {
	if model = strings.TrimSpace(model); model == "" {
		model = c.model
	}
	payload, err := json.Marshal(compatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", c.kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", c.kind, err)
	}
	req.Header = c.header.Clone()
	if err := c.key.setBearer(req.Header); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", c.kind, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%s API request failed: status=%d error=%s",
			c.kind, resp.StatusCode, augmentProviderError(c.kind, extractAPIError(body)))
	}
	return decodeCompatResponse(body)
}

func (c *compatClient) GetDefaultModel() string { return c.model }

func decodeCompatResponse(body []byte) (*LLMResponse, error) {
	var out compatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	first := out.Choices[0]
	text := flattenMessageContent(first.Message.Content)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	return &LLMResponse{Content: text, FinishReason: first.FinishReason, Usage: out.Usage}, nil
}

// flattenMessageContent accepts both a plain string and the array-of-parts
// form some gateways return.
func flattenMessageContent(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, item := range v {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := part["text"].(string); ok {
				b.WriteString(s)
			} else if s, ok := part["content"].(string); ok {
				b.WriteString(s)
			}
		}
		return b.String()
	}
	return ""
}

func extractAPIError(body []byte) string {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return "empty response body"
	}
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, m := range []string{payload.Error.Message, payload.Message} {
			if m = strings.TrimSpace(m); m != "" {
				return m
			}
		}
	}
	if len(raw) > maxErrorBodyChars {
		return raw[:maxErrorBodyChars] + "..."
	}
	return raw
}
