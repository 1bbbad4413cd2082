package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dotsetgreg/deskpatrol/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTurns = []Message{
	{Role: RoleSystem, Content: "you are a helpdesk bot"},
	{Role: RoleUser, Content: "VPNにつながらない"},
	{Role: RoleAssistant, Content: "再起動してください"},
	{Role: RoleUser, Content: "まだだめです"},
}

func TestCreateProvider_Groq_PostsChatCompletions(t *testing.T) {
	var seenAuth, seenPath string
	var req map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		seenPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer server.Close()

	provider, err := CreateProvider(config.ProviderConfig{Kind: "Groq", APIKey: "gsk-1", APIBase: server.URL})
	require.NoError(t, err)
	assert.Equal(t, defaultGroqModel, provider.GetDefaultModel())

	resp, err := provider.Chat(context.Background(), testTurns, "", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
	assert.Equal(t, "Bearer gsk-1", seenAuth)
	assert.Equal(t, "/chat/completions", seenPath)
	assert.Equal(t, defaultGroqModel, req["model"])
	assert.Equal(t, 0.0, req["temperature"])
	assert.Len(t, req["messages"], 4)
}

func TestChatCompletions_EmptyChoicesIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	provider, err := CreateProvider(config.ProviderConfig{Kind: ProviderOpenRouter, APIKey: "k", APIBase: server.URL})
	require.NoError(t, err)
	_, err = provider.Chat(context.Background(), testTurns, "", CallOptions{})
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestChatCompletions_ErrorBodyIsSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	}))
	defer server.Close()

	provider, err := CreateProvider(config.ProviderConfig{Kind: ProviderGroq, APIKey: "k", APIBase: server.URL})
	require.NoError(t, err)
	_, err = provider.Chat(context.Background(), testTurns, "", CallOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
	assert.Contains(t, err.Error(), "Rate limit reached")
}

func TestCreateProvider_OpenAI_UsesSDKAgainstBaseURL(t *testing.T) {
	var seenAuth, seenPath string
	var req map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		seenPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello"}}],
			"usage":{"prompt_tokens":2,"completion_tokens":1,"total_tokens":3}}`))
	}))
	defer server.Close()

	provider, err := CreateProvider(config.ProviderConfig{Kind: ProviderOpenAI, APIKey: "sk-1", APIBase: server.URL + "/v1/"})
	require.NoError(t, err)

	resp, err := provider.Chat(context.Background(), testTurns, "", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "Bearer sk-1", seenAuth)
	assert.Equal(t, "/v1/chat/completions", seenPath)
	assert.Equal(t, defaultOpenAIModel, req["model"])
	msgs, ok := req["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
}

func TestCreateProvider_Anthropic_SendsSystemSeparately(t *testing.T) {
	var seenKey, seenPath string
	var req map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKey = r.Header.Get("X-Api-Key")
		seenPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude",
			"content":[{"type":"text","text":"了解です"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":5,"output_tokens":2}}`))
	}))
	defer server.Close()

	provider, err := CreateProvider(config.ProviderConfig{Kind: ProviderAnthropic, APIKey: "ak-1", APIBase: server.URL + "/", Model: "claude-test"})
	require.NoError(t, err)

	resp, err := provider.Chat(context.Background(), testTurns, "", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "了解です", resp.Content)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
	assert.Equal(t, "ak-1", seenKey)
	assert.Equal(t, "/v1/messages", seenPath)
	assert.Equal(t, "claude-test", req["model"])
	assert.NotNil(t, req["system"])
	assert.Len(t, req["messages"], 3)
}

func TestCreateProvider_Gemini_GeneratesContent(t *testing.T) {
	var seenPath string
	var req map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"回答です"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2,"totalTokenCount":6}}`))
	}))
	defer server.Close()

	provider, err := CreateProvider(config.ProviderConfig{Kind: ProviderGemini, APIKey: "g-1", APIBase: server.URL})
	require.NoError(t, err)

	resp, err := provider.Chat(context.Background(), testTurns, "", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "回答です", resp.Content)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
	assert.True(t, strings.HasSuffix(seenPath, "models/"+defaultGeminiModel+":generateContent"), seenPath)
	assert.NotNil(t, req["systemInstruction"])
	assert.Len(t, req["contents"], 3)
}

func TestCreateProvider_MissingKeyIsNotConfigured(t *testing.T) {
	for _, kind := range []string{ProviderGemini, ProviderGroq, ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter} {
		_, err := CreateProvider(config.ProviderConfig{Kind: kind})
		assert.True(t, errors.Is(err, ErrProviderNotConfigured), kind)
	}
	_, err := CreateProvider(config.ProviderConfig{})
	assert.True(t, errors.Is(err, ErrProviderNotConfigured))
}

func TestChatCompletionsKindRequiresBaseAndModel(t *testing.T) {
	err := ValidateProviderConfig(config.ProviderConfig{Kind: ProviderChatCompletions, APIKey: "k"})
	assert.True(t, errors.Is(err, ErrProviderNotConfigured))
	assert.NoError(t, ValidateProviderConfig(config.ProviderConfig{Kind: ProviderChatCompletions, APIKey: "k", APIBase: "http://x", Model: "m"}))
}

func TestCreateProvider_UnsupportedProvider(t *testing.T) {
	_, err := CreateProvider(config.ProviderConfig{Kind: "does-not-exist", APIKey: "k"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProviderNotConfigured))
	assert.Contains(t, err.Error(), "gemini")
}

func TestChatCompletions_SendsMaxTokensOnlyWhenSet(t *testing.T) {
	var bodies []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		bodies = append(bodies, req)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	provider, err := CreateProvider(config.ProviderConfig{Kind: ProviderGroq, APIKey: "k", APIBase: server.URL})
	require.NoError(t, err)
	_, err = provider.Chat(context.Background(), testTurns, "", CallOptions{})
	require.NoError(t, err)
	_, err = provider.Chat(context.Background(), testTurns, "", CallOptions{MaxTokens: 256})
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.NotContains(t, bodies[0], "max_tokens")
	assert.Equal(t, 256.0, bodies[1]["max_tokens"])
}

func TestMergeTurnsOpensWithUserAndFoldsRepeats(t *testing.T) {
	got := mergeTurns([]Message{
		{Role: RoleAssistant, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleUser, Content: "c"},
	})
	require.Len(t, got, 3)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, RoleAssistant, got[1].Role)
	assert.Equal(t, "b\nc", got[2].Content)
}

func TestRegisterRejectsDuplicateKind(t *testing.T) {
	assert.Panics(t, func() { register(ProviderGroq, kindSpec{build: compatibleBuilder(ProviderGroq, "", "")}) })
	assert.Panics(t, func() { register(" ", kindSpec{}) })
	assert.Equal(t, []string{
		ProviderAnthropic, ProviderChatCompletions, ProviderGemini,
		ProviderGroq, ProviderOpenAI, ProviderOpenRouter,
	}, SupportedProviders())
}
