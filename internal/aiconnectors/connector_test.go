package aiconnectors

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/livereview/prchat/internal/llm"
)

type fakeModel struct {
	messages []llms.MessageContent
	options  llms.CallOptions
	reply    string
	err      error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.options)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestParseProvider(t *testing.T) {
	tests := map[string]Provider{
		"openai":    ProviderOpenAI,
		" OpenAI ":  ProviderOpenAI,
		"anthropic": ProviderClaude,
		"claude":    ProviderClaude,
		"googleai":  ProviderGemini,
		"ollama":    ProviderOllama,
		"cohere":    ProviderCohere,
	}
	for in, want := range tests {
		got, err := ParseProvider(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseProvider("mystery")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestLangchainCompleterPassesOptions(t *testing.T) {
	model := &fakeModel{reply: `{"answer": "ok"}`}
	c := NewLangchainCompleter(ProviderOllama, model)

	out, err := c.Complete(context.Background(), "question", "llama3", llm.DefaultCallOptions())
	require.NoError(t, err)
	assert.Equal(t, `{"answer": "ok"}`, out)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, "llama3", model.options.Model)
	assert.Equal(t, 0.3, model.options.Temperature)
	assert.Equal(t, 2000, model.options.MaxTokens)
	assert.True(t, model.options.JSONMode)
}

func TestLangchainCompleterWrapsErrors(t *testing.T) {
	c := NewLangchainCompleter(ProviderGemini, &fakeModel{err: errors.New("HTTP 429")})
	_, err := c.Complete(context.Background(), "q", "", llm.CallOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini completion")
	assert.Contains(t, Ping(context.Background(), c, "").Error(), "quota exceeded")
}

func TestNewCompleterUnsupported(t *testing.T) {
	_, err := NewCompleter(context.Background(), ConnectorOptions{Provider: "mystery"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestNewCompleterNativeSDK(t *testing.T) {
	c, err := NewCompleter(context.Background(), ConnectorOptions{Provider: ProviderOpenAI, APIKey: "k", NativeSDK: true})
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompleter{}, c)

	c, err = NewCompleter(context.Background(), ConnectorOptions{Provider: ProviderClaude, APIKey: "k", NativeSDK: true})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicCompleter{}, c)
}

func TestOpenAICompleterRequestsJSONObject(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"{\"answer\":\"hi\"}"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c := NewOpenAICompleter(ConnectorOptions{APIKey: "k", BaseURL: srv.URL, DefaultModel: "gpt-4o-mini"})
	out, err := c.Complete(context.Background(), "question", "", llm.DefaultCallOptions())
	require.NoError(t, err)
	assert.Equal(t, `{"answer":"hi"}`, out)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, body["response_format"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
}

func TestAnthropicCompleterJoinsTextBlocks(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest","content":[{"type":"text","text":"{\"answer\":"},{"type":"text","text":"\"hi\"}"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":4}}`)
	}))
	defer srv.Close()

	c := NewAnthropicCompleter(ConnectorOptions{APIKey: "k", BaseURL: srv.URL})
	out, err := c.Complete(context.Background(), "question", "claude-3-5-haiku-latest", llm.DefaultCallOptions())
	require.NoError(t, err)
	assert.Equal(t, `{"answer":"hi"}`, out)
	assert.Equal(t, float64(2000), body["max_tokens"])
	assert.NotNil(t, body["system"])
}
