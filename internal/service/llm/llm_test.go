package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/config"
)

type fakeProvider struct {
	name    string
	text    string
	err     error
	calls   int
	lastOpt *GenerateOptions
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, _ string, _ ModelPreset, opts *GenerateOptions) (ProviderResult, error) {
	f.calls++
	f.lastOpt = opts
	if f.err != nil {
		return ProviderResult{}, f.err
	}
	return ProviderResult{Text: f.text, Model: f.name + "-model"}, nil
}

func (f *fakeProvider) Ping(context.Context) bool { return f.err == nil }

func TestExtractJSONObject(t *testing.T) {
	cases := map[string]string{
		"plain":          `{"selected_experts":[]}`,
		"fenced json":    "Here you go:\n```json\n{\"selected_experts\":[]}\n```\nThanks",
		"bare fence":     "```\n{\"selected_experts\":[]}\n```",
		"inline fence":   "```json {\"selected_experts\":[]}```",
		"prose around":   "Sure! {\"selected_experts\":[]} Let me know.",
		"brace in prose": "Use {curly} braces: {\"selected_experts\":[]}",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			obj, err := ExtractJSONObject(input)
			require.NoError(t, err)
			assert.JSONEq(t, `{"selected_experts":[]}`, obj)
		})
	}
}

func TestExtractJSONObjectHandlesBracesInStrings(t *testing.T) {
	obj, err := ExtractJSONObject(`noise {"a":"x } y","b":{"c":1}} trailing }`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x } y","b":{"c":1}}`, obj)
}

func TestExtractJSONObjectFailures(t *testing.T) {
	for _, input := range []string{"", "   ", "no json here", "```json\n{broken\n```", "{\"a\": }"} {
		_, err := ExtractJSONObject(input)
		assert.ErrorIs(t, err, ErrNoJSONObject, "input %q", input)
	}
}

func TestResolveModelConfig(t *testing.T) {
	cfg := resolveModelConfig(PresetPrecise, &GenerateOptions{
		JSONMode:  true,
		Overrides: &ModelConfig{Temperature: 0.7, MaxOutputTokens: 2000},
	})
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-6)
	assert.Equal(t, 2000, cfg.MaxOutputTokens)
	assert.Equal(t, 20, cfg.TopK)
	assert.Equal(t, "application/json", cfg.ResponseMimeType)

	assert.Equal(t, GetPresetConfig(PresetBalanced), resolveModelConfig("unknown", nil))
}

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, "", systemPrompt(nil))
	assert.Equal(t, jsonOnlyInstruction, systemPrompt(&GenerateOptions{JSONMode: true}))
	assert.Equal(t, "be brief", systemPrompt(&GenerateOptions{SystemPrompt: "be brief"}))
	assert.Contains(t, systemPrompt(&GenerateOptions{SystemPrompt: "be brief", JSONMode: true}), jsonOnlyInstruction)
}

func TestModelManagerPrimarySuccess(t *testing.T) {
	primary := &fakeProvider{name: "OpenAI", text: "  {\"ok\":true} "}
	mm := NewModelManagerWithProviders(primary, nil, zap.NewNop())

	text, meta, err := mm.GenerateText(context.Background(), "p", PresetPrecise, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	assert.Equal(t, "OpenAI", meta.Provider)
	assert.False(t, meta.UsedFallback)
}

func TestModelManagerUsesFallback(t *testing.T) {
	primary := &fakeProvider{name: "OpenAI", err: fmt.Errorf("503 Service Unavailable")}
	fallback := &fakeProvider{name: "Anthropic", text: "{}"}
	mm := NewModelManagerWithProviders(primary, fallback, zap.NewNop())

	_, meta, err := mm.GenerateText(context.Background(), "p", PresetPrecise, nil)
	require.NoError(t, err)
	assert.Equal(t, "Anthropic", meta.Provider)
	assert.True(t, meta.UsedFallback)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestModelManagerOpensCircuitOnRepeatedOutage(t *testing.T) {
	primary := &fakeProvider{name: "OpenAI", err: fmt.Errorf("500 Internal Server Error")}
	mm := NewModelManagerWithProviders(primary, nil, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, _, err := mm.GenerateText(context.Background(), "p", PresetPrecise, nil)
		require.Error(t, err)
	}
	assert.False(t, mm.Healthy())

	_, _, err := mm.GenerateText(context.Background(), "p", PresetPrecise, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, primary.calls)

	mm.ResetCircuit()
	assert.True(t, mm.Healthy())
}

func TestModelManagerClientErrorsDoNotTripCircuit(t *testing.T) {
	primary := &fakeProvider{name: "OpenAI", err: fmt.Errorf("400 Bad Request: invalid model")}
	mm := NewModelManagerWithProviders(primary, nil, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, _, _ = mm.GenerateText(context.Background(), "p", PresetPrecise, nil)
	}
	assert.True(t, mm.Healthy())
}

func TestModelManagerAppliesConfiguredDefaults(t *testing.T) {
	primary := &fakeProvider{name: "OpenAI", text: "{}"}
	mm := NewModelManagerWithProviders(primary, nil, zap.NewNop())
	mm.defaults = &ModelConfig{Temperature: 0.7, MaxOutputTokens: 2000}

	_, _, err := mm.GenerateText(context.Background(), "p", PresetPrecise, &GenerateOptions{
		SystemPrompt: "sys",
		Overrides:    &ModelConfig{MaxOutputTokens: 500},
	})
	require.NoError(t, err)
	require.NotNil(t, primary.lastOpt.Overrides)
	assert.InDelta(t, 0.7, primary.lastOpt.Overrides.Temperature, 1e-6)
	assert.Equal(t, 500, primary.lastOpt.Overrides.MaxOutputTokens)
	assert.Equal(t, "sys", primary.lastOpt.SystemPrompt)
}

func TestNewModelManagerRequiresKey(t *testing.T) {
	_, err := NewModelManager(context.Background(), config.LLMConfig{Provider: config.ProviderOpenAI}, zap.NewNop())
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, isServiceFailure(context.DeadlineExceeded))
	assert.True(t, isServiceFailure(fmt.Errorf("request timeout")))
	assert.True(t, isServiceFailure(fmt.Errorf(`{"error":{"code":503}}`)))
	assert.True(t, isRateLimitError(fmt.Errorf("429 Too Many Requests")))
	assert.True(t, isServiceFailure(fmt.Errorf("429 Too Many Requests")))
	assert.False(t, isServiceFailure(fmt.Errorf(`{"error":{"code":400}}`)))
	assert.False(t, isServiceFailure(stderrors.New("invalid api key")))
	assert.False(t, isServiceFailure(nil))
}

func TestOpenAIProviderAgainstStub(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"selected_experts\":[]}"}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", "gpt-4o-mini", zap.NewNop(), option.WithBaseURL(srv.URL))
	res, err := p.Generate(context.Background(), "rate this", PresetPrecise, &GenerateOptions{SystemPrompt: "sys", JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"selected_experts":[]}`, res.Text)
	assert.Equal(t, "gpt-4o-mini", body["model"])

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestAnthropicProviderAgainstStub(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "{\"selected_experts\":[]}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("sk-ant", "claude-3-5-haiku-latest", zap.NewNop(), anthropicoption.WithBaseURL(srv.URL))
	res, err := p.Generate(context.Background(), "rate this", PresetPrecise, &GenerateOptions{SystemPrompt: "sys"})
	require.NoError(t, err)
	assert.Equal(t, `{"selected_experts":[]}`, res.Text)
	assert.Equal(t, "claude-3-5-haiku-latest", body["model"])
	assert.NotNil(t, body["system"])
}
