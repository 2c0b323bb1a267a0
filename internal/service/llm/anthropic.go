package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// AnthropicProvider wraps the Anthropic Messages API.
type AnthropicProvider struct {
	client       *anthropic.Client
	defaultModel string
	logger       *zap.Logger
}

func NewAnthropicProvider(apiKey, defaultModel string, logger *zap.Logger, opts ...anthropicoption.RequestOption) *AnthropicProvider {
	if apiKey == "" {
		return nil
	}
	if defaultModel == "" {
		defaultModel = "claude-3-5-haiku-latest"
	}
	client := anthropic.NewClient(append([]anthropicoption.RequestOption{anthropicoption.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicProvider{
		client:       &client,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

func (a *AnthropicProvider) Name() string {
	return "Anthropic"
}

func (a *AnthropicProvider) Generate(ctx context.Context, prompt string, preset ModelPreset, opts *GenerateOptions) (ProviderResult, error) {
	if a.client == nil {
		return ProviderResult{}, fmt.Errorf("Anthropic client not initialized")
	}

	modelName := modelOrDefault(opts, a.defaultModel)
	config := resolveModelConfig(preset, opts)

	a.logger.Debug("Generating with Anthropic",
		zap.String("model", modelName),
		zap.String("preset", string(preset)),
	)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: int64(config.MaxOutputTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(float64(config.Temperature)),
	}
	if system := systemPrompt(opts); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		a.logger.Error("Anthropic generation failed", zap.Error(err))
		return ProviderResult{}, err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		return ProviderResult{}, fmt.Errorf("empty response from Anthropic")
	}

	a.logger.Debug("Anthropic response received",
		zap.Int("length", len(text)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	return ProviderResult{Text: text, Model: modelName}, nil
}

func (a *AnthropicProvider) Ping(ctx context.Context) bool {
	if a.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	_, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.defaultModel),
		MaxTokens: 10,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		a.logger.Debug("Anthropic ping failed", zap.Error(err))
		return false
	}
	return true
}
