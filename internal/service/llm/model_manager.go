package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kapu/persona-globe-go/internal/config"
	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/metrics"
	"github.com/kapu/persona-globe-go/internal/util"
	"github.com/kapu/persona-globe-go/pkg/errors"
)

// ErrProviderNotConfigured is returned when the selected provider has no API key.
var ErrProviderNotConfigured = stderrors.New("LLM provider not configured")

// ErrCircuitOpen is returned while the circuit breaker rejects calls.
var ErrCircuitOpen = stderrors.New("LLM service temporarily unavailable")

// ModelManager routes generation calls to a primary provider and, when
// enabled, a fallback provider, behind a shared circuit breaker.
type ModelManager struct {
	primary        Provider
	fallback       Provider
	defaults       *ModelConfig
	circuitBreaker *util.CircuitBreaker
	logger         *zap.Logger
}

// NewProvider builds the named provider from configuration. A missing key
// yields ErrProviderNotConfigured.
func NewProvider(ctx context.Context, name string, cfg config.LLMConfig, logger *zap.Logger) (Provider, error) {
	apiKey := cfg.APIKey(name)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrProviderNotConfigured)
	}

	switch name {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(apiKey, cfg.Model(name), logger), nil
	case config.ProviderAnthropic:
		return NewAnthropicProvider(apiKey, cfg.Model(name), logger), nil
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, apiKey, cfg.Model(name), logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", name)
	}
}

func NewModelManager(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*ModelManager, error) {
	primary, err := NewProvider(ctx, cfg.Provider, cfg, logger)
	if err != nil {
		return nil, err
	}

	var fallback Provider
	if cfg.EnableFallback && cfg.FallbackProvider != "" && cfg.FallbackProvider != cfg.Provider {
		fallback, err = NewProvider(ctx, cfg.FallbackProvider, cfg, logger)
		if err != nil {
			logger.Info("LLM fallback disabled", zap.String("provider", cfg.FallbackProvider), zap.Error(err))
			fallback = nil
		} else {
			logger.Info("LLM fallback enabled", zap.String("provider", fallback.Name()))
		}
	}

	mm := NewModelManagerWithProviders(primary, fallback, logger)
	mm.defaults = &ModelConfig{
		Temperature:     float32(cfg.Temperature),
		MaxOutputTokens: cfg.MaxTokens,
	}
	return mm, nil
}

// NewModelManagerWithProviders wires already-built providers; fallback may be nil.
func NewModelManagerWithProviders(primary, fallback Provider, logger *zap.Logger) *ModelManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	mm := &ModelManager{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
	mm.circuitBreaker = util.NewCircuitBreaker(
		"llm",
		constants.CircuitBreakerConfig.FailureThreshold,
		constants.CircuitBreakerConfig.ResetTimeout,
		constants.CircuitBreakerConfig.HealthCheckInterval,
		mm.healthCheckPing,
		logger,
	)
	return mm
}

func (mm *ModelManager) ProviderName() string {
	return mm.primary.Name()
}

// GenerateText runs prompt against the primary provider, then the fallback.
func (mm *ModelManager) GenerateText(ctx context.Context, prompt string, preset ModelPreset, opts *GenerateOptions) (string, *GenerateMetadata, error) {
	if !mm.circuitBreaker.CanExecute() {
		status := mm.circuitBreaker.GetStatus()
		mm.logger.Warn("LLM call rejected, circuit open",
			zap.Int("failure_count", status.FailureCount),
			zap.Timep("next_retry", status.NextRetryTime),
		)
		return "", nil, ErrCircuitOpen
	}

	callOpts := mm.withDefaults(opts)

	text, model, primaryErr := mm.generateWith(ctx, mm.primary, prompt, preset, callOpts)
	if primaryErr == nil {
		mm.circuitBreaker.RecordSuccess()
		return text, &GenerateMetadata{Provider: mm.primary.Name(), Model: model}, nil
	}
	if ctx.Err() != nil {
		return "", nil, ctx.Err()
	}

	if mm.fallback == nil {
		mm.recordFailure(primaryErr)
		return "", nil, errors.NewServiceError("LLM generation failed", mm.primary.Name(), "generate", primaryErr)
	}

	mm.logger.Warn("Primary LLM failed, trying fallback",
		zap.String("primary", mm.primary.Name()),
		zap.String("fallback", mm.fallback.Name()),
		zap.Error(primaryErr),
	)

	text, model, fallbackErr := mm.generateWith(ctx, mm.fallback, prompt, preset, callOpts)
	if fallbackErr == nil {
		mm.circuitBreaker.RecordSuccess()
		return text, &GenerateMetadata{Provider: mm.fallback.Name(), Model: model, UsedFallback: true}, nil
	}

	mm.recordFailure(primaryErr, fallbackErr)
	return "", nil, errors.NewServiceError("LLM generation failed", mm.fallback.Name(), "generate",
		stderrors.Join(primaryErr, fallbackErr))
}

func (mm *ModelManager) generateWith(ctx context.Context, p Provider, prompt string, preset ModelPreset, opts *GenerateOptions) (string, string, error) {
	result, err := p.Generate(ctx, prompt, preset, opts)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(p.Name(), "error").Inc()
		return "", "", err
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		metrics.LLMRequestsTotal.WithLabelValues(p.Name(), "empty").Inc()
		return "", "", fmt.Errorf("%s API returned empty response", p.Name())
	}
	metrics.LLMRequestsTotal.WithLabelValues(p.Name(), "ok").Inc()
	return text, result.Model, nil
}

func (mm *ModelManager) withDefaults(opts *GenerateOptions) *GenerateOptions {
	out := GenerateOptions{}
	if opts != nil {
		out = *opts
	}
	if mm.defaults == nil {
		return &out
	}

	merged := *mm.defaults
	if out.Overrides != nil {
		o := out.Overrides
		if o.Temperature > 0 {
			merged.Temperature = o.Temperature
		}
		if o.TopP > 0 {
			merged.TopP = o.TopP
		}
		if o.TopK > 0 {
			merged.TopK = o.TopK
		}
		if o.MaxOutputTokens > 0 {
			merged.MaxOutputTokens = o.MaxOutputTokens
		}
		if o.ResponseMimeType != "" {
			merged.ResponseMimeType = o.ResponseMimeType
		}
	}
	out.Overrides = &merged
	return &out
}

func (mm *ModelManager) recordFailure(errs ...error) {
	serviceFailure := false
	rateLimited := false
	for _, err := range errs {
		if isServiceFailure(err) {
			serviceFailure = true
		}
		if isRateLimitError(err) {
			rateLimited = true
		}
	}
	if !serviceFailure {
		return
	}
	timeout := constants.CircuitBreakerConfig.ResetTimeout
	if rateLimited {
		timeout = constants.CircuitBreakerConfig.RateLimitTimeout
	}
	mm.circuitBreaker.RecordFailure(timeout)
}

// Healthy reports whether a generation call would currently be attempted.
func (mm *ModelManager) Healthy() bool {
	return mm.circuitBreaker.CanExecute()
}

func (mm *ModelManager) GetCircuitStatus() util.CircuitBreakerStatus {
	return mm.circuitBreaker.GetStatus()
}

func (mm *ModelManager) ResetCircuit() {
	mm.circuitBreaker.Reset()
}

func (mm *ModelManager) healthCheckPing() bool {
	ctx, cancel := context.WithTimeout(context.Background(), constants.CircuitBreakerConfig.HealthCheckTimeout)
	defer cancel()

	primaryOK := mm.primary.Ping(ctx)
	fallbackOK := false
	if !primaryOK && mm.fallback != nil {
		fallbackOK = mm.fallback.Ping(ctx)
	}

	mm.logger.Info("LLM health check",
		zap.Bool("primary", primaryOK),
		zap.Bool("fallback", fallbackOK),
	)
	return primaryOK || fallbackOK
}

var (
	statusCodeRegex = regexp.MustCompile(`\b(5\d{2})\b`)
	jsonCodeRegex   = regexp.MustCompile(`"code":\s*(\d{3})`)
)

// statusFromError digs an HTTP status out of the SDK error types.
func statusFromError(err error) int {
	var openaiErr *openai.Error
	if stderrors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}
	var anthropicErr *anthropic.Error
	if stderrors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	var geminiErr genai.APIError
	if stderrors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	var geminiErrPtr *genai.APIError
	if stderrors.As(err, &geminiErrPtr) && geminiErrPtr != nil {
		return geminiErrPtr.Code
	}
	if matches := jsonCodeRegex.FindStringSubmatch(err.Error()); len(matches) > 1 {
		if code, convErr := strconv.Atoi(matches[1]); convErr == nil {
			return code
		}
	}
	return 0
}

// isServiceFailure separates upstream outages (timeouts, 5xx, 429) from
// request-level errors that should not trip the breaker.
func isServiceFailure(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if isRateLimitError(err) {
		return true
	}
	if code := statusFromError(err); code != 0 {
		return code >= 500 && code < 600
	}

	msg := err.Error()
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "ETIMEDOUT") {
		return true
	}
	return statusCodeRegex.MatchString(msg)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if statusFromError(err) == 429 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Rate limit") || strings.Contains(msg, "quota")
}
