// Package engine rates an idea against a persona catalog using either the
// local mock strategy or the remote rating service.
package engine

import (
	"context"
	"math/rand/v2"
	"net/http"

	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/client"
	"github.com/kapu/persona-globe-go/internal/domain"
	"github.com/kapu/persona-globe-go/pkg/errors"
)

// RatingClient is the remote half of the engine. *client.Client satisfies it,
// and so does the in-process adapter in the rating service.
type RatingClient interface {
	Rank(ctx context.Context, req client.RankRequest) (*client.RankResponse, error)
}

// Telemetry receives one RecordAnalysis per successful Analyze and at most
// one RecordFallback.
type Telemetry interface {
	RecordAnalysis(strategy string)
	RecordFallback(reason string)
}

type NopTelemetry struct{}

func (NopTelemetry) RecordAnalysis(string) {}
func (NopTelemetry) RecordFallback(string) {}

// Fallback reasons passed to Telemetry.RecordFallback.
const (
	FallbackNotConfigured = "not_configured"
	FallbackTransport     = "transport"
	FallbackHTTPStatus    = "http_status"
	FallbackBadBody       = "bad_body"
	FallbackNoValidResult = "no_valid_results"
)

// Config is fixed at construction.
type Config struct {
	UseRealLLM         bool
	DefaultMaxPersonas int
}

type Engine struct {
	cfg       Config
	remote    RatingClient
	mock      *MockStrategy
	telemetry Telemetry
	logger    *zap.Logger
}

// New builds an engine. remote may be nil, in which case remote requests
// fall back to the mock strategy. A nil rng is seeded randomly.
func New(cfg Config, remote RatingClient, rng *rand.Rand, telemetry Telemetry, logger *zap.Logger) *Engine {
	if telemetry == nil {
		telemetry = NopTelemetry{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		remote:    remote,
		mock:      NewMockStrategy(rng),
		telemetry: telemetry,
		logger:    logger,
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Analyze rates req.Idea against personas. Remote failures never surface:
// the engine falls back to the mock strategy and reports UsedFallback. Only
// validation errors and context cancellation are returned.
func (e *Engine) Analyze(ctx context.Context, personas []*domain.Persona, req domain.AnalysisRequest) (*domain.AnalysisResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.MaxPersonas <= 0 && e.cfg.DefaultMaxPersonas > 0 {
		req.MaxPersonas = e.cfg.DefaultMaxPersonas
	}
	req, err := req.Normalize(len(personas))
	if err != nil {
		return nil, err
	}

	useRemote := e.cfg.UseRealLLM
	if req.UseRealLLM != nil {
		useRemote = *req.UseRealLLM
	}

	if len(personas) == 0 {
		resp := domain.NewAnalysisResponse(req.Idea, nil, domain.StrategyMock)
		e.telemetry.RecordAnalysis(resp.Strategy)
		return resp, nil
	}

	if !useRemote {
		resp := domain.NewAnalysisResponse(req.Idea, e.mock.Rate(personas, req.MaxPersonas), domain.StrategyMock)
		e.telemetry.RecordAnalysis(resp.Strategy)
		return resp, nil
	}

	results, reason, cause := e.rateRemote(ctx, personas, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reason == "" {
		resp := domain.NewAnalysisResponse(req.Idea, results, domain.StrategyRemote)
		e.telemetry.RecordAnalysis(resp.Strategy)
		return resp, nil
	}

	e.logger.Warn("Remote analysis unavailable, using mock ratings",
		zap.String("reason", reason),
		zap.Error(cause),
	)
	e.telemetry.RecordFallback(reason)

	resp := domain.NewAnalysisResponse(req.Idea, e.mock.Rate(personas, req.MaxPersonas), domain.StrategyMock)
	resp.UsedFallback = true
	e.telemetry.RecordAnalysis(resp.Strategy)
	return resp, nil
}

// rateRemote returns the parsed results, or a non-empty fallback reason.
func (e *Engine) rateRemote(ctx context.Context, personas []*domain.Persona, req domain.AnalysisRequest) ([]domain.PersonaRating, string, error) {
	if e.remote == nil {
		return nil, FallbackNotConfigured, nil
	}

	rankReq := client.RankRequest{
		Idea:        req.Idea,
		MaxPersonas: req.MaxPersonas,
	}
	for _, a := range req.Attachments {
		rankReq.Attachments = append(rankReq.Attachments, client.AttachmentPayload{
			Name:        a.Name,
			ContentType: a.ContentType,
			Content:     a.Content,
			IsDataURL:   a.IsDataURL,
		})
	}

	resp, err := e.remote.Rank(ctx, rankReq)
	if err != nil {
		return nil, classifyRemoteError(err), err
	}

	index := make(map[string]*domain.Persona, len(personas))
	for _, p := range personas {
		index[p.ID] = p
	}

	results := make([]domain.PersonaRating, 0, len(resp.Results))
	seen := make(map[string]struct{}, len(resp.Results))
	var lastErr error
	for i, raw := range resp.Results {
		rating, err := ParseRemoteRating(raw, index)
		if err != nil {
			lastErr = err
			e.logger.Warn("Dropping invalid remote result", zap.Int("index", i), zap.Error(err))
			continue
		}
		if _, dup := seen[rating.Persona.ID]; dup {
			e.logger.Debug("Dropping duplicate remote result", zap.String("persona_id", rating.Persona.ID))
			continue
		}
		seen[rating.Persona.ID] = struct{}{}
		results = append(results, rating)
		if len(results) == req.MaxPersonas {
			break
		}
	}

	if len(results) == 0 {
		return nil, FallbackNoValidResult, lastErr
	}
	return results, "", nil
}

func classifyRemoteError(err error) string {
	var apiErr *errors.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 0 {
			return FallbackTransport
		}
		return FallbackHTTPStatus
	}
	var parseErr *errors.ParseError
	if errors.As(err, &parseErr) {
		return FallbackBadBody
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.StatusCode == http.StatusServiceUnavailable {
		return FallbackNotConfigured
	}
	return FallbackTransport
}
