// Package rating is the server side of the remote strategy: it asks an LLM
// to pick and rate experts for an idea and returns the normalized rankings.
package rating

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/domain"
	"github.com/kapu/persona-globe-go/internal/metrics"
	"github.com/kapu/persona-globe-go/internal/prompt"
	"github.com/kapu/persona-globe-go/internal/service/llm"
	"github.com/kapu/persona-globe-go/internal/util"
	"github.com/kapu/persona-globe-go/pkg/errors"
)

//go:embed schema/rating_response.json
var responseSchemaJSON string

// ErrNotConfigured is returned by Rank when no LLM provider is available.
var ErrNotConfigured = errors.NewAppError("no LLM provider configured", errors.CodeService, http.StatusServiceUnavailable, nil)

// Generator is satisfied by *llm.ModelManager.
type Generator interface {
	GenerateText(ctx context.Context, prompt string, preset llm.ModelPreset, opts *llm.GenerateOptions) (string, *llm.GenerateMetadata, error)
}

// Cache is satisfied by *cache.CacheService.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type RemotePersona struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Location   string   `json:"location"`
	Industry   string   `json:"industry"`
	Expertise  []string `json:"expertise"`
	Experience string   `json:"experience"`
}

// RemoteResult is one entry of the {"results": [...]} response body.
type RemoteResult struct {
	Persona        RemotePersona    `json:"persona"`
	Rating         float64          `json:"rating"`
	Sentiment      domain.Sentiment `json:"sentiment"`
	KeyInsight     string           `json:"keyInsight"`
	RelevanceScore float64          `json:"relevanceScore"`
	Reason         string           `json:"reason"`
}

type RankInput struct {
	Idea        string
	MaxPersonas int
	Attachments []domain.Attachment
}

type selectedExpert struct {
	PersonaID      json.RawMessage `json:"persona_id"`
	RelevanceScore *float64        `json:"relevance_score"`
	Reasoning      string          `json:"reasoning"`
	Rating         float64         `json:"rating"`
	Sentiment      string          `json:"sentiment"`
	KeyInsight     string          `json:"key_insight"`
}

type llmReply struct {
	SelectedExperts []selectedExpert `json:"selected_experts"`
}

type cachedRanking struct {
	Results  []RemoteResult        `json:"results"`
	Metadata *llm.GenerateMetadata `json:"metadata"`
}

type Service struct {
	catalog   *domain.PersonaCatalog
	generator Generator
	prompts   *prompt.PromptBuilder
	cache     Cache
	schema    *gojsonschema.Schema
	logger    *zap.Logger
}

// NewService builds the rating service. generator and cache may be nil; a nil
// generator makes Rank return ErrNotConfigured.
func NewService(catalog *domain.PersonaCatalog, generator Generator, prompts *prompt.PromptBuilder, cache Cache, logger *zap.Logger) (*Service, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile rating response schema: %w", err)
	}
	if prompts == nil {
		prompts = prompt.DefaultPromptBuilder()
	}
	return &Service{
		catalog:   catalog,
		generator: generator,
		prompts:   prompts,
		cache:     cache,
		schema:    schema,
		logger:    logger,
	}, nil
}

func (s *Service) Configured() bool {
	return s.generator != nil
}

// Rank selects up to in.MaxPersonas experts for the idea and rates them.
// Results keep the LLM's order; callers sort.
func (s *Service) Rank(ctx context.Context, in RankInput) ([]RemoteResult, *llm.GenerateMetadata, error) {
	req, err := domain.AnalysisRequest{Idea: in.Idea, MaxPersonas: in.MaxPersonas}.Normalize(s.catalog.Len())
	if err != nil {
		return nil, nil, err
	}
	if len([]rune(req.Idea)) > constants.AIInputLimits.MaxIdeaLength {
		return nil, nil, errors.NewValidationError(
			fmt.Sprintf("idea exceeds %d characters", constants.AIInputLimits.MaxIdeaLength), "idea", len(req.Idea))
	}
	if s.generator == nil {
		return nil, nil, ErrNotConfigured
	}

	timer := prometheus.NewTimer(metrics.RankDuration)
	defer timer.ObserveDuration()

	key := cacheKey(req.Idea, req.MaxPersonas, in.Attachments)
	if cached, ok := s.cached(ctx, key); ok {
		s.logger.Debug("Ranking served from cache", zap.String("key", key))
		return cached.Results, cached.Metadata, nil
	}

	data := prompt.NewRatingPromptData(req.Idea, req.MaxPersonas, s.catalog.GetAllPersonas(), promptAttachments(in.Attachments))
	system, user := s.prompts.BuildRatingPrompts(data, s.logger)

	text, meta, err := s.generator.GenerateText(ctx, user, llm.PresetBalanced, &llm.GenerateOptions{
		SystemPrompt: system,
		JSONMode:     true,
	})
	if err != nil {
		return nil, nil, err
	}

	results, err := s.parseReply(text, req.MaxPersonas)
	if err != nil {
		s.logger.Warn("Unusable LLM ranking reply",
			zap.Error(err),
			zap.String("reply", util.TruncateString(text, 300)),
		)
		return nil, nil, err
	}

	s.store(ctx, key, cachedRanking{Results: results, Metadata: meta})

	s.logger.Info("Ranking completed",
		zap.Int("results", len(results)),
		zap.String("provider", providerName(meta)),
	)
	return results, meta, nil
}

func (s *Service) parseReply(text string, maxPersonas int) ([]RemoteResult, error) {
	raw, err := llm.ExtractJSONObject(text)
	if err != nil {
		return nil, errors.NewParseError("no JSON object in LLM reply", "", err)
	}

	result, err := s.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, errors.NewParseError("failed to validate LLM reply", "", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, errors.NewParseError(fmt.Sprintf("LLM reply does not match schema: %v", errs), "selected_experts", nil)
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, errors.NewParseError("failed to decode LLM reply", "selected_experts", err)
	}

	results := make([]RemoteResult, 0, maxPersonas)
	seen := make(map[string]struct{}, len(reply.SelectedExperts))
	for _, e := range reply.SelectedExperts {
		if len(results) == maxPersonas {
			break
		}
		id := personaID(e.PersonaID)
		p := s.catalog.FindPersonaByID(id)
		if p == nil {
			s.logger.Debug("LLM selected unknown persona", zap.String("persona_id", id))
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		results = append(results, toRemoteResult(p, e))
	}

	if len(results) == 0 {
		return nil, errors.NewParseError("LLM reply selected no known experts", "selected_experts", nil)
	}
	return results, nil
}

func toRemoteResult(p *domain.Persona, e selectedExpert) RemoteResult {
	sentiment, err := domain.ParseSentiment(e.Sentiment)
	if err != nil {
		sentiment = domain.SentimentForRating(e.Rating)
	}
	relevance := constants.AnalysisDefaults.RemoteRelevance
	if e.RelevanceScore != nil {
		relevance = *e.RelevanceScore
	}
	reason := strings.TrimSpace(e.Reasoning)
	if reason == "" {
		reason = constants.AnalysisDefaults.RemoteReason
	}
	insight := strings.TrimSpace(e.KeyInsight)
	if insight == "" {
		insight = constants.RemotePlaceholders.KeyInsight
	}

	expertise := p.Expertise
	if expertise == nil {
		expertise = []string{}
	}
	return RemoteResult{
		Persona: RemotePersona{
			ID:         p.ID,
			Name:       p.Name,
			Title:      p.Title,
			Location:   p.Location,
			Industry:   p.Industry,
			Expertise:  expertise,
			Experience: p.Experience,
		},
		Rating:         e.Rating,
		Sentiment:      sentiment,
		KeyInsight:     insight,
		RelevanceScore: relevance,
		Reason:         reason,
	}
}

// personaID accepts both "ny-1" and bare numbers.
func personaID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

func promptAttachments(attachments []domain.Attachment) []prompt.AttachmentEntry {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]prompt.AttachmentEntry, 0, len(attachments))
	for _, a := range attachments {
		content := a.Content
		if a.IsDataURL {
			content = fmt.Sprintf("[binary file, %s]", a.ContentType)
		} else {
			content = util.TruncateString(util.CollapseWhitespace(content), constants.AIInputLimits.MaxAttachmentPrompt)
		}
		out = append(out, prompt.AttachmentEntry{Name: a.Name, Content: content})
	}
	return out
}

func cacheKey(idea string, maxPersonas int, attachments []domain.Attachment) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d", idea, maxPersonas)
	for _, a := range attachments {
		fmt.Fprintf(h, "|%s|%s", a.Name, a.Content)
	}
	return constants.RedisConfig.KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (s *Service) cached(ctx context.Context, key string) (*cachedRanking, bool) {
	if s.cache == nil {
		return nil, false
	}
	var entry cachedRanking
	found, err := s.cache.Get(ctx, key, &entry)
	if err != nil {
		s.logger.Warn("Ranking cache read failed", zap.Error(err))
		return nil, false
	}
	if !found || len(entry.Results) == 0 {
		return nil, false
	}
	return &entry, true
}

func (s *Service) store(ctx context.Context, key string, entry cachedRanking) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, entry, constants.CacheTTL.Ranking); err != nil {
		s.logger.Warn("Ranking cache write failed", zap.Error(err))
	}
}

func providerName(meta *llm.GenerateMetadata) string {
	if meta == nil {
		return ""
	}
	return meta.Provider
}
