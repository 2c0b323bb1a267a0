package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/client"
	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/domain"
	"github.com/kapu/persona-globe-go/internal/service/llm"
	"github.com/kapu/persona-globe-go/internal/service/rating"
	"github.com/kapu/persona-globe-go/internal/util"
	"github.com/kapu/persona-globe-go/pkg/errors"
)

// Ranker is satisfied by *rating.Service.
type Ranker interface {
	Configured() bool
	Rank(ctx context.Context, in rating.RankInput) ([]rating.RemoteResult, *llm.GenerateMetadata, error)
}

// HealthReporter is satisfied by *llm.ModelManager.
type HealthReporter interface {
	ProviderName() string
	GetCircuitStatus() util.CircuitBreakerStatus
}

// Analyzer is satisfied by *engine.Engine.
type Analyzer interface {
	Analyze(ctx context.Context, personas []*domain.Persona, req domain.AnalysisRequest) (*domain.AnalysisResponse, error)
}

// AnalysisStore is satisfied by *database.AnalysisRepository.
type AnalysisStore interface {
	Save(ctx context.Context, resp *domain.AnalysisResponse) error
	FindByID(ctx context.Context, id string) (*domain.AnalysisResponse, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.AnalysisResponse, error)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type RankRequestBody struct {
	Idea        string                     `json:"idea"`
	MaxPersonas *int                       `json:"max_personas"`
	MaxAgents   *int                       `json:"max_agents"`
	Attachments []client.AttachmentPayload `json:"attachments"`
}

func (b RankRequestBody) maxPersonas() int {
	switch {
	case b.MaxPersonas != nil:
		return *b.MaxPersonas
	case b.MaxAgents != nil:
		return *b.MaxAgents
	}
	return 0
}

type RankResponseBody struct {
	Results []rating.RemoteResult `json:"results"`
}

type AnalyzeRequestBody struct {
	Idea        string                     `json:"idea"`
	MaxPersonas int                        `json:"max_personas"`
	UseRealLLM  *bool                      `json:"use_real_llm"`
	Attachments []client.AttachmentPayload `json:"attachments"`
}

type Handler struct {
	catalog  *domain.PersonaCatalog
	ranker   Ranker
	health   HealthReporter
	analyzer Analyzer
	store    AnalysisStore
	hub      *Hub
	logger   *zap.Logger
}

type HandlerDeps struct {
	Catalog  *domain.PersonaCatalog
	Ranker   Ranker
	Health   HealthReporter
	Analyzer Analyzer
	Store    AnalysisStore
	Hub      *Hub
}

// NewHandler wires the HTTP handlers. Health and Store may be nil.
func NewHandler(deps HandlerDeps, logger *zap.Logger) *Handler {
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(logger)
	}
	return &Handler{
		catalog:  deps.Catalog,
		ranker:   deps.Ranker,
		health:   deps.Health,
		analyzer: deps.Analyzer,
		store:    deps.Store,
		hub:      hub,
		logger:   logger,
	}
}

func (h *Handler) Hub() *Hub {
	return h.hub
}

// Rank handles POST /api/v1/rank and its /research/analyze-idea alias.
func (h *Handler) Rank(c *gin.Context) {
	var body RankRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(body.Idea) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "idea is required"})
		return
	}
	if h.ranker == nil || !h.ranker.Configured() {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no LLM provider configured"})
		return
	}

	results, _, err := h.ranker.Rank(c.Request.Context(), rating.RankInput{
		Idea:        body.Idea,
		MaxPersonas: body.maxPersonas(),
		Attachments: toDomainAttachments(body.Attachments),
	})
	if err != nil {
		status := rankErrorStatus(err)
		h.logger.Warn("Rank request failed", zap.Int("status", status), zap.Error(err))
		c.JSON(status, ErrorResponse{Error: publicMessage(status, err)})
		return
	}

	c.JSON(http.StatusOK, RankResponseBody{Results: results})
}

// Health reports 200 when an LLM provider is configured and its circuit is
// not open.
func (h *Handler) Health(c *gin.Context) {
	if h.health == nil || h.ranker == nil || !h.ranker.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	status := h.health.GetCircuitStatus()
	body := gin.H{
		"status":   "ok",
		"provider": h.health.ProviderName(),
		"circuit":  string(status.State),
	}
	if status.State == util.CircuitStateOpen {
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) ListPersonas(c *gin.Context) {
	personas := h.catalog.GetAllPersonas()
	c.JSON(http.StatusOK, gin.H{"personas": personas, "total": len(personas)})
}

func (h *Handler) GetPersona(c *gin.Context) {
	p := h.catalog.FindPersonaByID(c.Param("id"))
	if p == nil {
		notFound(c, errors.NewNotFoundError("persona", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) PersonasByLocation(c *gin.Context) {
	name := c.Param("name")
	personas := h.catalog.GetPersonasForLocation(name)
	if len(personas) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no personas for location"})
		return
	}
	body := gin.H{"location": name, "personas": personas, "total": len(personas)}
	if loc, ok := domain.FindGlobeLocation(domain.LocationPrefix(name)); ok {
		body["coordinates"] = loc
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) Locations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"locations": domain.GlobeLocations()})
}

// Analyze runs a full analysis server side, stores it and notifies
// websocket subscribers.
func (h *Handler) Analyze(c *gin.Context) {
	var body AnalyzeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}

	resp, err := h.analyzer.Analyze(c.Request.Context(), h.catalog.GetAllPersonas(), domain.AnalysisRequest{
		Idea:        body.Idea,
		MaxPersonas: body.MaxPersonas,
		UseRealLLM:  body.UseRealLLM,
		Attachments: toDomainAttachments(body.Attachments),
	})
	if err != nil {
		status := errors.StatusCode(err)
		c.JSON(status, ErrorResponse{Error: publicMessage(status, err)})
		return
	}

	if h.store != nil {
		if err := h.store.Save(c.Request.Context(), resp); err != nil {
			h.logger.Error("Failed to persist analysis", zap.String("id", resp.ID), zap.Error(err))
		}
	}
	h.hub.Broadcast(client.EventAnalysisComplete, resp)

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetAnalysis(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "analysis storage not configured"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		notFound(c, errors.NewNotFoundError("analysis", c.Param("id")))
		return
	}
	resp, err := h.store.FindByID(c.Request.Context(), id.String())
	if err != nil {
		h.logger.Error("Failed to load analysis", zap.String("id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load analysis"})
		return
	}
	if resp == nil {
		notFound(c, errors.NewNotFoundError("analysis", id.String()))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListAnalyses returns stored analyses newest first, without their results.
func (h *Handler) ListAnalyses(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "analysis storage not configured"})
		return
	}
	limit := constants.AnalysisHistory.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, constants.AnalysisHistory.MaxLimit)
	}

	analyses, err := h.store.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list analyses", zap.Int("limit", limit), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list analyses"})
		return
	}
	if analyses == nil {
		analyses = []*domain.AnalysisResponse{}
	}
	c.JSON(http.StatusOK, gin.H{"analyses": analyses, "total": len(analyses)})
}

func notFound(c *gin.Context, err *errors.AppError) {
	c.JSON(err.StatusCode, ErrorResponse{Error: err.Message})
}

func rankErrorStatus(err error) int {
	if errors.Is(err, llm.ErrCircuitOpen) || errors.Is(err, rating.ErrNotConfigured) {
		return http.StatusServiceUnavailable
	}
	var valErr *errors.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// publicMessage hides upstream details behind a generic text for 5xx.
func publicMessage(status int, err error) string {
	switch {
	case status < 500:
		var valErr *errors.ValidationError
		if errors.As(err, &valErr) {
			return valErr.Message
		}
		return err.Error()
	case status == http.StatusServiceUnavailable:
		return "LLM service unavailable"
	default:
		return "LLM analysis failed"
	}
}

func toDomainAttachments(in []client.AttachmentPayload) []domain.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Attachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			Content:     a.Content,
			IsDataURL:   a.IsDataURL,
		})
	}
	return out
}
