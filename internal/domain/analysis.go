package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/util"
	"github.com/kapu/persona-globe-go/pkg/errors"
)

// Sentiment is the coarse bucket derived from a rating.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentCautious Sentiment = "cautious"
)

func (s Sentiment) String() string {
	return string(s)
}

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentCautious:
		return true
	}
	return false
}

// SentimentForRating applies the one canonical threshold set:
// >= 8 positive, >= 6.5 neutral, otherwise cautious.
func SentimentForRating(rating float64) Sentiment {
	switch {
	case rating >= constants.SentimentThresholds.Positive:
		return SentimentPositive
	case rating >= constants.SentimentThresholds.Neutral:
		return SentimentNeutral
	default:
		return SentimentCautious
	}
}

// ParseSentiment accepts the three labels case-insensitively.
func ParseSentiment(raw string) (Sentiment, error) {
	s := Sentiment(util.Normalize(raw))
	if !s.Valid() {
		return "", fmt.Errorf("unknown sentiment %q", raw)
	}
	return s, nil
}

// Strategy names recorded on a response.
const (
	StrategyMock   = "mock"
	StrategyRemote = "remote"
)

// Attachment is a user file already read into memory. Content holds decoded
// text, or a data URL when IsDataURL is set.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
	IsDataURL   bool   `json:"is_data_url,omitempty"`
}

var ErrEmptyIdea = errors.NewValidationError("idea must not be empty", "idea", "")

type AnalysisRequest struct {
	Idea        string
	MaxPersonas int
	// UseRealLLM overrides the configured strategy when non-nil.
	UseRealLLM  *bool
	Attachments []Attachment
}

// Normalize trims the idea, defaults MaxPersonas and clamps it to
// [1, catalogSize]. An empty catalog leaves MaxPersonas at 0.
func (r AnalysisRequest) Normalize(catalogSize int) (AnalysisRequest, error) {
	r.Idea = strings.TrimSpace(r.Idea)
	if r.Idea == "" {
		return r, ErrEmptyIdea
	}
	if r.MaxPersonas <= 0 {
		r.MaxPersonas = constants.AnalysisDefaults.MaxPersonas
	}
	if catalogSize <= 0 {
		r.MaxPersonas = 0
		return r, nil
	}
	r.MaxPersonas = util.Clamp(r.MaxPersonas, 1, catalogSize)
	return r, nil
}

// PersonaRating is one persona's verdict. Persona normally points into the
// catalog and must not be modified.
type PersonaRating struct {
	Persona          *Persona  `json:"persona"`
	Rating           float64   `json:"rating"`
	Sentiment        Sentiment `json:"sentiment"`
	KeyInsight       string    `json:"keyInsight"`
	RelevanceScore   *float64  `json:"relevanceScore,omitempty"`
	DetailedAnalysis string    `json:"detailedAnalysis,omitempty"`
}

type AnalysisSummary struct {
	AverageRating    float64   `json:"averageRating"`
	OverallSentiment Sentiment `json:"overallSentiment"`
	TopConcerns      []string  `json:"topConcerns"`
	TopOpportunities []string  `json:"topOpportunities"`
	TotalExperts     int       `json:"totalExperts"`
}

type AnalysisResponse struct {
	ID           string          `json:"id"`
	Idea         string          `json:"idea"`
	Results      []PersonaRating `json:"results"`
	Summary      AnalysisSummary `json:"summary"`
	Strategy     string          `json:"strategy"`
	UsedFallback bool            `json:"usedFallback"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// SortByRatingDesc orders results by rating, highest first. Equal ratings
// keep their selection order.
func SortByRatingDesc(results []PersonaRating) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Rating > results[j].Rating
	})
}

// Summarize aggregates results, which are expected to be sorted already.
func Summarize(results []PersonaRating) AnalysisSummary {
	rules := constants.SummaryRules
	summary := AnalysisSummary{
		OverallSentiment: SentimentNeutral,
		TopConcerns:      []string{},
		TopOpportunities: []string{},
		TotalExperts:     len(results),
	}

	if len(results) > 0 {
		var total float64
		positive := 0
		for _, r := range results {
			total += r.Rating
			if r.Sentiment == SentimentPositive {
				positive++
			}
			if r.Rating < rules.ConcernBelow && len(summary.TopConcerns) < rules.MaxItems {
				summary.TopConcerns = append(summary.TopConcerns, r.KeyInsight)
			}
			if r.Rating >= rules.OpportunityAtLeast && len(summary.TopOpportunities) < rules.MaxItems {
				summary.TopOpportunities = append(summary.TopOpportunities, r.KeyInsight)
			}
		}

		summary.AverageRating = util.RoundTo(total/float64(len(results)), rules.RatingDecimalPlaces)

		share := float64(positive) / float64(len(results))
		switch {
		case share >= rules.PositiveShare:
			summary.OverallSentiment = SentimentPositive
		case share >= rules.NeutralShare:
			summary.OverallSentiment = SentimentNeutral
		default:
			summary.OverallSentiment = SentimentCautious
		}
	}

	if len(summary.TopConcerns) == 0 {
		summary.TopConcerns = []string{rules.NoConcerns}
	}
	if len(summary.TopOpportunities) == 0 {
		summary.TopOpportunities = []string{rules.NoOpportunities}
	}
	return summary
}

// NewAnalysisResponse sorts results in place, summarizes them and stamps a
// fresh id.
func NewAnalysisResponse(idea string, results []PersonaRating, strategy string) *AnalysisResponse {
	if results == nil {
		results = []PersonaRating{}
	}
	SortByRatingDesc(results)
	return &AnalysisResponse{
		ID:        uuid.NewString(),
		Idea:      idea,
		Results:   results,
		Summary:   Summarize(results),
		Strategy:  strategy,
		CreatedAt: time.Now().UTC(),
	}
}

// HighlightedLocations returns the distinct location prefixes of the rated
// personas in result order.
func (r *AnalysisResponse) HighlightedLocations() []string {
	seen := make(map[string]struct{}, len(r.Results))
	out := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Persona == nil {
			continue
		}
		prefix := res.Persona.LocationPrefix()
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		out = append(out, prefix)
	}
	return out
}
