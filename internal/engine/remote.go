package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/domain"
	"github.com/kapu/persona-globe-go/pkg/errors"
)

type remotePersona struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Location   string   `json:"location"`
	Industry   string   `json:"industry"`
	Expertise  []string `json:"expertise"`
	Experience string   `json:"experience"`
}

type remoteResult struct {
	Persona        *remotePersona `json:"persona"`
	Rating         *float64       `json:"rating"`
	Sentiment      string         `json:"sentiment"`
	KeyInsight     string         `json:"keyInsight"`
	RelevanceScore *float64       `json:"relevanceScore"`
	Reason         string         `json:"reason"`
}

// ParseRemoteRating turns one item of a rank response into a PersonaRating,
// or returns a *errors.ParseError naming the offending field. Personas whose
// id is in index are resolved to the catalog entry; others are rebuilt from
// the payload with placeholder display fields.
func ParseRemoteRating(raw json.RawMessage, index map[string]*domain.Persona) (domain.PersonaRating, error) {
	var item remoteResult
	if err := json.Unmarshal(raw, &item); err != nil {
		return domain.PersonaRating{}, errors.NewParseError("malformed remote result", "", err)
	}

	if item.Persona == nil {
		return domain.PersonaRating{}, errors.NewParseError("remote result has no persona", "persona", nil)
	}
	id := strings.TrimSpace(item.Persona.ID)
	if id == "" {
		return domain.PersonaRating{}, errors.NewParseError("remote persona has no id", "persona.id", nil)
	}

	if item.Rating == nil {
		return domain.PersonaRating{}, errors.NewParseError("remote result has no rating", "rating", nil)
	}
	rating := *item.Rating
	if math.IsNaN(rating) || rating < 0 || rating > 10 {
		return domain.PersonaRating{}, errors.NewParseError(fmt.Sprintf("rating %v outside 0-10", rating), "rating", nil)
	}

	sentiment := domain.SentimentForRating(rating)
	if strings.TrimSpace(item.Sentiment) != "" {
		parsed, err := domain.ParseSentiment(item.Sentiment)
		if err != nil {
			return domain.PersonaRating{}, errors.NewParseError("invalid sentiment", "sentiment", err)
		}
		sentiment = parsed
	}

	var relevance *float64
	if item.RelevanceScore != nil {
		score := *item.RelevanceScore
		if math.IsNaN(score) || score < 0 || score > 1 {
			return domain.PersonaRating{}, errors.NewParseError(fmt.Sprintf("relevance score %v outside 0-1", score), "relevanceScore", nil)
		}
		relevance = &score
	}

	keyInsight := strings.TrimSpace(item.KeyInsight)
	if keyInsight == "" {
		keyInsight = constants.RemotePlaceholders.KeyInsight
	}

	persona, ok := index[id]
	if !ok {
		persona = item.Persona.toDomain(id)
	}

	return domain.PersonaRating{
		Persona:          persona,
		Rating:           rating,
		Sentiment:        sentiment,
		KeyInsight:       keyInsight,
		RelevanceScore:   relevance,
		DetailedAnalysis: strings.TrimSpace(item.Reason),
	}, nil
}

func (p *remotePersona) toDomain(id string) *domain.Persona {
	ph := constants.RemotePlaceholders
	expertise := p.Expertise
	if expertise == nil {
		expertise = []string{}
	}
	return &domain.Persona{
		ID:         id,
		Name:       orDefault(p.Name, ph.Name),
		Title:      orDefault(p.Title, ph.Title),
		Location:   orDefault(p.Location, ph.Location),
		Industry:   orDefault(p.Industry, ph.Industry),
		Expertise:  expertise,
		Experience: orDefault(p.Experience, ph.Experience),
	}
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
