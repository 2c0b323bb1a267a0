package domain

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPersonaCatalog(t *testing.T) {
	catalog, err := LoadPersonaCatalog()
	require.NoError(t, err)
	assert.Equal(t, 16, catalog.Len())

	seen := map[string]bool{}
	for _, p := range catalog.GetAllPersonas() {
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
		assert.NotEmpty(t, p.Insights, "persona %s has no insights", p.ID)
	}
}

func TestGetAllPersonasIsIdempotent(t *testing.T) {
	catalog, err := LoadPersonaCatalog()
	require.NoError(t, err)

	first := catalog.GetAllPersonas()
	second := catalog.GetAllPersonas()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	first[0] = nil
	assert.NotNil(t, catalog.GetAllPersonas()[0], "callers must not be able to mutate the catalog order")
}

func TestGetPersonasForLocation(t *testing.T) {
	catalog, err := LoadPersonaCatalog()
	require.NoError(t, err)

	ny := catalog.GetPersonasForLocation("New York")
	require.Len(t, ny, 2)
	for _, p := range ny {
		assert.True(t, strings.HasPrefix(p.Location, "New York"))
	}

	count := 0
	for _, p := range catalog.GetAllPersonas() {
		if strings.HasPrefix(p.Location, "New York") {
			count++
		}
	}
	assert.Equal(t, count, len(ny))

	assert.Empty(t, catalog.GetPersonasForLocation("new york"))
	none := catalog.GetPersonasForLocation("Atlantis")
	assert.NotNil(t, none)
	assert.Empty(t, none)

	assert.Len(t, catalog.GetPersonasForLocation("Singapore"), 1)
}

func TestEveryPersonaReachableOnGlobe(t *testing.T) {
	catalog, err := LoadPersonaCatalog()
	require.NoError(t, err)

	assert.Empty(t, catalog.UnreachablePersonas(GlobeLocations()))

	onlyTokyo := []GlobeLocation{{Name: "Tokyo"}}
	assert.Len(t, catalog.UnreachablePersonas(onlyTokyo), catalog.Len()-1)
}

func TestNewPersonaCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewPersonaCatalog([]*Persona{{ID: "a"}, {ID: "a"}})
	require.Error(t, err)

	_, err = NewPersonaCatalog([]*Persona{{ID: " "}})
	require.Error(t, err)
}

func TestLocationPrefix(t *testing.T) {
	assert.Equal(t, "New York", LocationPrefix("New York, USA"))
	assert.Equal(t, "Hong Kong", LocationPrefix("Hong Kong"))
	assert.Equal(t, "", LocationPrefix(""))
	assert.Equal(t, "Paris", LocationPrefix(" Paris , France, EU"))
}

func TestFindGlobeLocation(t *testing.T) {
	loc, ok := FindGlobeLocation("Tokyo")
	require.True(t, ok)
	assert.InDelta(t, 35.68, loc.Lat, 0.01)

	_, ok = FindGlobeLocation("Atlantis")
	assert.False(t, ok)
}

func TestSentimentForRating(t *testing.T) {
	assert.Equal(t, SentimentPositive, SentimentForRating(8))
	assert.Equal(t, SentimentPositive, SentimentForRating(9.5))
	assert.Equal(t, SentimentNeutral, SentimentForRating(7.99))
	assert.Equal(t, SentimentNeutral, SentimentForRating(6.5))
	assert.Equal(t, SentimentCautious, SentimentForRating(6.49))
	assert.Equal(t, SentimentCautious, SentimentForRating(0))
}

func TestParseSentiment(t *testing.T) {
	s, err := ParseSentiment(" Positive ")
	require.NoError(t, err)
	assert.Equal(t, SentimentPositive, s)

	_, err = ParseSentiment("ecstatic")
	assert.Error(t, err)
}

func TestNormalizeRequest(t *testing.T) {
	_, err := AnalysisRequest{Idea: "   "}.Normalize(16)
	assert.ErrorIs(t, err, ErrEmptyIdea)

	req, err := AnalysisRequest{Idea: "  idea "}.Normalize(16)
	require.NoError(t, err)
	assert.Equal(t, "idea", req.Idea)
	assert.Equal(t, 5, req.MaxPersonas)

	req, err = AnalysisRequest{Idea: "idea", MaxPersonas: 40}.Normalize(16)
	require.NoError(t, err)
	assert.Equal(t, 16, req.MaxPersonas)

	req, err = AnalysisRequest{Idea: "idea", MaxPersonas: 3}.Normalize(0)
	require.NoError(t, err)
	assert.Equal(t, 0, req.MaxPersonas)
}

func rating(id string, r float64, insight string) PersonaRating {
	return PersonaRating{
		Persona:    &Persona{ID: id, Location: "Tokyo, Japan"},
		Rating:     r,
		Sentiment:  SentimentForRating(r),
		KeyInsight: insight,
	}
}

func TestSortByRatingDescIsStable(t *testing.T) {
	results := []PersonaRating{
		rating("a", 7, ""),
		rating("b", 9, ""),
		rating("c", 7, ""),
		rating("d", 8, ""),
	}
	SortByRatingDesc(results)

	ids := []string{}
	for _, r := range results {
		ids = append(ids, r.Persona.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
}

func TestSummarize(t *testing.T) {
	results := []PersonaRating{
		rating("a", 9.1, "strong market"),
		rating("b", 8.4, "great timing"),
		rating("c", 8.0, "solid team fit"),
		rating("d", 7.9, "fine"),
		rating("e", 6.0, "regulatory risk"),
	}

	s := Summarize(results)
	assert.InDelta(t, 7.9, s.AverageRating, 1e-9)
	assert.Equal(t, SentimentPositive, s.OverallSentiment)
	assert.Equal(t, []string{"regulatory risk"}, s.TopConcerns)
	assert.Equal(t, []string{"strong market", "great timing", "solid team fit"}, s.TopOpportunities)
	assert.Equal(t, 5, s.TotalExperts)
}

func TestSummarizeSentimentShares(t *testing.T) {
	s := Summarize([]PersonaRating{rating("a", 9, "x"), rating("b", 7, "y"), rating("c", 7, "z")})
	assert.Equal(t, SentimentNeutral, s.OverallSentiment)

	s = Summarize([]PersonaRating{rating("a", 6, "x"), rating("b", 7, "y"), rating("c", 7, "z"), rating("d", 9, "w")})
	assert.Equal(t, SentimentCautious, s.OverallSentiment)
	assert.Equal(t, []string{"x"}, s.TopConcerns)
	assert.Equal(t, []string{"w"}, s.TopOpportunities)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0.0, s.AverageRating)
	assert.False(t, math.IsNaN(s.AverageRating))
	assert.Equal(t, SentimentNeutral, s.OverallSentiment)
	assert.Equal(t, []string{"No major concerns identified"}, s.TopConcerns)
	assert.Equal(t, []string{"No standout opportunities identified"}, s.TopOpportunities)
	assert.Equal(t, 0, s.TotalExperts)
}

func TestNewAnalysisResponse(t *testing.T) {
	resp := NewAnalysisResponse("idea", []PersonaRating{rating("a", 6, "x"), rating("b", 9, "y")}, StrategyMock)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "b", resp.Results[0].Persona.ID)
	assert.Equal(t, StrategyMock, resp.Strategy)
	assert.False(t, resp.CreatedAt.IsZero())
	assert.Equal(t, []string{"Tokyo"}, resp.HighlightedLocations())

	empty := NewAnalysisResponse("idea", nil, StrategyMock)
	assert.NotNil(t, empty.Results)
	assert.Empty(t, empty.HighlightedLocations())
}
