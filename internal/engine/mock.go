package engine

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/domain"
)

// MockStrategy fabricates plausible ratings locally. It is safe for
// concurrent use; the shared rng is guarded by mu.
type MockStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockStrategy(rng *rand.Rand) *MockStrategy {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &MockStrategy{rng: rng}
}

// NewSeededRand returns a deterministic source for tests and reproducible runs.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Rate picks n distinct personas uniformly at random and rates each one.
// Results are in selection order; the caller sorts them.
func (m *MockStrategy) Rate(personas []*domain.Persona, n int) []domain.PersonaRating {
	if n > len(personas) {
		n = len(personas)
	}
	if n <= 0 {
		return []domain.PersonaRating{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Unweighted for now; relevance to the idea plays no part in selection.
	pool := make([]*domain.Persona, len(personas))
	copy(pool, personas)
	for i := len(pool) - 1; i > 0; i-- {
		j := m.rng.IntN(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}

	span := constants.AnalysisDefaults.MockRatingMax - constants.AnalysisDefaults.MockRatingMin
	results := make([]domain.PersonaRating, 0, n)
	for _, p := range pool[:n] {
		rating := constants.AnalysisDefaults.MockRatingMin + m.rng.Float64()*span
		relevance := m.rng.Float64()
		results = append(results, domain.PersonaRating{
			Persona:        p,
			Rating:         rating,
			Sentiment:      domain.SentimentForRating(rating),
			KeyInsight:     m.pickInsight(p),
			RelevanceScore: &relevance,
		})
	}
	return results
}

func (m *MockStrategy) pickInsight(p *domain.Persona) string {
	if len(p.Insights) > 0 {
		return p.Insights[m.rng.IntN(len(p.Insights))]
	}
	return fmt.Sprintf("%s sees potential in this idea from a %s perspective", p.Name, p.Industry)
}
