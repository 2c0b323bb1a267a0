package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/domain"
)

const analysisSchema = `
CREATE TABLE IF NOT EXISTS analysis_sessions (
	id                UUID PRIMARY KEY,
	idea              TEXT NOT NULL,
	strategy          VARCHAR(16) NOT NULL,
	used_fallback     BOOLEAN NOT NULL DEFAULT FALSE,
	average_rating    NUMERIC(3,1) NOT NULL,
	overall_sentiment VARCHAR(16) NOT NULL,
	results           JSONB NOT NULL,
	summary           JSONB NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_analysis_sessions_created_at ON analysis_sessions (created_at DESC);
`

// AnalysisRepository persists finished analyses.
type AnalysisRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewAnalysisRepository(postgres *PostgresService, logger *zap.Logger) *AnalysisRepository {
	return &AnalysisRepository{
		db:     postgres.GetDB(),
		logger: logger,
	}
}

// EnsureSchema creates the analysis tables if they are missing.
func (r *AnalysisRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, analysisSchema); err != nil {
		return fmt.Errorf("failed to create analysis schema: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) Save(ctx context.Context, resp *domain.AnalysisResponse) error {
	resultsJSON, err := json.Marshal(resp.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	summaryJSON, err := json.Marshal(resp.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	query := `
		INSERT INTO analysis_sessions
			(id, idea, strategy, used_fallback, average_rating, overall_sentiment, results, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, query,
		resp.ID,
		resp.Idea,
		resp.Strategy,
		resp.UsedFallback,
		resp.Summary.AverageRating,
		string(resp.Summary.OverallSentiment),
		resultsJSON,
		summaryJSON,
		resp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis %s: %w", resp.ID, err)
	}

	r.logger.Debug("Analysis saved",
		zap.String("id", resp.ID),
		zap.Int("results", len(resp.Results)),
	)
	return nil
}

// FindByID returns nil, nil when no analysis has the id.
func (r *AnalysisRepository) FindByID(ctx context.Context, id string) (*domain.AnalysisResponse, error) {
	query := `
		SELECT id, idea, strategy, used_fallback, results, summary, created_at
		FROM analysis_sessions
		WHERE id = $1
		LIMIT 1
	`

	var (
		resp        domain.AnalysisResponse
		resultsJSON []byte
		summaryJSON []byte
		createdAt   time.Time
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&resp.ID, &resp.Idea, &resp.Strategy, &resp.UsedFallback,
		&resultsJSON, &summaryJSON, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis %s: %w", id, err)
	}

	if err := json.Unmarshal(resultsJSON, &resp.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results of analysis %s: %w", id, err)
	}
	if err := json.Unmarshal(summaryJSON, &resp.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary of analysis %s: %w", id, err)
	}
	resp.CreatedAt = createdAt.UTC()

	return &resp, nil
}

// ListRecent returns the newest analyses first, without their results.
func (r *AnalysisRepository) ListRecent(ctx context.Context, limit int) ([]*domain.AnalysisResponse, error) {
	if limit <= 0 {
		limit = constants.AnalysisHistory.DefaultLimit
	}

	query := `
		SELECT id, idea, strategy, used_fallback, summary, created_at
		FROM analysis_sessions
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var out []*domain.AnalysisResponse
	for rows.Next() {
		var (
			resp        domain.AnalysisResponse
			summaryJSON []byte
		)
		if err := rows.Scan(&resp.ID, &resp.Idea, &resp.Strategy, &resp.UsedFallback, &summaryJSON, &resp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}
		if err := json.Unmarshal(summaryJSON, &resp.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary of analysis %s: %w", resp.ID, err)
		}
		resp.Results = []domain.PersonaRating{}
		out = append(out, &resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}
	return out, nil
}
