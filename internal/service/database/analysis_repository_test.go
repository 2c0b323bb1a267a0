package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/domain"
)

func newMockRepo(t *testing.T) (*AnalysisRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewAnalysisRepository(NewPostgresServiceFromDB(db, zap.NewNop()), zap.NewNop()), mock
}

func sampleResponse() *domain.AnalysisResponse {
	persona := &domain.Persona{ID: "ny-1", Name: "Sarah Mitchell", Location: "New York, USA"}
	return domain.NewAnalysisResponse("An AI-powered fitness app", []domain.PersonaRating{
		{Persona: persona, Rating: 8.2, Sentiment: domain.SentimentPositive, KeyInsight: "Strong demand"},
	}, domain.StrategyMock)
}

func TestSaveAnalysis(t *testing.T) {
	repo, mock := newMockRepo(t)
	resp := sampleResponse()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analysis_sessions")).
		WithArgs(resp.ID, resp.Idea, "mock", false, 8.2, "positive", sqlmock.AnyArg(), sqlmock.AnyArg(), resp.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), resp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAnalysisPropagatesErrors(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analysis_sessions")).
		WillReturnError(sql.ErrConnDone)

	err := repo.Save(context.Background(), sampleResponse())
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestFindByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	resp := sampleResponse()
	resultsJSON, _ := json.Marshal(resp.Results)
	summaryJSON, _ := json.Marshal(resp.Summary)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM analysis_sessions")).
		WithArgs(resp.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "idea", "strategy", "used_fallback", "results", "summary", "created_at"}).
			AddRow(resp.ID, resp.Idea, "mock", false, resultsJSON, summaryJSON, created))

	got, err := repo.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, resp.Idea, got.Idea)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "ny-1", got.Results[0].Persona.ID)
	assert.Equal(t, resp.Summary, got.Summary)
	assert.Equal(t, created, got.CreatedAt)
}

func TestFindByIDMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM analysis_sessions")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.FindByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListRecent(t *testing.T) {
	repo, mock := newMockRepo(t)
	summaryJSON, _ := json.Marshal(domain.Summarize(nil))
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "idea", "strategy", "used_fallback", "summary", "created_at"}).
			AddRow("a", "idea a", "remote", false, summaryJSON, created).
			AddRow("b", "idea b", "mock", true, summaryJSON, created))

	list, err := repo.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[1].UsedFallback)
	assert.Equal(t, domain.SentimentNeutral, list[0].Summary.OverallSentiment)
}

func TestEnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS analysis_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
