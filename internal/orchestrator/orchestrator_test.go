package orchestrator

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/domain"
	"github.com/kapu/persona-globe-go/internal/engine"
)

func testCatalog(t *testing.T) *domain.PersonaCatalog {
	t.Helper()
	catalog, err := domain.NewPersonaCatalog([]*domain.Persona{
		{ID: "ny-1", Name: "Sarah", Location: "New York, USA", Industry: "Finance", Insights: []string{"Solid unit economics"}},
		{ID: "tk-1", Name: "Kenji", Location: "Tokyo, Japan", Industry: "Robotics"},
		{ID: "mars-1", Name: "Zed", Location: "Olympus Mons, Mars", Industry: "Mining"},
	})
	require.NoError(t, err)
	return catalog
}

// fakeAnalyzer returns a fixed ranking per idea and can block selected ideas.
type fakeAnalyzer struct {
	mu       sync.Mutex
	requests []domain.AnalysisRequest
	block    map[string]chan struct{}
	entered  chan string
	ignore   bool
	err      error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, personas []*domain.Persona, req domain.AnalysisRequest) (*domain.AnalysisResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	release := f.block[req.Idea]
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- req.Idea
	}
	if release != nil {
		if f.ignore {
			<-release
		} else {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	var results []domain.PersonaRating
	for i, p := range personas {
		rating := 9.0 - float64(i)
		results = append(results, domain.PersonaRating{
			Persona:    p,
			Rating:     rating,
			Sentiment:  domain.SentimentForRating(rating),
			KeyInsight: req.Idea + " insight",
		})
	}
	return domain.NewAnalysisResponse(req.Idea, results, domain.StrategyMock), nil
}

func (f *fakeAnalyzer) lastRequest() domain.AnalysisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestSubmitAppliesResult(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	o := New(testCatalog(t), analyzer, Options{MaxPersonas: 3}, zap.NewNop())

	var notified []ViewState
	unsubscribe := o.Subscribe(func(s ViewState) { notified = append(notified, s) })
	defer unsubscribe()

	applied, err := o.Submit(context.Background(), "  Food truck finder  ")
	require.NoError(t, err)
	assert.True(t, applied)

	state := o.State()
	assert.Equal(t, "Food truck finder", state.Idea)
	require.Len(t, state.Results, 3)
	assert.Equal(t, []string{"New York", "Tokyo", "Olympus Mons"}, state.HighlightedLocations)
	require.NotNil(t, state.FocusLocation)
	assert.Equal(t, "New York", state.FocusLocation.Name)
	assert.True(t, state.ResultsPanelOpen)
	assert.False(t, state.Pending)
	assert.Equal(t, 3, analyzer.lastRequest().MaxPersonas)

	require.Len(t, notified, 2)
	assert.True(t, notified[0].Pending)
	assert.False(t, notified[1].Pending)
}

func TestSubmitBlankIdeaIsNoop(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	o := New(testCatalog(t), analyzer, Options{}, zap.NewNop())

	applied, err := o.Submit(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, analyzer.requests)
	assert.Equal(t, uint64(0), o.State().Generation)
}

func TestFocusLocationMissingDegradesGracefully(t *testing.T) {
	catalog, err := domain.NewPersonaCatalog([]*domain.Persona{
		{ID: "mars-1", Name: "Zed", Location: "Olympus Mons, Mars"},
	})
	require.NoError(t, err)
	o := New(catalog, &fakeAnalyzer{}, Options{}, zap.NewNop())

	applied, err := o.Submit(context.Background(), "Space tourism")
	require.NoError(t, err)
	assert.True(t, applied)
	state := o.State()
	assert.Nil(t, state.FocusLocation)
	assert.Equal(t, []string{"Olympus Mons"}, state.HighlightedLocations)
}

func TestSubmitEngineErrorKeepsState(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	o := New(testCatalog(t), analyzer, Options{}, zap.NewNop())
	_, err := o.Submit(context.Background(), "First idea")
	require.NoError(t, err)

	analyzer.err = errors.New("engine exploded")
	applied, err := o.Submit(context.Background(), "Second idea")
	require.Error(t, err)
	assert.False(t, applied)

	state := o.State()
	assert.Equal(t, "First idea", state.Idea)
	assert.Equal(t, "engine exploded", state.LastError)
	assert.False(t, state.Pending)
}

// Idea B submitted while A is still in flight: only B's result is shown.
func TestLastSubmissionWins(t *testing.T) {
	analyzer := &fakeAnalyzer{
		block:   map[string]chan struct{}{"Idea A": make(chan struct{})},
		entered: make(chan string, 2),
	}
	o := New(testCatalog(t), analyzer, Options{}, zap.NewNop())

	type outcome struct {
		applied bool
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		applied, err := o.Submit(context.Background(), "Idea A")
		done <- outcome{applied, err}
	}()
	require.Equal(t, "Idea A", <-analyzer.entered)

	applied, err := o.Submit(context.Background(), "Idea B")
	require.NoError(t, err)
	assert.True(t, applied)
	<-analyzer.entered

	a := <-done
	assert.NoError(t, a.err)
	assert.False(t, a.applied)

	state := o.State()
	assert.Equal(t, "Idea B", state.Idea)
	for _, r := range state.Results {
		assert.Equal(t, "Idea B insight", r.KeyInsight)
	}
}

// A late answer that ignored cancellation is still discarded.
func TestStaleResultDiscardedEvenIfNotCancelled(t *testing.T) {
	release := make(chan struct{})
	analyzer := &fakeAnalyzer{
		block:   map[string]chan struct{}{"Idea A": release},
		entered: make(chan string, 2),
		ignore:  true,
	}
	o := New(testCatalog(t), analyzer, Options{}, zap.NewNop())

	done := make(chan bool, 1)
	go func() {
		applied, _ := o.Submit(context.Background(), "Idea A")
		done <- applied
	}()
	<-analyzer.entered

	_, err := o.Submit(context.Background(), "Idea B")
	require.NoError(t, err)
	<-analyzer.entered
	close(release)

	assert.False(t, <-done)
	assert.Equal(t, "Idea B", o.State().Idea)
}

func TestCancelDiscardsInFlight(t *testing.T) {
	analyzer := &fakeAnalyzer{
		block:   map[string]chan struct{}{"Slow idea": make(chan struct{})},
		entered: make(chan string, 1),
	}
	o := New(testCatalog(t), analyzer, Options{}, zap.NewNop())

	done := make(chan bool, 1)
	go func() {
		applied, _ := o.Submit(context.Background(), "Slow idea")
		done <- applied
	}()
	<-analyzer.entered
	o.Cancel()

	select {
	case applied := <-done:
		assert.False(t, applied)
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not observe cancellation")
	}
	state := o.State()
	assert.Empty(t, state.Idea)
	assert.False(t, state.Pending)
}

func TestSelectPersona(t *testing.T) {
	o := New(testCatalog(t), &fakeAnalyzer{}, Options{}, zap.NewNop())
	assert.False(t, o.SelectPersona("ny-1"))

	_, err := o.Submit(context.Background(), "Idea")
	require.NoError(t, err)

	assert.True(t, o.SelectPersona("tk-1"))
	assert.Equal(t, "tk-1", o.State().SelectedPersonaID)
	assert.False(t, o.SelectPersona("unknown"))
	assert.Equal(t, "tk-1", o.State().SelectedPersonaID)

	o.CloseResults()
	assert.False(t, o.State().ResultsPanelOpen)
}

func TestStateIsACopy(t *testing.T) {
	o := New(testCatalog(t), &fakeAnalyzer{}, Options{}, zap.NewNop())
	_, err := o.Submit(context.Background(), "Idea")
	require.NoError(t, err)

	s := o.State()
	s.HighlightedLocations[0] = "Nowhere"
	s.Results = nil
	assert.Equal(t, "New York", o.State().HighlightedLocations[0])
	assert.Len(t, o.State().Results, 3)
}

// Text and image files are read concurrently and forwarded with the idea.
func TestSubmitWithAttachments(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(notes, []byte("# Market\nBig."), 0o644))
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}

	analyzer := &fakeAnalyzer{}
	o := New(testCatalog(t), analyzer, Options{}, zap.NewNop())
	o.AttachFiles(
		FileFromPath(notes),
		FileFromBytes("logo.png", "image/png", png),
		FileFromBytes("page.html", "text/html; charset=utf-8", []byte("<html><head><style>p{}</style></head><body><p>Hello   <b>world</b></p></body></html>")),
	)
	assert.Len(t, o.State().PendingAttachments, 3)

	applied, err := o.Submit(context.Background(), "Logo marketplace")
	require.NoError(t, err)
	assert.True(t, applied)

	atts := analyzer.lastRequest().Attachments
	require.Len(t, atts, 3)
	assert.Equal(t, "notes.md", atts[0].Name)
	assert.Equal(t, "# Market\nBig.", atts[0].Content)
	assert.False(t, atts[0].IsDataURL)

	assert.True(t, atts[1].IsDataURL)
	assert.True(t, strings.HasPrefix(atts[1].Content, "data:image/png;base64,"))

	assert.Equal(t, "text/html", atts[2].ContentType)
	assert.Equal(t, "Hello world", atts[2].Content)

	assert.Empty(t, o.State().PendingAttachments)
}

func TestAttachmentReadFailureProceedsWithout(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	o := New(testCatalog(t), analyzer, Options{}, zap.NewNop())
	o.AttachFiles(
		FileFromBytes("ok.txt", "text/plain", []byte("fine")),
		FileInput{Name: "broken.txt", Open: func() (io.ReadCloser, error) { return nil, errors.New("disk gone") }},
	)

	applied, err := o.Submit(context.Background(), "Idea")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Empty(t, analyzer.lastRequest().Attachments)
}

func TestReadAttachmentsRejectsOversized(t *testing.T) {
	big := strings.Repeat("a", 5*1024*1024+1)
	_, err := ReadAttachments(context.Background(), []FileInput{FileFromBytes("big.txt", "text/plain", []byte(big))})
	assert.Error(t, err)
}

func TestOrchestratorWithMockEngine(t *testing.T) {
	catalog, err := domain.LoadPersonaCatalog()
	require.NoError(t, err)
	e := engine.New(engine.Config{}, nil, engine.NewSeededRand(11), nil, zap.NewNop())
	o := New(catalog, e, Options{MaxPersonas: 4}, zap.NewNop())

	applied, err := o.Submit(context.Background(), "Neighborhood tool library")
	require.NoError(t, err)
	assert.True(t, applied)
	state := o.State()
	assert.Len(t, state.Results, 4)
	assert.Equal(t, 4, state.Summary.TotalExperts)
	assert.NotNil(t, state.FocusLocation)
}

func TestAttachmentsQueuedDuringSubmitSurvive(t *testing.T) {
	release := make(chan struct{})
	analyzer := &fakeAnalyzer{
		block:   map[string]chan struct{}{"Idea A": release},
		entered: make(chan string, 2),
	}
	o := New(testCatalog(t), analyzer, Options{}, zap.NewNop())
	o.AttachFiles(FileFromBytes("first.md", "text/markdown", []byte("# first")))

	done := make(chan bool, 1)
	go func() {
		applied, _ := o.Submit(context.Background(), "Idea A")
		done <- applied
	}()
	<-analyzer.entered

	o.AttachFiles(FileFromBytes("later.md", "text/markdown", []byte("# later")))
	close(release)
	require.True(t, <-done)

	sent := analyzer.lastRequest().Attachments
	require.Len(t, sent, 1)
	assert.Equal(t, "first.md", sent[0].Name)

	pending := o.State().PendingAttachments
	require.Len(t, pending, 1)
	assert.Equal(t, "later.md", pending[0].Name)

	_, err := o.Submit(context.Background(), "Idea B")
	require.NoError(t, err)
	sent = analyzer.lastRequest().Attachments
	require.Len(t, sent, 1)
	assert.Equal(t, "later.md", sent[0].Name)
	assert.Empty(t, o.State().PendingAttachments)
}

func TestNewWithoutLogger(t *testing.T) {
	o := New(testCatalog(t), &fakeAnalyzer{}, Options{}, nil)
	applied, err := o.Submit(context.Background(), "Idea")
	require.NoError(t, err)
	assert.True(t, applied)
}
