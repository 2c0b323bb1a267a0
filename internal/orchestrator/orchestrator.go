// Package orchestrator owns the "current analysis" view state. It is the
// only writer of that state; everyone else reads snapshots.
package orchestrator

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/domain"
)

// Analyzer is satisfied by *engine.Engine.
type Analyzer interface {
	Analyze(ctx context.Context, personas []*domain.Persona, req domain.AnalysisRequest) (*domain.AnalysisResponse, error)
}

type ViewState struct {
	Idea                 string
	Results              []domain.PersonaRating
	Summary              domain.AnalysisSummary
	Strategy             string
	UsedFallback         bool
	HighlightedLocations []string
	FocusLocation        *domain.GlobeLocation
	ResultsPanelOpen     bool
	SelectedPersonaID    string
	PendingAttachments   []FileInput
	Generation           uint64
	Pending              bool
	LastError            string
}

func (s ViewState) clone() ViewState {
	out := s
	out.Results = append([]domain.PersonaRating(nil), s.Results...)
	out.HighlightedLocations = append([]string(nil), s.HighlightedLocations...)
	out.PendingAttachments = append([]FileInput(nil), s.PendingAttachments...)
	out.Summary.TopConcerns = append([]string(nil), s.Summary.TopConcerns...)
	out.Summary.TopOpportunities = append([]string(nil), s.Summary.TopOpportunities...)
	if s.FocusLocation != nil {
		loc := *s.FocusLocation
		out.FocusLocation = &loc
	}
	return out
}

type StateCallback func(state ViewState)

type callbackEntry struct {
	id       int
	callback StateCallback
}

type Options struct {
	// MaxPersonas is forwarded with every submission; 0 lets the engine decide.
	MaxPersonas int
	UseRealLLM  *bool
}

type Orchestrator struct {
	catalog  *domain.PersonaCatalog
	analyzer Analyzer
	opts     Options
	logger   *zap.Logger

	mu         sync.RWMutex
	state      ViewState
	generation uint64
	cancel     context.CancelFunc

	callbacksMu    sync.RWMutex
	callbacks      []callbackEntry
	nextCallbackID int
}

func New(catalog *domain.PersonaCatalog, analyzer Analyzer, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		catalog:        catalog,
		analyzer:       analyzer,
		opts:           opts,
		logger:         logger,
		nextCallbackID: 1,
	}
}

// State returns a copy of the current view state.
func (o *Orchestrator) State() ViewState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.clone()
}

// AttachFiles queues files for the next submission.
func (o *Orchestrator) AttachFiles(files ...FileInput) {
	if len(files) == 0 {
		return
	}
	o.update(func(s *ViewState) {
		s.PendingAttachments = append(s.PendingAttachments, files...)
	})
}

func (o *Orchestrator) ClearAttachments() {
	o.update(func(s *ViewState) {
		s.PendingAttachments = nil
	})
}

// Submit analyzes idea and applies the result if no newer submission or
// Cancel happened meanwhile. It reports whether the result was applied.
// A blank idea is ignored.
func (o *Orchestrator) Submit(ctx context.Context, idea string) (bool, error) {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return false, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.generation++
	gen := o.generation
	o.cancel = cancel
	files := append([]FileInput(nil), o.state.PendingAttachments...)
	o.state.Generation = gen
	o.state.Pending = true
	o.state.LastError = ""
	snapshot := o.state.clone()
	o.mu.Unlock()
	o.notify(snapshot)

	attachments, err := ReadAttachments(runCtx, files)
	if err != nil {
		o.logger.Warn("Failed to read attachments, continuing without them",
			zap.Int("files", len(files)),
			zap.Error(err),
		)
		attachments = nil
	}

	resp, err := o.analyzer.Analyze(runCtx, o.catalog.GetAllPersonas(), domain.AnalysisRequest{
		Idea:        idea,
		MaxPersonas: o.opts.MaxPersonas,
		UseRealLLM:  o.opts.UseRealLLM,
		Attachments: attachments,
	})

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		o.logger.Debug("Discarding stale analysis", zap.Uint64("generation", gen))
		return false, nil
	}
	o.cancel = nil
	o.state.Pending = false

	if err != nil {
		o.state.LastError = err.Error()
		snapshot = o.state.clone()
		o.mu.Unlock()
		o.logger.Error("Analysis failed", zap.String("idea", idea), zap.Error(err))
		o.notify(snapshot)
		return false, err
	}

	o.applyLocked(resp, len(files))
	snapshot = o.state.clone()
	o.mu.Unlock()

	o.logger.Info("Analysis applied",
		zap.Uint64("generation", gen),
		zap.String("strategy", resp.Strategy),
		zap.Bool("used_fallback", resp.UsedFallback),
		zap.Int("results", len(resp.Results)),
	)
	o.notify(snapshot)
	return true, nil
}

// applyLocked records resp and drops the consumed attachments from the front
// of the queue. Files attached while the submission was running stay queued.
func (o *Orchestrator) applyLocked(resp *domain.AnalysisResponse, consumed int) {
	o.state.Idea = resp.Idea
	o.state.Results = resp.Results
	o.state.Summary = resp.Summary
	o.state.Strategy = resp.Strategy
	o.state.UsedFallback = resp.UsedFallback
	o.state.HighlightedLocations = resp.HighlightedLocations()
	o.state.FocusLocation = nil
	if len(resp.Results) > 0 && resp.Results[0].Persona != nil {
		prefix := resp.Results[0].Persona.LocationPrefix()
		if loc, ok := domain.FindGlobeLocation(prefix); ok {
			o.state.FocusLocation = &loc
		} else {
			o.logger.Debug("No globe coordinates for top result", zap.String("location", prefix))
		}
	}
	o.state.ResultsPanelOpen = true
	o.state.SelectedPersonaID = ""
	consumed = min(consumed, len(o.state.PendingAttachments))
	if rest := o.state.PendingAttachments[consumed:]; len(rest) > 0 {
		o.state.PendingAttachments = append([]FileInput(nil), rest...)
	} else {
		o.state.PendingAttachments = nil
	}
}

// Cancel abandons any in-flight submission, e.g. when the user navigates
// away. A result arriving later is discarded.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.generation++
	o.state.Generation = o.generation
	o.state.Pending = false
	snapshot := o.state.clone()
	o.mu.Unlock()
	o.notify(snapshot)
}

// SelectPersona marks a rated persona as selected. Ids not in the current
// results are ignored.
func (o *Orchestrator) SelectPersona(id string) bool {
	o.mu.Lock()
	found := false
	for _, r := range o.state.Results {
		if r.Persona != nil && r.Persona.ID == id {
			found = true
			break
		}
	}
	if !found {
		o.mu.Unlock()
		return false
	}
	o.state.SelectedPersonaID = id
	snapshot := o.state.clone()
	o.mu.Unlock()
	o.notify(snapshot)
	return true
}

func (o *Orchestrator) CloseResults() {
	o.update(func(s *ViewState) {
		s.ResultsPanelOpen = false
		s.SelectedPersonaID = ""
	})
}

// Subscribe registers fn for state changes and returns its unsubscribe func.
func (o *Orchestrator) Subscribe(fn StateCallback) func() {
	o.callbacksMu.Lock()
	id := o.nextCallbackID
	o.nextCallbackID++
	o.callbacks = append(o.callbacks, callbackEntry{id: id, callback: fn})
	o.callbacksMu.Unlock()

	return func() {
		o.callbacksMu.Lock()
		defer o.callbacksMu.Unlock()
		for i, entry := range o.callbacks {
			if entry.id == id {
				o.callbacks = append(o.callbacks[:i], o.callbacks[i+1:]...)
				break
			}
		}
	}
}

func (o *Orchestrator) update(fn func(s *ViewState)) {
	o.mu.Lock()
	fn(&o.state)
	snapshot := o.state.clone()
	o.mu.Unlock()
	o.notify(snapshot)
}

func (o *Orchestrator) notify(state ViewState) {
	o.callbacksMu.RLock()
	callbacks := make([]callbackEntry, len(o.callbacks))
	copy(callbacks, o.callbacks)
	o.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(state)
	}
}
