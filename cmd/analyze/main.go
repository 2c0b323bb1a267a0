package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/client"
	"github.com/kapu/persona-globe-go/internal/config"
	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/domain"
	"github.com/kapu/persona-globe-go/internal/engine"
	"github.com/kapu/persona-globe-go/internal/orchestrator"
	"github.com/kapu/persona-globe-go/internal/util"
)

type attachFlags []string

func (a *attachFlags) String() string { return strings.Join(*a, ",") }

func (a *attachFlags) Set(v string) error {
	*a = append(*a, v)
	return nil
}

var (
	idea     = flag.String("idea", "", "Idea to analyze (required)")
	maxCount = flag.Int("max", 0, "Maximum number of personas to rate (0 uses ANALYSIS_DEFAULT_MAX_PERSONAS)")
	useReal  = flag.Bool("real", false, "Use the remote rating service instead of mock ratings")
	apiBase  = flag.String("api", "", "Rating service base URL (defaults to ANALYSIS_API_BASE)")
	seed     = flag.Uint64("seed", 0, "Seed for reproducible mock ratings (0 is random)")
	asJSON   = flag.Bool("json", false, "Print the full analysis as JSON")
	watch    = flag.Bool("watch", false, "Stay connected and print analyses published by the server")
	verbose  = flag.Bool("verbose", false, "Verbose output")
	attach   attachFlags
)

func main() {
	flag.Var(&attach, "attach", "File to attach (repeatable)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := util.NewLogger(level, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	base := cfg.Analysis.APIBase
	if *apiBase != "" {
		base = *apiBase
	}

	if *watch {
		if err := watchEvents(ctx, base, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if strings.TrimSpace(*idea) == "" {
		fmt.Fprintln(os.Stderr, "-idea is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(ctx, cfg, base, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, base string, logger *zap.Logger) error {
	catalog, err := domain.LoadPersonaCatalog()
	if err != nil {
		return err
	}

	remote := client.NewClient(base, cfg.Analysis.Timeout, cfg.Analysis.RetryCount, logger)
	if *useReal && !remote.Health(ctx) {
		logger.Warn("Rating service is not healthy, mock ratings will be used on failure",
			zap.String("base_url", remote.BaseURL()))
	}

	var rng *rand.Rand
	if *seed != 0 {
		rng = engine.NewSeededRand(*seed)
	}
	eng := engine.New(engine.Config{
		UseRealLLM:         cfg.Analysis.UseRealLLM || *useReal,
		DefaultMaxPersonas: cfg.Analysis.DefaultMaxPersonas,
	}, remote, rng, nil, logger)

	orch := orchestrator.New(catalog, eng, orchestrator.Options{MaxPersonas: *maxCount}, logger)
	for _, path := range attach {
		orch.AttachFiles(orchestrator.FileFromPath(path))
	}

	if _, err := orch.Submit(ctx, *idea); err != nil {
		return err
	}
	state := orch.State()

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Idea         string                 `json:"idea"`
			Strategy     string                 `json:"strategy"`
			UsedFallback bool                   `json:"usedFallback"`
			Results      []domain.PersonaRating `json:"results"`
			Summary      domain.AnalysisSummary `json:"summary"`
			Highlighted  []string               `json:"highlightedLocations"`
		}{state.Idea, state.Strategy, state.UsedFallback, state.Results, state.Summary, state.HighlightedLocations})
	}

	printState(state)
	return nil
}

func printState(state orchestrator.ViewState) {
	fmt.Printf("Idea: %s\n", state.Idea)
	strategy := state.Strategy
	if state.UsedFallback {
		strategy += " (remote unavailable)"
	}
	fmt.Printf("Strategy: %s\n", strategy)
	if state.FocusLocation != nil {
		fmt.Printf("Focus: %s (%.4f, %.4f)\n", state.FocusLocation.Name, state.FocusLocation.Lat, state.FocusLocation.Lng)
	}
	fmt.Println()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RATING\tSENTIMENT\tPERSONA\tLOCATION\tKEY INSIGHT")
	for _, r := range state.Results {
		name, location := "?", "?"
		if r.Persona != nil {
			name, location = r.Persona.Name, r.Persona.Location
		}
		fmt.Fprintf(tw, "%.1f\t%s\t%s\t%s\t%s\n", r.Rating, r.Sentiment, name, location, util.TruncateString(r.KeyInsight, 80))
	}
	_ = tw.Flush()

	s := state.Summary
	fmt.Printf("\nAverage %.1f across %d experts, overall %s\n", s.AverageRating, s.TotalExperts, s.OverallSentiment)
	fmt.Printf("Opportunities: %s\n", strings.Join(s.TopOpportunities, "; "))
	fmt.Printf("Concerns: %s\n", strings.Join(s.TopConcerns, "; "))
}

func watchEvents(ctx context.Context, base string, logger *zap.Logger) error {
	stream := client.NewEventStream(client.WebSocketURL(base),
		constants.WebSocketConfig.MaxReconnectAttempts,
		constants.WebSocketConfig.ReconnectDelay,
		logger)
	defer stream.Disconnect()

	unsubscribe := stream.OnEvent(func(ev *client.Event) {
		if ev.Type != client.EventAnalysisComplete {
			return
		}
		var resp domain.AnalysisResponse
		if err := json.Unmarshal(ev.Data, &resp); err != nil {
			logger.Warn("Malformed analysis event", zap.Error(err))
			return
		}
		fmt.Printf("[%s] %q avg %.1f %s via %s\n", resp.CreatedAt.Format("15:04:05"), resp.Idea,
			resp.Summary.AverageRating, resp.Summary.OverallSentiment, resp.Strategy)
	})
	defer unsubscribe()

	unsubscribeState := stream.OnStateChange(func(state client.WebSocketState) {
		fmt.Fprintf(os.Stderr, "Connection %s\n", strings.ToLower(state.String()))
	})
	defer unsubscribeState()

	if err := stream.Connect(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Watching analyses, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}
