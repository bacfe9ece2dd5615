package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/coalesce"
	"github.com/zen-systems/switchboard/pkg/collab"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/gate"
	"github.com/zen-systems/switchboard/pkg/intent"
	"github.com/zen-systems/switchboard/pkg/ladder"
	"github.com/zen-systems/switchboard/pkg/perf"
	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/router"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "switchboard",
		Short: "Intelligent LLM routing with fallback ladders and quality gates",
		Long: `Switchboard routes each request to the most suitable LLM by scoring
	the registry against the classified intent, coalesces identical
	concurrent requests, and walks a fallback ladder when providers fail.
	The collab command runs the full six-stage multi-model pipeline.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to routing config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(collabCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(chainsCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// deps is the composition root: every collaborator is constructed here
// and injected explicitly.
type deps struct {
	cfg      *config.Config
	logger   *zap.Logger
	adapters adapter.Set
	registry *registry.Registry
	router   *router.Router
	ladder   *ladder.Ladder
	monitor  *perf.Monitor
	group    *coalesce.Group[*ladder.AttemptResult]
}

func buildDeps() (*deps, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	adapters, err := adapter.NewSet(cfg, logger)
	if err != nil {
		return nil, err
	}

	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	classifier := intentClassifier(adapters, cfg, logger)
	r := router.New(reg, classifier, cfg.Routing, rng, logger)
	l := ladder.New(adapters, ladder.NewRegistryResolver(reg), cfg.Routing.Ladder, rng, logger)
	monitor := perf.NewMonitor(cfg.Routing.Perf, logger)
	group := coalesce.NewGroup[*ladder.AttemptResult](cfg.Routing.Coalesce, logger)

	return &deps{
		cfg:      cfg,
		logger:   logger,
		adapters: adapters,
		registry: reg,
		router:   r,
		ladder:   l,
		monitor:  monitor,
		group:    group,
	}, nil
}

func askCmd() *cobra.Command {
	var threadID string
	var showStats bool

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Route a prompt to the best model and answer it",
		Long: `Classifies the prompt, scores the model registry against the intent,
	and executes the request through the fallback ladder. Identical
	concurrent requests within the same thread share one upstream call.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := args[0]
			ctx := cmd.Context()

			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer func() { _ = d.logger.Sync() }()

			decision, err := d.router.Route(ctx, router.Request{
				Message:            prompt,
				AvailableProviders: d.adapters.AvailableProviders(),
				Rewards:            d.monitor.Rewards(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Routing to %s/%s (%s)\n",
				decision.Model.Provider, decision.Model.UpstreamName, decision.Reason)

			chain := askChain(d, decision)
			req := adapter.Request{
				Messages: []adapter.Message{{Role: "user", Content: prompt}},
			}

			fp := coalesce.Fingerprint(decision.Model.Provider, decision.Model.UpstreamName, threadID, prompt)
			start := time.Now()
			result, coalesced, err := d.group.Do(ctx, fp, func(ctx context.Context) (*ladder.AttemptResult, error) {
				return d.ladder.Do(ctx, chain, req)
			})

			sample := perf.Sample{
				Start:      start,
				EndToEndMs: time.Since(start).Milliseconds(),
				Coalesced:  coalesced,
			}
			if result != nil && result.Response != nil {
				sample.Provider = string(result.Provider)
				// Samples are keyed by registry id; that is the key the
				// reward lookup uses.
				sample.Model = result.Model
				if m, ok := d.registry.ByUpstream(string(result.Provider), result.Model); ok {
					sample.Model = m.ID
				}
				sample.TTFTMs = result.TTFTMs
				sample.PromptTokens = result.Usage.PromptTokens
				sample.CompletionTokens = result.Usage.CompletionTokens
			}
			if err != nil {
				sample.Error = perf.ErrorExhausted
			}
			d.monitor.Record(sample)
			stats := d.group.Stats()
			d.monitor.SetCoalesceCounts(stats.Leaders, stats.Followers)

			if err != nil {
				return err
			}

			if result.FallbackUsed {
				fmt.Fprintf(os.Stderr, "Answered by fallback rung %d: %s/%s\n",
					result.RungIndex, result.Provider, result.Model)
			}
			fmt.Println(result.Response.Content)

			if showStats {
				return printJSON(os.Stderr, d.monitor.Summary())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "conversation thread id for request coalescing")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print the performance summary after answering")

	return cmd
}

// askChain puts the router's pick first and the task's fallback chain
// behind it, skipping the rung the router already chose.
func askChain(d *deps, decision *router.Decision) []ladder.Rung {
	first := ladder.Rung{
		Provider:  adapter.Provider(decision.Model.Provider),
		Model:     decision.Model.UpstreamName,
		Rationale: "router selection",
	}
	chain := []ladder.Rung{first}
	for _, rung := range d.ladder.ChainFor(decision.Intent.TaskType) {
		if rung.Provider == first.Provider && rung.Model == first.Model {
			continue
		}
		chain = append(chain, rung)
	}
	return chain
}

func routeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route [prompt]",
		Short: "Show the routing decision without calling the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer func() { _ = d.logger.Sync() }()

			decision, err := d.router.Route(cmd.Context(), router.Request{
				Message:            args[0],
				AvailableProviders: d.adapters.AvailableProviders(),
				Rewards:            d.monitor.Rewards(),
			})
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, decision)
		},
	}
}

func collabCmd() *cobra.Command {
	var threadID string
	var recordDir string
	var forbidden []string
	var requiredHeadings []string
	var blockCount int

	cmd := &cobra.Command{
		Use:   "collab [prompt]",
		Short: "Run the six-stage collaboration pipeline",
		Long: `Runs Analyst, Researcher, Creator, Critic, Council and Synthesizer in
	order and validates the final answer against the quality gates.

	Use --forbid to lock terms out of the answer and --require-heading /
	--blocks to demand an output structure. Run records are written under
	--record-dir when set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer func() { _ = d.logger.Sync() }()

			classifier := intentClassifier(d.adapters, d.cfg, d.logger)

			var recorder collab.Recorder = collab.NopRecorder{}
			if recordDir != "" {
				fr, err := collab.NewFileRecorder(recordDir)
				if err != nil {
					return err
				}
				recorder = fr
			}

			orch, err := collab.New(collab.Options{
				Router:     d.router,
				Classifier: classifier,
				Adapters:   d.adapters,
				Registry:   d.registry,
				Validator:  gate.NewValidator(),
				Recorder:   recorder,
				Monitor:    d.monitor,
				Config:     d.cfg.Routing.Collab,
				Logger:     d.logger,
			})
			if err != nil {
				return err
			}

			req := collab.Request{
				Message:  args[0],
				ThreadID: threadID,
			}
			// Flags win; config supplies the defaults.
			collabCfg := d.cfg.Routing.Collab
			if len(forbidden) == 0 {
				forbidden = collabCfg.ForbiddenTerms
			}
			if len(requiredHeadings) == 0 {
				requiredHeadings = collabCfg.RequiredHeadings
			}
			if blockCount == 0 {
				blockCount = collabCfg.RequiredBlockCount
			}
			if len(forbidden) > 0 {
				req.Lexicon = &gate.LexiconLock{Forbidden: forbidden}
			}
			if len(requiredHeadings) > 0 || blockCount > 0 {
				req.Contract = &gate.OutputContract{
					RequiredHeadings:   requiredHeadings,
					RequiredBlockCount: blockCount,
				}
			}

			result, err := orch.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			switch result.Status {
			case collab.OutcomeClarify:
				fmt.Fprintln(os.Stderr, "The pipeline needs clarification before it can answer:")
				fmt.Println(result.Clarify)
			case collab.OutcomeUnsatisfiable:
				fmt.Fprintln(os.Stderr, "The stated constraints cannot be satisfied:")
				for _, u := range result.Unmet {
					fmt.Printf("- %s\n", u)
				}
			default:
				fmt.Fprintf(os.Stderr, "Run %s finished: %s\n", result.RunID, result.Status)
				fmt.Println(result.Answer)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "conversation thread id")
	cmd.Flags().StringVar(&recordDir, "record-dir", "", "directory for run records")
	cmd.Flags().StringArrayVar(&forbidden, "forbid", nil, "term the answer must not contain (repeatable)")
	cmd.Flags().StringArrayVar(&requiredHeadings, "require-heading", nil, "heading the answer must contain (repeatable)")
	cmd.Flags().IntVar(&blockCount, "blocks", 0, "exact number of fenced code blocks required")

	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List registry models and provider status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			reg, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tPROVIDER\tUPSTREAM\tCONTEXT\tCOST/1K\tSTATUS")

			for _, m := range reg.All() {
				status := "no key"
				if p, err := adapter.ParseProvider(m.Provider); err == nil && cfg.HasProvider(p) {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t$%.4f\t%s\n",
					m.ID, m.Provider, m.UpstreamName, m.MaxContext, m.CostPer1K, status)
			}

			return w.Flush()
		},
	}
}

func chainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "Show the fallback chains per task type",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			var tasks []string
			for name := range cfg.Routing.Ladder.Chains {
				tasks = append(tasks, name)
			}
			sort.Strings(tasks)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TASK TYPE\tRUNG\tPROVIDER\tMODEL\tRATIONALE")
			for _, task := range tasks {
				for i, rung := range cfg.Routing.Ladder.Chains[task] {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
						task, i, rung.Provider, rung.Model, rung.Rationale)
				}
			}
			return w.Flush()
		},
	}
}

func statsCmd() *cobra.Command {
	var recordDir string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize performance over recorded collaboration runs",
		Long: `Replays the stage timings from every run record under --record-dir
	through the performance monitor and prints the aggregate summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if recordDir == "" {
				return fmt.Errorf("--record-dir is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			monitor := perf.NewMonitor(cfg.Routing.Perf, zap.NewNop())
			runs, err := loadRunRecords(recordDir)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return fmt.Errorf("no run records under %s", recordDir)
			}

			for _, run := range runs {
				for i, stage := range run.Stages {
					sample := perf.Sample{
						Start:            stage.StartedAt,
						EndToEndMs:       stage.LatencyMs,
						PromptTokens:     stage.Usage.PromptTokens,
						CompletionTokens: stage.Usage.CompletionTokens,
						Provider:         stage.Provider,
						Model:            stage.Model,
					}
					// A failed run died at its last recorded stage.
					if run.Error != "" && i == len(run.Stages)-1 {
						sample.Error = perf.ErrorProvider
					}
					monitor.Record(sample)
				}
			}

			fmt.Fprintf(os.Stderr, "Summarized %d runs.\n", len(runs))
			return printJSON(os.Stdout, monitor.Summary())
		},
	}

	cmd.Flags().StringVar(&recordDir, "record-dir", "", "directory of collab run records (required)")

	return cmd
}

// loadRunRecords reads every <record-dir>/<run-id>/run.json bundle,
// skipping entries that are not run directories.
func loadRunRecords(dir string) ([]*collab.RunRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var runs []*collab.RunRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name(), "run.json"))
		if err != nil {
			continue
		}
		var run collab.RunRecord
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("parse run record %s: %w", entry.Name(), err)
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadWithRoutingFile(configFile)
	}
	return config.Load()
}

// loadRegistry prefers ~/.switchboard/models.yaml over the built-in
// catalogue.
func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	path := filepath.Join(cfg.ConfigDir, "models.yaml")
	if _, err := os.Stat(path); err == nil {
		return registry.Load(path)
	}
	return registry.Default(), nil
}

func intentClassifier(adapters adapter.Set, cfg *config.Config, logger *zap.Logger) *intent.Classifier {
	return intent.NewClassifier(adapters, cfg.Routing.Classifier, logger)
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stderr"}
	return logCfg.Build()
}

func printJSON(w *os.File, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
