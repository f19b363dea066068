package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/chronicle/internal/cache"
	"github.com/dusk-indust/chronicle/internal/config"
	"github.com/dusk-indust/chronicle/internal/genai"
	"github.com/dusk-indust/chronicle/internal/logging"
	"github.com/dusk-indust/chronicle/internal/pipeline"
	"github.com/dusk-indust/chronicle/internal/templatedata"
	"github.com/dusk-indust/chronicle/internal/tmpl"
	"github.com/dusk-indust/chronicle/internal/workflow"
)

// runFlags gathers everything a run or resume invocation can override.
type runFlags struct {
	Topic    string
	Archive  string
	CacheDir string

	Stages  []string
	Exclude []string
	Force   bool

	Template string
	Depth    string
	Language string
	Format   string

	MaxInputChars     int
	RunBudgetChars    int
	QualityStrategy   string
	QualityIterations int
	Candidates        int

	Models []string
}

func addRunFlags(cmd *cobra.Command, rf *runFlags) {
	cmd.Flags().StringVar(&rf.Topic, "topic", "", "report topic")
	cmd.Flags().StringVar(&rf.Archive, "archive", "", "source archive directory (read-only)")
	cmd.Flags().StringVar(&rf.CacheDir, "cache", "", "artifact cache directory (default <notes>/.cache)")
	cmd.Flags().StringSliceVar(&rf.Stages, "stages", nil, "stages to run (default scout,plan,evidence,plan_check,writer,quality)")
	cmd.Flags().StringSliceVar(&rf.Exclude, "exclude", nil, "stages to leave out of the selection")
	cmd.Flags().BoolVar(&rf.Force, "force", false, "regenerate every stage even on a cache hit")
	cmd.Flags().StringVar(&rf.Template, "template", "", "built-in template name or path to a template YAML")
	cmd.Flags().StringVar(&rf.Depth, "depth", "", "report depth: brief, standard, or full")
	cmd.Flags().StringVar(&rf.Language, "language", "", "report language")
	cmd.Flags().StringVar(&rf.Format, "format", "", "report output format")
	cmd.Flags().IntVar(&rf.MaxInputChars, "max-input-chars", 0, "per-call prompt budget in characters")
	cmd.Flags().IntVar(&rf.RunBudgetChars, "run-budget-chars", 0, "cumulative prompt budget for the whole run")
	cmd.Flags().StringVar(&rf.QualityStrategy, "quality-strategy", "", "candidate reduction strategy: pairwise or best_of")
	cmd.Flags().IntVar(&rf.QualityIterations, "quality-iterations", -1, "critique/revision iterations per candidate")
	cmd.Flags().IntVar(&rf.Candidates, "candidates", 0, "number of report candidates for the quality stage")
	cmd.Flags().StringSliceVar(&rf.Models, "model", nil, "per-role model override, role=name (roles: scout, planner, evidence, writer, critic)")
}

func newRunCmd(root *rootFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the report pipeline over an archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return executePipeline(cmd, root, rf, false)
		},
	}
	addRunFlags(cmd, rf)
	cmd.MarkFlagRequired("archive")
	cmd.MarkFlagRequired("topic")
	return cmd
}

func newResumeCmd(root *rootFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume an interrupted run, reusing completed stages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return executePipeline(cmd, root, rf, true)
		},
	}
	addRunFlags(cmd, rf)
	cmd.MarkFlagRequired("archive")
	return cmd
}

func executePipeline(cmd *cobra.Command, root *rootFlags, rf *runFlags, resume bool) error {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return err
	}
	if err := applyOverrides(cmd, cfg, rf, root.Verbose); err != nil {
		return err
	}

	if resume && rf.Topic == "" {
		topic, err := priorTopic(root.NotesDir)
		if err != nil {
			return fmt.Errorf("resume needs --topic or a prior run.json in %s: %w", root.NotesDir, err)
		}
		rf.Topic = topic
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	defer logger.Sync()

	template, err := resolveTemplate(cfg, rf.Template)
	if err != nil {
		return err
	}

	gen, err := buildGenerator(cfg)
	if err != nil {
		return err
	}

	include, err := pipeline.ParseStageIDs(rf.Stages)
	if err != nil {
		return err
	}
	exclude, err := pipeline.ParseStageIDs(rf.Exclude)
	if err != nil {
		return err
	}
	plan, err := pipeline.NewScheduler().Resolve(include, exclude)
	if err != nil {
		return err
	}

	run, err := pipeline.NewRun(rf.Topic, rf.Archive, root.NotesDir, *cfg, template)
	if err != nil {
		return err
	}
	run.Force = rf.Force

	cacheDir := rf.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(run.NotesRoot, ".cache")
	}
	store, err := cache.NewStore(cacheDir)
	if err != nil {
		return err
	}

	recorder, err := workflow.NewRecorder(run.NotesRoot, run.ID, pipeline.StageNames(pipeline.DeclarationOrder))
	if err != nil {
		return err
	}

	progress := pipeline.NewProgressReporter()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range progress.Subscribe() {
			fmt.Fprintln(cmd.OutOrStdout(), pipeline.FormatProgress(event))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := pipeline.NewRuntime(run, plan, gen, store, recorder, progress, logger)
	rt.Resume = resume
	err = rt.ExecutePlan(ctx)

	progress.Close()
	<-done

	if err != nil {
		return err
	}

	logger.Info("run complete",
		zap.String("runId", run.ID),
		zap.Int64("generationCalls", rt.GenCalls()))
	if plan.Enabled(pipeline.StageQuality) || plan.Enabled(pipeline.StageWriter) {
		fmt.Fprintf(cmd.OutOrStdout(), "report: %s\n", run.ReportPath())
	}
	return nil
}

// applyOverrides layers explicit flags over the loaded config, then
// re-validates the result.
func applyOverrides(cmd *cobra.Command, cfg *config.Config, rf *runFlags, verbose bool) error {
	changed := cmd.Flags().Changed
	if changed("depth") {
		cfg.Depth = config.Depth(rf.Depth)
	}
	if changed("language") {
		cfg.Language = rf.Language
	}
	if changed("format") {
		cfg.OutputFormat = rf.Format
	}
	if changed("max-input-chars") {
		cfg.Budgets.MaxInputChars = rf.MaxInputChars
	}
	if changed("run-budget-chars") {
		cfg.Budgets.RunChars = rf.RunBudgetChars
	}
	if changed("quality-strategy") {
		cfg.Quality.Strategy = config.Strategy(rf.QualityStrategy)
	}
	if changed("quality-iterations") {
		cfg.Quality.Iterations = rf.QualityIterations
	}
	if changed("candidates") {
		cfg.Quality.Candidates = rf.Candidates
	}
	for _, pair := range rf.Models {
		role, name, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return fmt.Errorf("--model wants role=name, got %q", pair)
		}
		switch role {
		case "scout":
			cfg.Models.Scout = name
		case "planner":
			cfg.Models.Planner = name
		case "evidence":
			cfg.Models.Evidence = name
		case "writer":
			cfg.Models.Writer = name
		case "critic":
			cfg.Models.Critic = name
		default:
			return fmt.Errorf("--model: unknown role %q", role)
		}
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg.Validate()
}

// resolveTemplate loads a template from an explicit path, a built-in name,
// the configured path, or the default, in that order.
func resolveTemplate(cfg *config.Config, flagValue string) (*tmpl.Template, error) {
	switch {
	case flagValue != "":
		if _, err := os.Stat(flagValue); err == nil {
			return tmpl.Load(flagValue)
		}
		return templatedata.Load(flagValue)
	case cfg.TemplatePath != "":
		return tmpl.Load(cfg.TemplatePath)
	default:
		return templatedata.Load(templatedata.DefaultName)
	}
}

func buildGenerator(cfg *config.Config) (genai.Generator, error) {
	switch cfg.Provider.Kind {
	case "openai":
		return genai.NewLangChainProvider(genai.ProviderOptions{
			BaseURL:  cfg.Provider.BaseURL,
			TokenEnv: cfg.Provider.TokenEnv,
		})
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}

// priorTopic recovers the topic from a prior run's metadata record.
func priorTopic(notesDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(notesDir, "run.json"))
	if err != nil {
		return "", err
	}
	var meta pipeline.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", err
	}
	if meta.Topic == "" {
		return "", errors.New("prior run recorded no topic")
	}
	return meta.Topic, nil
}
