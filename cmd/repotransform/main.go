// Package main provides the repotransform CLI: it loads configuration,
// wires the Model Router, reviewers, and Pipeline Controller together,
// and drives a single repository transformation job to completion.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/repoforge/transformer/config"
	"github.com/repoforge/transformer/domain"
	"github.com/repoforge/transformer/eventbus"
	"github.com/repoforge/transformer/ingestion"
	"github.com/repoforge/transformer/llm"
	_ "github.com/repoforge/transformer/llm/providers" // register anthropic/openai/ollama
	"github.com/repoforge/transformer/model"
	"github.com/repoforge/transformer/pipeline"
	"github.com/repoforge/transformer/reviewer"
	"github.com/repoforge/transformer/validator"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repotransform",
		Short: "Transform a repository through a multi-reviewer consensus pipeline",
		Long: `repotransform clones a repository, runs a panel of LLM-backed reviewers
through an audit / debate / execution / review pipeline, and reports the
resulting health-score delta.`,
	}

	cmd.AddCommand(transformCmd())
	cmd.AddCommand(configInitCmd())
	return cmd
}

func transformCmd() *cobra.Command {
	var (
		configPath    string
		outputJSON    bool
		globalTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "transform <repo-url>",
		Short: "Run the full transformation pipeline against a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(args[0], configPath, outputJSON, globalTimeout)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a repotransform.yaml config file (default: layered discovery)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "print the result and transcript as JSON")
	cmd.Flags().DurationVar(&globalTimeout, "timeout", 30*time.Minute, "overall job timeout")

	return cmd
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config init",
		Short: "Write a default user config file if one does not already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.NewLoader(slog.Default()).EnsureUserConfig()
		},
	}
}

func runTransform(repoURL, configPath string, outputJSON bool, globalTimeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), globalTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	p, err := buildPipeline(cfg, logger, outputJSON)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	jobID := uuid.New().String()
	result, err := p.Run(ctx, jobID, repoURL)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printSummary(result)
	if result.Status == domain.StatusFailed {
		return fmt.Errorf("transformation failed: %s", result.Error)
	}
	return nil
}

func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.NewLoader(logger).Load()
}

// buildPipeline wires the Model Router, the four reviewers, the ingestion
// adapter, and the validator into a ready-to-run Pipeline, following the
// construction order of repoman's core/pipeline.py Pipeline.__init__.
func buildPipeline(cfg *config.Config, logger *slog.Logger, streamEvents bool) (*pipeline.Pipeline, error) {
	registry := model.Global()
	if cfg.Validator.ModelRegistryFile != "" {
		data, err := os.ReadFile(cfg.Validator.ModelRegistryFile)
		if err != nil {
			return nil, fmt.Errorf("read model registry file: %w", err)
		}
		loaded := &model.Registry{}
		if err := json.Unmarshal(data, loaded); err != nil {
			return nil, fmt.Errorf("parse model registry file: %w", err)
		}
		registry = loaded
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}

	router := llm.NewClient(registry, llm.WithLogger(logger))

	reviewers := map[string]*reviewer.Reviewer{
		"architect": reviewer.New("architect", model.RoleArchitect, router, reviewer.WithLogger(logger)),
		"auditor":   reviewer.New("auditor", model.RoleAuditor, router, reviewer.WithLogger(logger)),
		"builder":   reviewer.New("builder", model.RoleBuilder, router, reviewer.WithLogger(logger)),
		"mediator":  reviewer.New("mediator", model.RoleMediator, router, reviewer.WithLogger(logger)),
	}

	ingest := ingestion.New(
		ingestion.WithLogger(logger),
		ingestion.WithBaseDir(cfg.Clone.BaseDir),
		ingestion.WithCloneDepth(cfg.Clone.Depth),
	)

	checks := validator.DefaultChecks()
	if cfg.Validator.ChecksFile != "" {
		data, err := os.ReadFile(cfg.Validator.ChecksFile)
		if err != nil {
			return nil, fmt.Errorf("read checks file: %w", err)
		}
		if err := json.Unmarshal(data, &checks); err != nil {
			return nil, fmt.Errorf("parse checks file: %w", err)
		}
	}
	v := validator.New(checks, validator.WithLogger(logger))

	bus := eventbus.New()
	if streamEvents {
		logEventsToStderr(bus)
	}
	if cfg.NATS.URL != "" {
		bridge, err := eventbus.NewNATSBridge(cfg.NATS.URL, "repotransform", eventbus.WithBridgeLogger(logger))
		if err != nil {
			logger.Warn("nats bridge disabled", "error", err)
		} else {
			bridge.Start(context.Background(), bus)
		}
	}

	p := pipeline.New(ingest, reviewers, []string{"architect", "auditor", "builder"}, "mediator", v,
		pipeline.WithLogger(logger),
		pipeline.WithEventBus(bus),
		pipeline.WithPhaseTimeout(cfg.Pipeline.PhaseTimeout),
		pipeline.WithConsensusMaxRounds(cfg.Consensus.MaxRounds),
		pipeline.WithConsensusThreshold(cfg.Consensus.Threshold),
	)
	return p, nil
}

// logEventsToStderr streams every bus event to stderr as a single-line
// JSON object, mirroring the shape the WebSocket surface would forward.
func logEventsToStderr(bus *eventbus.Bus) {
	sub := bus.Subscribe()
	go func() {
		for ev := range sub.Events() {
			data, err := json.Marshal(map[string]any{"event": ev.Name, "data": ev.Data})
			if err != nil {
				continue
			}
			fmt.Fprintln(os.Stderr, string(data))
		}
	}()
}

func printSummary(result *domain.PipelineResult) {
	fmt.Printf("job:        %s\n", result.JobID)
	fmt.Printf("status:     %s\n", result.Status)
	if result.Error != "" {
		fmt.Printf("error:      %s\n", result.Error)
	}
	fmt.Printf("before:     %.1f\n", result.BeforeScore)
	fmt.Printf("after:      %.1f\n", result.AfterScore)
	fmt.Printf("fixed:      %d issues\n", result.IssuesFixed)
	fmt.Printf("duration:   %.2fs\n", result.TotalDurationSeconds)
}
