// Command agentwave runs a multi-agent workflow from a task file or a
// bundled template, streaming progress events to stdout (or a Pulse
// stream) as it executes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/meshwave/agentwave"
	"github.com/meshwave/agentwave/backend/anthropic"
	"github.com/meshwave/agentwave/backend/openai"
	"github.com/meshwave/agentwave/backend/ratelimit"
	"github.com/meshwave/agentwave/registry/memory"
	"github.com/meshwave/agentwave/stream"
	"github.com/meshwave/agentwave/stream/pulse"
	"github.com/meshwave/agentwave/stream/stdout"
	"github.com/meshwave/agentwave/types"
	"github.com/meshwave/agentwave/workflow"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		tasksPath    string
		templateName string
		paramsPath   string
		agentsPath   string
		backendName  string
		defaultModel string
		redisURL     string
		rateTPM      float64
		maxParallel  int
	)

	rootCmd := &cobra.Command{
		Use:     "agentwave",
		Short:   "Run a multi-agent LLM workflow",
		Version: Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkflow(cmd.Context(), options{
				tasksPath:    tasksPath,
				templateName: templateName,
				paramsPath:   paramsPath,
				agentsPath:   agentsPath,
				backendName:  backendName,
				defaultModel: defaultModel,
				redisURL:     redisURL,
				rateTPM:      rateTPM,
				maxParallel:  maxParallel,
			})
		},
	}

	rootCmd.Flags().StringVar(&tasksPath, "tasks", "", "path to a JSON task list")
	rootCmd.Flags().StringVar(&templateName, "template", "", "bundled workflow template name (code-review, research-brief, single-task)")
	rootCmd.Flags().StringVar(&paramsPath, "params", "", "path to a JSON parameter bag for --template")
	rootCmd.Flags().StringVar(&agentsPath, "agents", "", "path to a JSON agent registry (name -> {system_prompt_template, default_model})")
	rootCmd.Flags().StringVar(&backendName, "backend", "anthropic", "agent backend: anthropic or openai (bedrock is rejected; build backend/bedrock.Client programmatically)")
	rootCmd.Flags().StringVar(&defaultModel, "model", "", "default model identifier for the chosen backend")
	rootCmd.Flags().StringVar(&redisURL, "redis-url", "", "stream events to a Pulse/Redis stream instead of stdout")
	rootCmd.Flags().Float64Var(&rateTPM, "rate-tpm", 0, "adaptive rate limiter initial tokens-per-minute budget (0 disables rate limiting)")
	rootCmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "override max parallel agents (0 uses the default)")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

type options struct {
	tasksPath    string
	templateName string
	paramsPath   string
	agentsPath   string
	backendName  string
	defaultModel string
	redisURL     string
	rateTPM      float64
	maxParallel  int
}

func runWorkflow(ctx context.Context, opts options) error {
	tasks, err := loadTasks(ctx, opts)
	if err != nil {
		return err
	}

	registry, err := loadRegistry(opts.agentsPath)
	if err != nil {
		return err
	}

	backend, err := buildBackend(opts)
	if err != nil {
		return err
	}

	sink, err := buildSink(opts.redisURL)
	if err != nil {
		return err
	}
	defer sink.Close(ctx)

	orch := agentwave.New(backend, registry)
	cfg := agentwave.DefaultConfig()
	if opts.maxParallel > 0 {
		cfg.MaxParallelAgents = opts.maxParallel
	}

	handle, events, err := orch.Submit(ctx, tasks, cfg)
	if err != nil {
		return fmt.Errorf("submit workflow: %w", err)
	}
	runID := ""
	if handle != nil {
		runID = handle.ID
	}
	return stream.Drain(ctx, runID, events, sink)
}

func loadTasks(ctx context.Context, opts options) ([]types.Task, error) {
	switch {
	case opts.tasksPath != "":
		raw, err := os.ReadFile(opts.tasksPath)
		if err != nil {
			return nil, fmt.Errorf("read tasks file: %w", err)
		}
		var tasks []types.Task
		if err := json.Unmarshal(raw, &tasks); err != nil {
			return nil, fmt.Errorf("parse tasks file: %w", err)
		}
		return tasks, nil
	case opts.templateName != "":
		registry := workflow.New()
		if err := workflow.RegisterBundled(registry); err != nil {
			return nil, fmt.Errorf("load bundled templates: %w", err)
		}
		params := map[string]any{}
		if opts.paramsPath != "" {
			raw, err := os.ReadFile(opts.paramsPath)
			if err != nil {
				return nil, fmt.Errorf("read params file: %w", err)
			}
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, fmt.Errorf("parse params file: %w", err)
			}
		}
		return registry.Expand(ctx, opts.templateName, params)
	default:
		return nil, fmt.Errorf("one of --tasks or --template is required")
	}
}

func loadRegistry(agentsPath string) (types.AgentRegistry, error) {
	reg := memory.New()
	if agentsPath == "" {
		return reg, nil
	}
	raw, err := os.ReadFile(agentsPath)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	var defs map[string]types.AgentDefinition
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	for name, def := range defs {
		reg.Register(name, def)
	}
	return reg, nil
}

func buildBackend(opts options) (types.AgentBackend, error) {
	var backend types.AgentBackend
	var err error
	switch opts.backendName {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		model := firstNonEmpty(opts.defaultModel, "claude-sonnet-4-5")
		backend, err = anthropic.NewFromAPIKey(apiKey, model)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		model := firstNonEmpty(opts.defaultModel, "gpt-4o")
		backend, err = openai.NewFromAPIKey(apiKey, model)
	case "bedrock":
		return nil, fmt.Errorf("bedrock backend requires a pre-configured AWS session; construct backend/bedrock.Client programmatically")
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.backendName)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s backend: %w", opts.backendName, err)
	}
	if opts.rateTPM > 0 {
		backend = ratelimit.New(opts.rateTPM, opts.rateTPM*2).Wrap(backend)
	}
	return backend, nil
}

func buildSink(redisURL string) (stream.Sink, error) {
	if redisURL == "" {
		return stdout.New(os.Stdout), nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return pulse.New(redis.NewClient(opt), 0)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
