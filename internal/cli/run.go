/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes one consistency run and prints the summary.

REQUIREMENTS:
  User-specified:
  - Send the same prompt N times, sequentially, with optional attachments.
  - Override any config value from flags.
  - Ctrl-C stops after the current call; a second Ctrl-C aborts.
  - Export the results as JSON on request.

  Implementation-discovered:
  - Need to load config first (root PersistentPreRunE).
  - Apply flag overrides to config, then validate ranges.
  - API key resolution: flag > GEMINI_API_KEY > config > credential store.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Session.Run()
  - Uses: internal/config, internal/media, internal/credstore,
    internal/output, internal/observability

ERROR HANDLING:
  - Returns error if config is invalid, validation fails or the run is aborted.
  - Failed iterations are part of the report, not errors.

IMPLEMENTATION RULES:
  - Setup flags in newRunCmd().
  - Logic: Load Config -> Override -> Session.Run.

USAGE:
  consistency-runner run --prompt "What is the capital of France?" -n 5

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go
  - internal/cli/console.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/consistency-runner/internal/config"
	"github.com/daryltucker/consistency-runner/internal/credstore"
	"github.com/daryltucker/consistency-runner/internal/engine"
	"github.com/daryltucker/consistency-runner/internal/media"
	"github.com/daryltucker/consistency-runner/internal/observability"
	"github.com/daryltucker/consistency-runner/internal/output"
)

type runFlags struct {
	apiKey        string
	baseURL       string
	model         string
	prompt        string
	promptFile    string
	template      string
	templatesFile string
	files         []string
	runs          int
	temperature   float64
	topP          float64
	timeout       time.Duration
	delay         time.Duration
	maxRetries    int
	retryDelay    time.Duration
	retryPolicy   string
	transports    []string
	outputDir     string
	csvFile       string
	jsonlFile     string
	export        string
	metricsAddr   string
	saveKey       bool
	noColor       bool
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the same prompt N times and measure consistency",
		Long: `Sends the prompt N times, strictly one call after another. Each call tries
the Gemini SDK first and falls back to direct REST, with a per-call timeout and
up to 3 attempts (1s, 2s backoff).

Every result is streamed to CSV and JSON Lines files in the output directory.
When all runs are done (or the run is cancelled) the exact agreement rate,
average token similarity and majority answer are printed.

Press Ctrl-C once to stop after the current call, twice to abort.`,
		Example: `  # Five runs with defaults (uses consistency.yaml if present)
  consistency-runner run --prompt "What is the capital of France?"

  # Twenty runs at low temperature with a pause between calls
  consistency-runner run -p ./prompts/question.md -n 20 --temperature 0.2 --delay 2s

  # Attach images and export the results
  consistency-runner run --template "Describe chart" --file chart.png --export

  # REST only, stop retrying on permanent errors
  consistency-runner run --transports rest --retry-policy retryable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			applyRunFlags(cmd, cfg, f)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return executeRun(cmd, cfg, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.apiKey, "api-key", "", "Gemini API key (overrides GEMINI_API_KEY, config and saved key)")
	fl.StringVar(&f.baseURL, "base-url", "", "API base URL (default https://generativelanguage.googleapis.com)")
	fl.StringVarP(&f.model, "model", "m", "", "model name, e.g. gemini-2.5-flash")
	fl.StringVar(&f.prompt, "prompt", "", "prompt text")
	fl.StringVarP(&f.promptFile, "prompt-file", "p", "", "path to a text/markdown file containing the prompt")
	fl.StringVarP(&f.template, "template", "t", "", "name of a prompt template to use")
	fl.StringVar(&f.templatesFile, "templates-file", "", "templates file (YAML or JSON list of {name, prompt})")
	fl.StringSliceVarP(&f.files, "file", "f", nil, "file to attach (repeatable, at most 16)")
	fl.IntVarP(&f.runs, "runs", "n", 0, "number of runs")
	fl.Float64Var(&f.temperature, "temperature", 0, "sampling temperature (0..2)")
	fl.Float64Var(&f.topP, "top-p", 0, "nucleus sampling (0..1, 0 leaves it unset)")
	fl.DurationVar(&f.timeout, "timeout", 0, "per-call timeout")
	fl.DurationVar(&f.delay, "delay", 0, "pause between runs")
	fl.IntVar(&f.maxRetries, "max-retries", 0, "attempts per call")
	fl.DurationVar(&f.retryDelay, "retry-delay", 0, "base backoff between attempts")
	fl.StringVar(&f.retryPolicy, "retry-policy", "", "which failures to retry: all or retryable")
	fl.StringSliceVar(&f.transports, "transports", nil, "ordered transports to try: sdk, rest")
	fl.StringVarP(&f.outputDir, "output-dir", "o", "", "output directory for results (CSV/JSONL/export)")
	fl.StringVar(&f.csvFile, "csv", "", "CSV results file name (empty string disables)")
	fl.StringVar(&f.jsonlFile, "jsonl", "", "JSON Lines results file name (empty string disables)")
	fl.StringVar(&f.export, "export", "", "write the JSON export after the run (optionally to the given path)")
	fl.Lookup("export").NoOptDefVal = output.DefaultExportFile
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	fl.BoolVar(&f.saveKey, "save-key", false, "store the API key in use for later runs")
	fl.BoolVar(&f.noColor, "no-color", false, "disable coloured output")

	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config, f *runFlags) {
	fl := cmd.Flags()

	if fl.Changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if fl.Changed("model") {
		cfg.Model = f.model
	}
	if fl.Changed("templates-file") {
		cfg.TemplatesFile = f.templatesFile
	}
	// Explicit prompt flags beat config; among flags prompt > prompt-file > template.
	if fl.Changed("template") {
		cfg.Template = f.template
		cfg.PromptFile = ""
		cfg.Prompt = ""
	}
	if fl.Changed("prompt-file") {
		cfg.PromptFile = f.promptFile
		cfg.Prompt = ""
	}
	if fl.Changed("prompt") {
		cfg.Prompt = f.prompt
	}
	if fl.Changed("file") {
		cfg.Files = f.files
	}
	if fl.Changed("runs") {
		cfg.Runs = f.runs
	}
	if fl.Changed("temperature") {
		cfg.Temperature = f.temperature
	}
	if fl.Changed("top-p") {
		cfg.TopP = f.topP
	}
	if fl.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if fl.Changed("delay") {
		cfg.Delay = f.delay
	}
	if fl.Changed("max-retries") {
		cfg.MaxRetries = f.maxRetries
	}
	if fl.Changed("retry-delay") {
		cfg.RetryDelay = f.retryDelay
	}
	if fl.Changed("retry-policy") {
		cfg.RetryPolicy = f.retryPolicy
	}
	if fl.Changed("transports") {
		cfg.Transports = f.transports
	}
	if fl.Changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if fl.Changed("csv") {
		cfg.CSVFile = f.csvFile
	}
	if fl.Changed("jsonl") {
		cfg.JSONLFile = f.jsonlFile
	}
	// A bare --export keeps the configured export_file.
	if fl.Changed("export") && f.export != output.DefaultExportFile {
		cfg.ExportFile = f.export
	}
	if fl.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
}

func executeRun(cmd *cobra.Command, cfg *config.Config, f *runFlags) error {
	ctx := commandContext(cmd)
	con := newConsole(cmd.OutOrStdout(), f.noColor)

	prompt, err := resolvePrompt(cfg)
	if err != nil {
		return err
	}
	apiKey := resolveAPIKey(ctx, cfg, f.apiKey)
	if f.saveKey && apiKey != "" {
		if err := saveAPIKey(ctx, cfg.CredentialDB, apiKey); err != nil {
			return err
		}
	}

	var src engine.MediaSource
	if len(cfg.Files) > 0 {
		files, err := media.NewFileSource(cfg.Files)
		if err != nil {
			return err
		}
		src = files
	}

	metrics := observability.NewMetrics()
	strategies, err := buildStrategies(cfg, apiKey)
	if err != nil {
		return err
	}
	orch := engine.NewOrchestrator(strategies...)
	orch.MaxAttempts = cfg.MaxRetries
	orch.RetryDelay = cfg.RetryDelay
	orch.Policy = engine.RetryPolicy(cfg.RetryPolicy)
	orch.Metrics = metrics

	runner := engine.NewRunner(orch)
	runner.Metrics = metrics

	recorders, closeRecorders, err := openRecorders(cfg)
	if err != nil {
		return err
	}
	defer closeRecorders()
	runner.Recorders = recorders

	session := engine.NewSession(runner)
	runCtx, stop := interruptContext(ctx, session, con)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			output.Logger.Info("Serving metrics", "addr", cfg.MetricsAddr)
			if err := metrics.Serve(runCtx, cfg.MetricsAddr); err != nil {
				output.Logger.Error("Metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	plan := engine.RunPlan{
		APIKey:      apiKey,
		Model:       cfg.Model,
		Prompt:      prompt,
		Media:       src,
		Runs:        cfg.Runs,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Timeout:     cfg.Timeout,
		Delay:       cfg.Delay,
	}
	output.Logger.Debug("Run plan", "session", session.ID, "transports", strings.Join(cfg.Transports, ","))

	report, err := session.Run(runCtx, plan, con)
	if err != nil {
		if report != nil && errors.Is(err, context.Canceled) {
			con.Summary(report)
			return fmt.Errorf("run aborted: %w", err)
		}
		return err
	}
	con.Summary(report)

	if cmd.Flags().Changed("export") {
		exp, ok := session.Export(time.Now())
		if !ok {
			output.Logger.Warn("No results to export")
			return nil
		}
		path := cfg.OutputPath(cfg.ExportFile)
		if err := output.WriteExport(path, exp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported results to %s\n", path)
	}
	return nil
}

// resolvePrompt picks the prompt text from, in order, the literal prompt,
// the prompt file and the named template. An empty result is reported by
// the runner as a validation error.
func resolvePrompt(cfg *config.Config) (string, error) {
	switch {
	case strings.TrimSpace(cfg.Prompt) != "":
		return cfg.Prompt, nil
	case cfg.PromptFile != "":
		data, err := os.ReadFile(cfg.PromptFile)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return string(data), nil
	case cfg.Template != "":
		templates, err := config.LoadTemplates(cfg.TemplatesFile)
		if err != nil {
			return "", fmt.Errorf("failed to load templates: %w", err)
		}
		t, ok := config.FindTemplate(templates, cfg.Template)
		if !ok {
			return "", fmt.Errorf("template %q not found in %s", cfg.Template, cfg.TemplatesFile)
		}
		return t.Prompt, nil
	}
	return "", nil
}

// resolveAPIKey falls back to the credential store when neither the flag,
// the environment nor the config file provide a key.
func resolveAPIKey(ctx context.Context, cfg *config.Config, flagValue string) string {
	if key := cfg.ResolveAPIKey(flagValue); key != "" {
		return key
	}
	if _, err := os.Stat(cfg.CredentialDB); err != nil {
		return ""
	}
	st, err := credstore.Open(cfg.CredentialDB)
	if err != nil {
		output.Logger.Warn("Credential store unavailable", "path", cfg.CredentialDB, "error", err)
		return ""
	}
	defer st.Close()

	key, err := st.Get(ctx, credstore.APIKey)
	if err != nil {
		if !errors.Is(err, credstore.ErrNotFound) {
			output.Logger.Warn("Failed to read saved API key", "error", err)
		}
		return ""
	}
	output.Logger.Debug("Using saved API key", "key", credstore.Mask(key))
	return key
}

func saveAPIKey(ctx context.Context, path, key string) error {
	st, err := credstore.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Set(ctx, credstore.APIKey, key); err != nil {
		return err
	}
	output.Logger.Info("Saved API key", "path", path, "key", credstore.Mask(key))
	return nil
}

func buildStrategies(cfg *config.Config, apiKey string) ([]engine.Strategy, error) {
	strategies := make([]engine.Strategy, 0, len(cfg.Transports))
	for _, name := range cfg.Transports {
		switch name {
		case "sdk":
			strategies = append(strategies, engine.NewSDKStrategy(cfg.BaseURL, apiKey))
		case "rest":
			strategies = append(strategies, engine.NewRESTStrategy(cfg.BaseURL, apiKey))
		default:
			return nil, fmt.Errorf("unknown transport %q", name)
		}
	}
	return strategies, nil
}

// openRecorders opens the CSV and JSON Lines streams configured for the run.
func openRecorders(cfg *config.Config) ([]engine.Recorder, func(), error) {
	var (
		recorders []engine.Recorder
		closers   []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				output.Logger.Error("Failed to close results file", "error", err)
			}
		}
	}

	if cfg.CSVFile == "" && cfg.JSONLFile == "" {
		return nil, closeAll, nil
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}

	if cfg.CSVFile != "" {
		w, err := output.NewCSVWriter(cfg.OutputPath(cfg.CSVFile))
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open CSV output: %w", err)
		}
		recorders = append(recorders, w)
		closers = append(closers, w.Close)
	}
	if cfg.JSONLFile != "" {
		w, err := output.NewJSONWriter(cfg.OutputPath(cfg.JSONLFile))
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open JSONL output: %w", err)
		}
		recorders = append(recorders, w)
		closers = append(closers, w.Close)
	}
	return recorders, closeAll, nil
}

// interruptContext turns the first interrupt into a cooperative cancel of
// the session and the second into a hard abort of the returned context.
func interruptContext(parent context.Context, session *engine.Session, sink engine.StatusSink) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		cancelled := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if !cancelled && session.Cancel() {
					cancelled = true
					sink.SetStatus("Cancelling after the current call... (press Ctrl-C again to abort)")
					continue
				}
				cancel()
				return
			}
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}
