/*
PURPOSE:
  Defines the configuration structure and loading logic for Consistency Runner.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Allow configuration of model, prompt, runs, sampling and timeouts.
  - Allow the API key to come from the file, the environment or the store.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs range validation before a run starts (temperature 0..2, top_p 0..1).
  - Prompt templates live in their own YAML/JSON file.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli
  - Dependencies: gopkg.in/yaml.v3 (standard for Go config)

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - A missing default file is not an error (falls back to defaults).

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Defaults: 5 runs, 15s per-call timeout, 3 attempts.

USAGE:
  cfg, err := config.Load("consistency.yaml")
  if err := cfg.Validate(); err != nil { ... }

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig().

RELATED FILES:
  - internal/cli/root.go
  - internal/cli/run.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daryltucker/consistency-runner/internal/model"
)

// EnvAPIKey is the environment variable consulted for the API key.
const EnvAPIKey = "GEMINI_API_KEY"

// DefaultSearchPaths are tried in order when no --config is given.
var DefaultSearchPaths = []string{"consistency.yaml", "consistency.yml", "consistency_runner.yaml"}

// Config represents the full configuration for Consistency Runner.
type Config struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	Prompt        string   `yaml:"prompt"`
	PromptFile    string   `yaml:"prompt_file"`
	Template      string   `yaml:"template"`
	TemplatesFile string   `yaml:"templates_file"`
	Files         []string `yaml:"files"`

	Runs        int           `yaml:"runs"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"` // 0 means unset
	Timeout     time.Duration `yaml:"timeout"`
	Delay       time.Duration `yaml:"delay"`

	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	RetryPolicy string        `yaml:"retry_policy"`
	Transports  []string      `yaml:"transports"`

	OutputDir  string `yaml:"output_dir"`
	CSVFile    string `yaml:"csv_file"`
	JSONLFile  string `yaml:"jsonl_file"`
	ExportFile string `yaml:"export_file"`

	CredentialDB string `yaml:"credential_db"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:         "gemini-2.5-flash",
		TemplatesFile: "templates.yaml",
		Runs:          5,
		Temperature:   1.0,
		Timeout:       15 * time.Second,
		MaxRetries:    3,
		RetryDelay:    time.Second,
		RetryPolicy:   "all",
		Transports:    []string{"sdk", "rest"},
		OutputDir:     ".",
		CSVFile:       "consistency_results.csv",
		JSONLFile:     "consistency_results.jsonl",
		ExportFile:    "gemini-consistency-results.json",
		CredentialDB:  defaultCredentialDB(),
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

func defaultCredentialDB() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".consistency-runner", "settings.db")
	}
	return filepath.Join(dir, "consistency-runner", "settings.db")
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches DefaultSearchPaths in order.
// If no file found, returns default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
	} else {
		found := false
		for _, name := range DefaultSearchPaths {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				found = true
				break
			}
		}
		if !found {
			return cfg, nil
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks value ranges. It does not check the API key or prompt;
// those are run-time validation errors.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if c.Runs <= 0 {
		errs = append(errs, fmt.Errorf("runs must be positive, got %d", c.Runs))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within 0..2, got %g", c.Temperature))
	}
	if c.TopP < 0 || c.TopP > 1 {
		errs = append(errs, fmt.Errorf("top_p must be within 0..1, got %g", c.TopP))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Delay < 0 {
		errs = append(errs, fmt.Errorf("delay must not be negative, got %s", c.Delay))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must not be negative, got %s", c.RetryDelay))
	}
	switch c.RetryPolicy {
	case "all", "retryable":
	default:
		errs = append(errs, fmt.Errorf("retry_policy must be all or retryable, got %q", c.RetryPolicy))
	}
	if len(c.Transports) == 0 {
		errs = append(errs, errors.New("at least one transport is required"))
	}
	for _, t := range c.Transports {
		if t != "sdk" && t != "rest" {
			errs = append(errs, fmt.Errorf("unknown transport %q (want sdk or rest)", t))
		}
	}
	return errors.Join(errs...)
}

// ResolveAPIKey applies the precedence flag > environment > config file.
// An empty result means the caller should consult the credential store.
func (c *Config) ResolveAPIKey(flagValue string) string {
	if k := strings.TrimSpace(flagValue); k != "" {
		return k
	}
	if k := strings.TrimSpace(os.Getenv(EnvAPIKey)); k != "" {
		return k
	}
	return strings.TrimSpace(c.APIKey)
}

// OutputPath joins name onto OutputDir. An empty name yields "".
func (c *Config) OutputPath(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}

// LoadTemplates reads a list of named prompts. YAML is a superset of JSON,
// so a templates.json list loads unchanged.
func LoadTemplates(path string) ([]model.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var templates []model.Template
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse templates file %s: %w", path, err)
	}
	out := templates[:0]
	for _, t := range templates {
		if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Prompt) == "" {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// FindTemplate returns the template whose name matches case-insensitively.
func FindTemplate(templates []model.Template, name string) (model.Template, bool) {
	for _, t := range templates {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return model.Template{}, false
}
