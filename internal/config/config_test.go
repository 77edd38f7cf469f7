package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 5, cfg.Runs)
	require.Equal(t, 15*time.Second, cfg.Timeout)
	require.Equal(t, []string{"sdk", "rest"}, cfg.Transports)
}

func TestLoadExplicitPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom.yaml")
	data := []byte(`
model: gemini-2.0-flash
prompt: "Name a prime number."
runs: 10
temperature: 0.2
top_p: 0.9
timeout: 30s
delay: 500ms
retry_policy: retryable
transports: [rest]
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "gemini-2.0-flash", cfg.Model)
	require.Equal(t, "Name a prime number.", cfg.Prompt)
	require.Equal(t, 10, cfg.Runs)
	require.Equal(t, 0.2, cfg.Temperature)
	require.Equal(t, 0.9, cfg.TopP)
	require.Equal(t, 30*time.Second, cfg.Timeout)
	require.Equal(t, 500*time.Millisecond, cfg.Delay)
	require.Equal(t, "retryable", cfg.RetryPolicy)
	require.Equal(t, []string{"rest"}, cfg.Transports)
	// untouched fields keep their defaults
	require.Equal(t, 3, cfg.MaxRetries)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingExplicitPath(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runs: [unclosed"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "failed to parse config file")
}

func TestValidateRanges(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Runs = 0
	cfg.Temperature = 2.5
	cfg.TopP = 1.5
	cfg.Timeout = 0
	cfg.RetryPolicy = "sometimes"
	cfg.Transports = []string{"grpc"}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"runs", "temperature", "top_p", "timeout", "retry_policy", "grpc"} {
		require.ErrorContains(t, err, want)
	}
}

func TestResolveAPIKeyPrecedence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "from-file"

	t.Setenv(EnvAPIKey, "")
	require.Equal(t, "from-file", cfg.ResolveAPIKey(""))

	t.Setenv(EnvAPIKey, "from-env")
	require.Equal(t, "from-env", cfg.ResolveAPIKey(""))
	require.Equal(t, "from-flag", cfg.ResolveAPIKey(" from-flag "))

	t.Setenv(EnvAPIKey, "")
	cfg.APIKey = ""
	require.Empty(t, cfg.ResolveAPIKey(""))
}

func TestOutputPath(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.OutputDir = "out"
	require.Equal(t, filepath.Join("out", "a.csv"), cfg.OutputPath("a.csv"))
	require.Equal(t, "", cfg.OutputPath(""))
	abs := filepath.Join(t.TempDir(), "x.json")
	require.Equal(t, abs, cfg.OutputPath(abs))
}

func TestLoadTemplates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "templates.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[
  {"name": "Capital", "prompt": "What is the capital of France?"},
  {"name": "", "prompt": "skipped"},
  {"name": "Haiku", "prompt": "Write a haiku about rain."}
]`), 0o600))

	templates, err := LoadTemplates(jsonPath)
	require.NoError(t, err)
	require.Len(t, templates, 2)

	tpl, ok := FindTemplate(templates, "haiku")
	require.True(t, ok)
	require.Equal(t, "Write a haiku about rain.", tpl.Prompt)

	_, ok = FindTemplate(templates, "missing")
	require.False(t, ok)

	yamlPath := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("- name: Count\n  prompt: Count to three.\n"), 0o600))
	templates, err = LoadTemplates(yamlPath)
	require.NoError(t, err)
	require.Equal(t, "Count", templates[0].Name)
}
