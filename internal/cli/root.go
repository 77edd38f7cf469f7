/*
PURPOSE:
  Defines the root Cobra command for the Consistency Runner CLI.
  Handles global flags and per-invocation setup (env file, config, logger).

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - .env files must be loaded before config so GEMINI_API_KEY is visible.
  - Commands are built by a constructor so tests get fresh flag state.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/consistency-runner/main.go
  - Calls: Child commands (run, list-models, key, templates)
  - Uses: internal/config, internal/output

ERROR HANDLING:
  - Returns error to main.go for exit code handling.
  - Errors are not printed by cobra (main prints them once).

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root only prepares shared state.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to NewRootCmd().

RELATED FILES:
  - cmd/consistency-runner/main.go
  - internal/config/config.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/daryltucker/consistency-runner/internal/config"
	"github.com/daryltucker/consistency-runner/internal/output"
)

// rootOptions holds the persistent flags and the config loaded from them.
type rootOptions struct {
	cfgFile      string
	envFile      string
	logLevel     string
	logFormat    string
	credentialDB string

	cfg *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "consistency-runner",
		Short: "Measure how consistently Gemini answers the same prompt",
		Long: `Sends the same prompt (plus optional attachments) to a Gemini model N times,
one call after another, and reports exact agreement, average similarity and
the majority answer. Use 'run --help' for run options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "config file (default is ./consistency.yaml)")
	pf.StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default is ./.env if present)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&opts.credentialDB, "credential-db", "", "path to the settings database holding the saved API key")

	cmd.AddCommand(
		newRunCmd(opts),
		newListModelsCmd(opts),
		newKeyCmd(opts),
		newTemplatesCmd(opts),
	)
	return cmd
}

// Execute executes the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *rootOptions) setup(cmd *cobra.Command) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", o.envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if o.credentialDB != "" {
		cfg.CredentialDB = o.credentialDB
	}
	if err := output.Configure(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	o.cfg = cfg
	return nil
}
