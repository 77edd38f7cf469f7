/*
PURPOSE:
  Defines the 'list-models' subcommand.
  Helps debug connectivity and pick a model name before a run.

REQUIREMENTS:
  User-specified:
  - List available models.

  Implementation-discovered:
  - Only models supporting generateContent are useful here.
  - Uses the same key resolution as 'run'.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.RESTStrategy.ListModels()

ERROR HANDLING:
  - Returns the transport error (bad key, unreachable host).

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  consistency-runner list-models --api-key ...

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/rest.go

MAINTENANCE:
  - None.
*/

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/consistency-runner/internal/engine"
)

func newListModelsCmd(opts *rootOptions) *cobra.Command {
	var apiKey, baseURL string

	cmd := &cobra.Command{
		Use:   "list-models",
		Short: "List Gemini models that support generateContent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg := opts.cfg
			if cmd.Flags().Changed("base-url") {
				cfg.BaseURL = baseURL
			}

			key := resolveAPIKey(ctx, cfg, apiKey)
			if key == "" {
				return &engine.ValidationError{Msg: "Please enter your Gemini API key (--api-key, GEMINI_API_KEY or `key set`)."}
			}

			rest := engine.NewRESTStrategy(cfg.BaseURL, key)
			fmt.Fprintf(cmd.OutOrStdout(), "Querying %s...\n", rest.BaseURL)
			models, err := rest.ListModels(ctx)
			if err != nil {
				return err
			}
			for _, m := range models {
				if m.DisplayName != "" && m.DisplayName != m.Name {
					fmt.Fprintf(cmd.OutOrStdout(), "- %s (%s)\n", m.Name, m.DisplayName)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", m.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "Gemini API key")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL")
	return cmd
}
