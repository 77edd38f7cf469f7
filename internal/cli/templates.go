package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/consistency-runner/internal/config"
)

func newTemplatesCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the prompt templates usable with 'run --template'",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.cfg.TemplatesFile
			if file != "" {
				path = file
			}
			templates, err := config.LoadTemplates(path)
			if err != nil {
				return fmt.Errorf("failed to load templates: %w", err)
			}
			if len(templates) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No templates in %s.\n", path)
				return nil
			}
			for _, t := range templates {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n    %s\n", t.Name, truncate(t.Prompt, 80))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "templates-file", "", "templates file (YAML or JSON list of {name, prompt})")
	return cmd
}
