package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daryltucker/consistency-runner/internal/credstore"
)

func newKeyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the saved Gemini API key",
	}

	setCmd := &cobra.Command{
		Use:   "set [KEY]",
		Short: "Save an API key (reads the first line of stdin when KEY is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read key from stdin: %w", err)
				}
				key = line
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return errors.New("API key must not be empty")
			}
			if err := saveAPIKey(commandContext(cmd), opts.cfg.CredentialDB, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved API key %s\n", credstore.Mask(key))
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the saved API key (masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := credstore.Open(opts.cfg.CredentialDB)
			if err != nil {
				return err
			}
			defer st.Close()

			key, err := st.Get(commandContext(cmd), credstore.APIKey)
			if errors.Is(err, credstore.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No API key saved.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), credstore.Mask(key))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the saved API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := credstore.Open(opts.cfg.CredentialDB)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Delete(commandContext(cmd), credstore.APIKey); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key cleared.")
			return nil
		},
	}

	cmd.AddCommand(setCmd, showCmd, clearCmd)
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
