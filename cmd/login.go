package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/InterCode-Team/open-collaboration-tools/internal/application"
)

func newLoginCmd(a *app) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against a collaboration server in the browser",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := a.cfg.ServerURL
			if serverURL != "" {
				target = application.NormalizeServerURL(serverURL)
			}

			token, err := a.loginFlow.Prompt(cmd.Context(), target)
			if err != nil {
				return fmt.Errorf("browser login: %w", err)
			}

			if err := a.store.Put(cmd.Context(), target, token); err != nil {
				return fmt.Errorf("store login token: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Authenticated against %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "", "collaboration server to authenticate against")

	return cmd
}
