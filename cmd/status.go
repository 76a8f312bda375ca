package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/InterCode-Team/open-collaboration-tools/internal/adapters/render/hostctx"
)

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the focused editor context of a running agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := a.localClient().HostContext(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			rendered := hostctx.Render(hostctx.View{
				Success: resp.Success,
				Error:   resp.Error,
				Context: resp.Context,
			})
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw host-context response")

	return cmd
}
