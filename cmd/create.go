package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateCmd(a *app) *cobra.Command {
	var serverURL string
	var username string
	var email string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a collaboration session through a running agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := a.localClient().Create(cmd.Context(), serverURL, username, email)
			if err != nil {
				return err
			}
			if !resp.Success {
				return errors.New(resp.Error)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Room ID: %s\nServer:  %s\n", resp.RoomID, resp.ServerURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "", "collaboration server to create the room on")
	cmd.Flags().StringVar(&username, "username", "", "display name for the silent identity")
	cmd.Flags().StringVar(&email, "email", "", "email for the silent identity")

	return cmd
}
