package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newJoinCmd(a *app) *cobra.Command {
	var serverURL string
	var username string
	var email string

	cmd := &cobra.Command{
		Use:   "join <room-id>",
		Short: "Join a collaboration session through a running agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.localClient().Join(cmd.Context(), args[0], serverURL, username, email)
			if err != nil {
				return err
			}
			if !resp.Success {
				return errors.New(resp.Error)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Joined room %s on %s\n", resp.RoomID, resp.ServerURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "", "collaboration server hosting the room")
	cmd.Flags().StringVar(&username, "username", "", "display name for the silent identity")
	cmd.Flags().StringVar(&email, "email", "", "email for the silent identity")

	return cmd
}
