package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "octa",
		Short:         "Open Collaboration Tools agent: host and join collaborative editing sessions headlessly",
		Long:          "octa runs a headless collaboration agent. `octa serve` starts the daemon with its loopback automation endpoint; the other commands drive a running daemon or work directly against the collaboration server.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(app),
		newCreateCmd(app),
		newJoinCmd(app),
		newStatusCmd(app),
		newLoginCmd(app),
	)

	return rootCmd
}
