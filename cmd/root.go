package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lobbyd",
		Short:         "Tic-tac-toe lobby server",
		Long:          "lobbyd serves two-player tic-tac-toe lobbies over a websocket. Players get a resumable session, create or join a lobby by its 4-digit code and play in real time.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
