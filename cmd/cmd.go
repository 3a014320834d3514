package cmd

import (
	"github.com/spf13/cobra"

	"github.com/windvane/booksource/cmd/search"
	"github.com/windvane/booksource/cmd/server"
	"github.com/windvane/booksource/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version.",
	Long:  "print version.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		version.Printer()
	},
}

func Execute() {
	var rootCmd = &cobra.Command{Use: "booksource"}
	rootCmd.AddCommand(server.ServerCmd, search.SearchCmd, versionCmd)
	rootCmd.Execute()
}
