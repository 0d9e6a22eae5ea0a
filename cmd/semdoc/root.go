package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	noColor   bool
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "semdoc",
	Short: "Semantic document store",
	Long: `semdoc stores text documents with their embeddings and metadata and
finds them again by meaning. Run "semdoc start" for the HTTP API,
"semdoc mcp" for the MCP stdio server, and the other commands as a client
of a running server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the semdoc version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "semdoc %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL (default: from server.host and server.port)")

	rootCmd.AddCommand(
		startCmd,
		stopCmd,
		statusCmd,
		mcpCmd,
		addCmd,
		importCmd,
		getCmd,
		updateCmd,
		deleteCmd,
		listCmd,
		searchCmd,
		similarCmd,
		graphCmd,
		exploreCmd,
		statsCmd,
		configCmd,
		versionCmd,
	)
}
