// Package cli implements the Cobra command-line interface for the
// standalone server binary.
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information set by goreleaser
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flag values
var (
	flagConfig  string
	flagData    string
	flagListen  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "omniscidb",
	Short: "SQLite-backed analytic database server with session-scoped query execution",
	Long: `omniscidb serves a session-scoped SQL query interface over a
line-delimited JSON protocol.

Clients connect with catalog credentials, receive an opaque session token,
and execute queries under that token until they disconnect. The bootstrap
superuser is 'admin' on the default database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("omniscidb %s (commit %s, built %s, %s)\n",
			version, commit, date, runtime.Version())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (TOML)")
	rootCmd.PersistentFlags().StringVar(&flagData, "data", "", "storage directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagListen, "listen", "", "listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
