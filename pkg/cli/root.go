// Package cli implements the modserve command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modserve",
	Short: "modserve is a modular HTTP server",
	Long: `modserve serves HTTP from a set of configured plugin modules: a parser,
an ordered handler pipeline, loggers, sniffers, and an optional connection
wrapper for TLS termination.

The server is assembled entirely from the configuration file; with no
handlers configured every request resolves to a miss.`,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute runs the root command. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	initServeCmd()
	initValidateCmd()
	rootCmd.AddCommand(versionCmd)
}
