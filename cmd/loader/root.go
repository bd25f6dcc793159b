package main

import (
	"github.com/spf13/cobra"
)

// globalOptions holds the flags shared by every subcommand
type globalOptions struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "loader",
		Short: "Fetch resources over HTTP, FTP, SMB and local files with caching and politeness",
		Long: `loader is the resource-fetch layer of the crawler.

It dispatches each URL to the adapter for its protocol, serves cached
copies according to the cache strategy, keeps at least the politeness
interval between requests to the same host and journals every rejected
attempt.

Use "loader [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the YAML configuration file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, overriding metrics_addr")

	rootCmd.AddCommand(newFetchCmd(opts))
	rootCmd.AddCommand(newJournalCmd(opts))
	rootCmd.AddCommand(newIndexCmd(opts))
	rootCmd.AddCommand(newCacheCmd(opts))
	rootCmd.AddCommand(newProfilesCmd(opts))

	return rootCmd
}
