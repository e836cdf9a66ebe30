// Package main provides aactl, the command line client of the auto-analysis
// server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultServer  = "http://localhost:8080"
	defaultTimeout = 2 * time.Minute
)

type rootOptions struct {
	server  string
	token   string
	timeout time.Duration
	wait    bool
	poll    time.Duration
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.server, o.token, o.timeout)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "aactl",
		Short: "Control the auto-analysis server",
		Long: `aactl talks to the auto-analysis server API.

Commands:
  analyzers  Register, list and remove analyzer backends
  index      Rebuild the analyzer index of a project
  analyze    Start auto analysis of a launch
  patterns   Run pattern analysis of a launch
  clusters   Generate log clusters of a launch
  finish     Notify the server that a launch finished
  similar    Find logs similar to a test item
  suggest    Suggest defects for a test item
  job        Show a background job`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("AACTL_SERVER", defaultServer), "server base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("AACTL_TOKEN"), "bearer token")
	flags.DurationVar(&opts.timeout, "timeout", defaultTimeout, "request timeout")
	flags.BoolVarP(&opts.wait, "wait", "w", false, "wait for submitted jobs to finish")
	flags.DurationVar(&opts.poll, "poll", time.Second, "job polling interval")

	rootCmd.AddCommand(analyzersCmd(opts))
	rootCmd.AddCommand(indexCmd(opts))
	rootCmd.AddCommand(analyzeCmd(opts))
	rootCmd.AddCommand(patternsCmd(opts))
	rootCmd.AddCommand(clustersCmd(opts))
	rootCmd.AddCommand(finishCmd(opts))
	rootCmd.AddCommand(similarCmd(opts))
	rootCmd.AddCommand(suggestCmd(opts))
	rootCmd.AddCommand(jobCmd(opts))

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
