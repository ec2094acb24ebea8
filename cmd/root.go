// Package cmd implements the summaly command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// newRootCmd creates and configures the root command. Without a subcommand
// it serves, matching the container entrypoint.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "summaly",
		Short: "Link preview service that summarizes a page's metadata as JSON.",
		Long: `summaly fetches a single web page, reads the metadata in its <head>
(OpenGraph, title, icons, oEmbed) and answers with a compact JSON preview.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgFile)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $SUMMALY_CONFIG_PATH or ./config.json)")

	cmd.AddCommand(newServeCmd(&cfgFile))
	cmd.AddCommand(newHealthcheckCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if err == nil {
		return 0
	}
	fmt.Fprintln(root.ErrOrStderr(), err)
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}
