package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/summaly-go/internal/healthcheck"
)

// Exit codes for the healthcheck command.
const (
	exitLocalServer = 1
	exitTarget      = 2
)

func newHealthcheckCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "healthcheck <bind_port> <target_url>",
		Short: "Probe a running server end to end.",
		Long: `healthcheck serves a known page on 127.0.0.1:<bind_port>, asks <target_url>
to summarize it and checks the result. Exit status is 0 on success, 1 when the
local page cannot be served, and 2 when the target never returns the expected preview.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[0])
			if err != nil || port < 0 || port > 65535 {
				return fmt.Errorf("invalid bind_port %q", args[0])
			}

			logger := zap.NewNop()
			if verbose {
				if logger, err = zap.NewDevelopment(); err != nil {
					return fmt.Errorf("logger init failed: %w", err)
				}
			}

			err = healthcheck.Run(cmd.Context(), healthcheck.Config{
				BindPort:  port,
				TargetURL: args[1],
				Logger:    logger,
			})
			switch {
			case err == nil:
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			case errors.Is(err, healthcheck.ErrLocalServer):
				return &exitError{code: exitLocalServer, err: err}
			default:
				return &exitError{code: exitTarget, err: err}
			}
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log each probe attempt")
	return cmd
}
