package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/summaly-go/internal/config"
	"github.com/JakeFAU/summaly-go/internal/server"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the preview HTTP server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *cfgFile)
		},
	}
}

func runServe(ctx context.Context, cfgFile string) error {
	path := config.ResolvePath(cfgFile)
	cfg, created, err := config.LoadOrInit(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := server.Build(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	if created {
		zap.L().Info("wrote default config", zap.String("path", path))
	} else {
		zap.L().Info("loaded config", zap.String("path", path))
	}
	return app.Run(ctx)
}
