package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/aegiscore/internal/api"
	"github.com/xkilldash9x/aegiscore/internal/config"
	"github.com/xkilldash9x/aegiscore/internal/detection"
	"github.com/xkilldash9x/aegiscore/internal/flowsource"
	"github.com/xkilldash9x/aegiscore/internal/observability"
)

// newServeCmd creates the `serve` command.
func newServeCmd() *cobra.Command {
	var withDetector bool
	var detectInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analyst API and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runServe(ctx, cfg, withDetector, detectInterval)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&withDetector, "with-detector", false, "run the synthetic detector alongside the API")
	cmd.Flags().DurationVar(&detectInterval, "detect-interval", time.Second, "delay between synthetic flows when --with-detector is set")
	return cmd
}

func runServe(ctx context.Context, cfg config.Interface, withDetector bool, detectInterval time.Duration) error {
	logger := observability.GetLogger()

	core, err := componentFactory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer core.Shutdown()

	if err := core.Store.EnsureSchema(ctx); err != nil {
		logger.Warn("Could not prepare primary schema, continuing on the fallback.", zap.Error(err))
	}

	handlers := api.NewHandlers(logger, core.Store, core.Store, core.Incidents, core.Projector, cfg.Classifier().Type)
	server := api.NewServer(cfg.Server(), handlers, core.Metrics.Handler(), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })

	if cfg.Storage().WatchFallback {
		g.Go(func() error {
			if err := core.Store.WatchFallback(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Fallback watcher stopped.", zap.Error(err))
			}
			return nil
		})
	}

	if withDetector {
		pipeline := core.Pipeline(cfg.Detection(), logger)
		source := flowsource.NewSynthesizer(flowsource.WithInterval(detectInterval))
		g.Go(func() error {
			return pipeline.Stream(gctx, source, detection.StreamConfig{BatchSize: cfg.Detection().BatchSize}, nil)
		})
	}

	return g.Wait()
}
