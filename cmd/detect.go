package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/config"
	"github.com/xkilldash9x/aegiscore/internal/detection"
	"github.com/xkilldash9x/aegiscore/internal/flowsource"
	"github.com/xkilldash9x/aegiscore/internal/observability"
)

type detectOptions struct {
	file      string
	follow    bool
	count     int
	interval  time.Duration
	flush     time.Duration
	seed      uint64
	batchSize int
}

// newDetectCmd creates the `detect` command.
func newDetectCmd() *cobra.Command {
	opts := detectOptions{}
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run the detection pipeline over a flow source",
		Long: `Reads flow records from a JSON-lines file (--file or detection.flow_file) or,
without one, from the built-in traffic synthesizer. Records are classified in
batches and every non-baseline prediction is scored and persisted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runDetect(ctx, cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "JSON-lines flow file to read (overrides detection.flow_file)")
	cmd.Flags().BoolVar(&opts.follow, "follow", false, "keep reading the flow file as it grows")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 0, "number of synthetic flows to generate (0 runs until interrupted)")
	cmd.Flags().DurationVar(&opts.interval, "interval", 100*time.Millisecond, "delay between synthetic flows")
	cmd.Flags().DurationVar(&opts.flush, "flush", detection.DefaultFlushInterval, "run a partial batch after this long")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "seed for the synthesizer (0 picks a random seed)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "records per detection batch (overrides detection.batch_size)")
	return cmd
}

func runDetect(ctx context.Context, cmd *cobra.Command, cfg config.Interface, opts detectOptions) error {
	logger := observability.GetLogger()

	core, err := componentFactory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer core.Shutdown()

	if err := core.Store.EnsureSchema(ctx); err != nil {
		logger.Warn("Could not prepare primary schema, continuing on the fallback.", zap.Error(err))
	}

	source := newFlowSource(cfg.Detection(), opts, logger)
	pipeline := core.Pipeline(cfg.Detection(), logger)

	var total detection.Report
	err = pipeline.Stream(ctx, source, detection.StreamConfig{
		BatchSize:     cfg.Detection().BatchSize,
		FlushInterval: opts.flush,
	}, func(r detection.Report) {
		total.Processed += r.Processed
		total.Skipped += r.Skipped
		total.Escalations += r.Escalations
		total.Alerts = append(total.Alerts, r.Alerts...)
		for _, a := range r.Alerts {
			logger.Info("Threat detected",
				zap.String("id", a.ID),
				zap.String("source_ip", a.SourceIP),
				zap.String("category", a.PredictedLabel),
				zap.Float64("risk_score", a.RiskScore),
				zap.Bool("escalated", a.EscalationFlag),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("detection stream failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "processed=%d skipped=%d alerts=%d escalations=%d\n",
		total.Processed, total.Skipped, len(total.Alerts), total.Escalations)
	return nil
}

func newFlowSource(cfg config.DetectionConfig, opts detectOptions, logger *zap.Logger) schemas.FlowSource {
	file := opts.file
	if file == "" {
		file = cfg.FlowFile
	}
	if file != "" {
		return flowsource.NewTailSource(flowsource.TailConfig{
			Path:      file,
			Follow:    opts.follow,
			FromStart: true,
		}, logger)
	}

	synthOpts := []flowsource.SynthOption{
		flowsource.WithCount(opts.count),
		flowsource.WithInterval(opts.interval),
	}
	if opts.seed != 0 {
		synthOpts = append(synthOpts, flowsource.WithSeed(opts.seed))
	}
	return flowsource.NewSynthesizer(synthOpts...)
}
