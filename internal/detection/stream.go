package detection

import (
	"context"
	"time"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"go.uber.org/zap"
)

// StreamConfig controls how Stream cuts a flow source into batches.
type StreamConfig struct {
	BatchSize int
	// FlushInterval runs a partial batch after this long without filling it.
	FlushInterval time.Duration
}

// Stream consumes source until it is exhausted or ctx ends, running one
// detection batch per BatchSize records or per FlushInterval, whichever
// comes first. Repeat offender counts carry across batches for the whole
// stream. onReport, if set, receives every batch report. Persistence failures
// are logged and do not stop the stream.
func (p *Pipeline) Stream(ctx context.Context, source schemas.FlowSource, cfg StreamConfig, onReport func(Report)) error {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}

	escalator, err := p.newEscalator()
	if err != nil {
		return err
	}

	flows, err := source.Flows(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]schemas.FlowRecord, 0, cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		report, err := p.run(ctx, batch, escalator)
		if err != nil {
			p.log.Error("Detection batch failed.", zap.Int("records", len(batch)), zap.Error(err))
		}
		if onReport != nil {
			onReport(report)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-flows:
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, rec)
			if len(batch) >= cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
