// Package detection turns flow records into scored, persisted alerts:
// vectorize, classify, score, persist.
package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/observability"
	"github.com/xkilldash9x/aegiscore/internal/risk"
	"go.uber.org/zap"
)

// Defaults used when no option overrides them.
const (
	DefaultOffenderCapacity = 4096
	DefaultBatchSize        = 50
	DefaultFlushInterval    = 2 * time.Second
)

// Report summarizes one detection run.
type Report struct {
	Processed   int                   `json:"processed"`
	Skipped     int                   `json:"skipped"`
	Escalations int                   `json:"escalations"`
	Alerts      []schemas.AlertRecord `json:"alerts"`
	Ack         schemas.WriteAck      `json:"ack"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBaseline sets the category that never produces an alert.
func WithBaseline(label string) Option {
	return func(p *Pipeline) { p.baseline = label }
}

// WithOffenderCapacity bounds the per-run repeat offender counters.
func WithOffenderCapacity(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.offenderCapacity = n
		}
	}
}

// WithMetrics records detections and classification failures.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithIDGenerator replaces uuid.NewString, for tests.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pipeline) { p.newID = gen }
}

// Pipeline runs batches of flow records through the classifier and persists
// the resulting alerts with a single append per batch.
type Pipeline struct {
	vectorizer       *Vectorizer
	classifier       schemas.Classifier
	store            schemas.AlertStore
	baseline         string
	offenderCapacity int
	newID            func() string
	log              *zap.Logger
	metrics          *observability.Metrics
}

// NewPipeline wires a Pipeline.
func NewPipeline(vectorizer *Vectorizer, classifier schemas.Classifier, store schemas.AlertStore, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		vectorizer:       vectorizer,
		classifier:       classifier,
		store:            store,
		baseline:         schemas.CategoryNormal,
		offenderCapacity: DefaultOffenderCapacity,
		newID:            uuid.NewString,
		log:              logger.Named("detection"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes one bounded batch. Invalid records and classification
// failures are logged and skipped; the batch continues. Repeat offender
// escalation is scoped to this call. The returned error is non-nil only when
// the alerts could not be persisted or ctx ended.
func (p *Pipeline) Run(ctx context.Context, records []schemas.FlowRecord) (Report, error) {
	escalator, err := p.newEscalator()
	if err != nil {
		return Report{}, err
	}
	return p.run(ctx, records, escalator)
}

func (p *Pipeline) newEscalator() (*risk.Escalator, error) {
	return risk.NewEscalator(p.offenderCapacity, p.baseline)
}

// run processes one batch against escalator, which may outlive the batch.
func (p *Pipeline) run(ctx context.Context, records []schemas.FlowRecord, escalator *risk.Escalator) (Report, error) {
	start := time.Now()
	defer func() { p.metrics.ObserveRun(time.Since(start)) }()

	report := Report{Alerts: make([]schemas.AlertRecord, 0)}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++

		alert, err := p.detect(ctx, rec, escalator)
		if err != nil {
			report.Skipped++
			p.metrics.IncClassificationError()
			p.log.Warn("Skipping flow record.", zap.Int("index", i), zap.String("source_ip", rec.SourceIP), zap.Error(err))
			continue
		}
		if alert == nil {
			// Baseline traffic.
			continue
		}
		if alert.EscalationFlag {
			report.Escalations++
			p.log.Info("Repeat offender escalated.",
				zap.String("source_ip", alert.SourceIP),
				zap.Float64("risk_score", alert.RiskScore),
				zap.Int("occurrences", escalator.Count(alert.SourceIP)),
			)
		}
		p.metrics.ObserveAlert(alert.PredictedLabel, alert.EscalationFlag)
		report.Alerts = append(report.Alerts, *alert)
	}
	p.metrics.AddFlows(report.Processed)

	if len(report.Alerts) == 0 {
		return report, nil
	}
	ack, err := p.store.Append(ctx, report.Alerts)
	report.Ack = ack
	if err != nil {
		return report, fmt.Errorf("failed to persist %d alerts: %w", len(report.Alerts), err)
	}
	p.log.Info("Detection batch persisted.",
		zap.Int("processed", report.Processed),
		zap.Int("alerts", len(report.Alerts)),
		zap.Bool("primary", ack.Primary),
	)
	return report, nil
}

// detect classifies one record. Baseline traffic yields a nil alert and a nil error.
func (p *Pipeline) detect(ctx context.Context, rec schemas.FlowRecord, escalator *risk.Escalator) (*schemas.AlertRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow record: %w", err)
	}

	prediction, err := p.classifier.Predict(ctx, p.vectorizer.Vectorize(rec))
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	if prediction.Label == p.baseline {
		return nil, nil
	}

	confidence := prediction.Confidence()
	score, escalated := escalator.Score(rec.SourceIP, prediction.Label, risk.Severity(confidence, prediction.Label))
	return &schemas.AlertRecord{
		ID:              p.newID(),
		Timestamp:       rec.Timestamp,
		SourceIP:        rec.SourceIP,
		DestinationIP:   rec.DestIP,
		DestinationPort: rec.DestPort,
		Protocol:        rec.Protocol,
		PacketSize:      rec.PacketSize,
		PredictedLabel:  prediction.Label,
		Confidence:      confidence,
		RiskScore:       score,
		Status:          schemas.StatusActive,
		EscalationFlag:  escalated,
	}, nil
}
