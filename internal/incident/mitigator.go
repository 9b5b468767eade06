package incident

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/xkilldash9x/aegiscore/api/schemas"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BlockRequest is the message published for an enforcement agent.
type BlockRequest struct {
	AlertID     string  `json:"alert_id"`
	SourceIP    string  `json:"source_ip"`
	Category    string  `json:"category"`
	RiskScore   float64 `json:"risk_score"`
	RequestedAt string  `json:"requested_at"`
}

// Publisher is the part of *nats.Conn the mitigator needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSMitigator publishes block requests on a NATS subject.
type NATSMitigator struct {
	pub     Publisher
	subject string
	now     func() time.Time
	log     *zap.Logger
}

// NewNATSMitigator creates a mitigator on an existing connection.
func NewNATSMitigator(pub Publisher, subject string, logger *zap.Logger) *NATSMitigator {
	return &NATSMitigator{pub: pub, subject: subject, now: time.Now, log: logger.Named("mitigator")}
}

// ConnectNATS dials the NATS server used for mitigation.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("aegiscore"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS.", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("Reconnected to NATS.", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Block implements schemas.Mitigator.
func (m *NATSMitigator) Block(ctx context.Context, alert schemas.AlertRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(BlockRequest{
		AlertID:     alert.ID,
		SourceIP:    alert.SourceIP,
		Category:    alert.PredictedLabel,
		RiskScore:   alert.RiskScore,
		RequestedAt: m.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode block request: %w", err)
	}
	if err := m.pub.Publish(m.subject, data); err != nil {
		return fmt.Errorf("failed to publish block request: %w", err)
	}
	m.log.Debug("Published block request.", zap.String("subject", m.subject), zap.String("source_ip", alert.SourceIP))
	return nil
}

// LogMitigator only records the request. It is used when no enforcement
// backend is configured.
type LogMitigator struct {
	log *zap.Logger
}

// NewLogMitigator creates a LogMitigator.
func NewLogMitigator(logger *zap.Logger) *LogMitigator {
	return &LogMitigator{log: logger.Named("mitigator")}
}

// Block implements schemas.Mitigator.
func (m *LogMitigator) Block(_ context.Context, alert schemas.AlertRecord) error {
	m.log.Warn("Block requested but no enforcement backend is configured.",
		zap.String("alert_id", alert.ID),
		zap.String("source_ip", alert.SourceIP),
	)
	return nil
}
