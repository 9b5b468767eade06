// File: internal/service/components.go
package service

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/config"
	"github.com/xkilldash9x/aegiscore/internal/detection"
	"github.com/xkilldash9x/aegiscore/internal/incident"
	"github.com/xkilldash9x/aegiscore/internal/observability"
	"github.com/xkilldash9x/aegiscore/internal/store"
	"github.com/xkilldash9x/aegiscore/internal/topology"
)

// Components holds the wired security core shared by every command.
// It centralizes the lifecycle of the primary pool and the broker connection.
type Components struct {
	Metrics    *observability.Metrics
	Gate       *store.Gate
	Store      *store.Adapter
	Vectorizer *detection.Vectorizer
	Classifier schemas.Classifier
	Incidents  *incident.Service
	Projector  *topology.Projector

	// nc is set only when mitigation is published over NATS.
	nc *nats.Conn
}

// Pipeline builds a detection pipeline over the shared store.
func (c *Components) Pipeline(cfg config.DetectionConfig, logger *zap.Logger) *detection.Pipeline {
	return detection.NewPipeline(c.Vectorizer, c.Classifier, c.Store, logger,
		detection.WithBaseline(cfg.BaselineLabel),
		detection.WithOffenderCapacity(cfg.OffenderCapacity),
		detection.WithMetrics(c.Metrics),
	)
}

// Shutdown releases the broker connection first, then the primary pool. It is
// safe on a partially built Components.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Flush pending block requests.
	if c.nc != nil {
		if err := c.nc.Drain(); err != nil {
			logger.Warn("Error draining NATS connection.", zap.Error(err))
		} else {
			logger.Debug("NATS connection drained.")
		}
	}

	// 2. Close the primary pool, if one was ever dialled.
	if c.Gate != nil {
		c.Gate.Close()
		logger.Debug("Storage gate closed.")
	}

	logger.Info("All components shut down successfully.")
}
