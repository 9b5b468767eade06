// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/classifier"
	"github.com/xkilldash9x/aegiscore/internal/config"
	"github.com/xkilldash9x/aegiscore/internal/detection"
	"github.com/xkilldash9x/aegiscore/internal/incident"
	"github.com/xkilldash9x/aegiscore/internal/observability"
	"github.com/xkilldash9x/aegiscore/internal/store"
	"github.com/xkilldash9x/aegiscore/internal/topology"
)

// ComponentFactory builds the Components a command needs. Commands depend on
// the interface so they can be exercised without a database or broker.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires the core from configuration. The primary store is dialled
// lazily by the gate, so an unreachable database does not fail startup.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{Metrics: observability.NewMetrics()}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Storage
	var dial store.Dialer
	if url := cfg.Database().URL; url != "" {
		dial = store.PostgresDialer(url, cfg.Database().ConnectTimeout)
	} else {
		logger.Warn("Database URL (AEGIS_DATABASE_URL) is not set. Serving from the fallback snapshot only.")
	}
	components.Gate = store.NewGate(dial, cfg.Storage().Cooldown, logger, store.WithMetrics(components.Metrics))
	components.Store = store.NewAdapter(components.Gate, store.NewFileStore(cfg.Storage().FallbackPath), logger,
		store.WithRetention(cfg.Storage().Retention),
		store.WithAdapterMetrics(components.Metrics),
	)
	logger.Debug("Persistence adapter initialized.", zap.String("fallback", cfg.Storage().FallbackPath))

	// 2. Detection
	components.Vectorizer = detection.NewVectorizer()
	clf, err := NewClassifier(cfg.Classifier(), components.Vectorizer.Features(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Classifier = clf

	// 3. Topology
	graph, err := topology.LoadGraph(cfg.Topology().GraphFile)
	if err != nil {
		initializationErr = fmt.Errorf("failed to load topology graph: %w", err)
		return nil, initializationErr
	}
	components.Projector = topology.NewProjector(graph, components.Store, cfg.Topology().AlertWindow, logger)

	// 4. Incident response
	var mitigator schemas.Mitigator
	if url := cfg.Mitigation().NATSURL; url != "" {
		nc, err := incident.ConnectNATS(url, logger)
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.nc = nc
		mitigator = incident.NewNATSMitigator(nc, cfg.Mitigation().Subject, logger)
	} else {
		mitigator = incident.NewLogMitigator(logger)
	}
	components.Incidents = incident.NewService(components.Store, mitigator, components.Metrics, logger)

	logger.Debug("All components initialized.")
	return components, nil
}

// NewClassifier selects the model adapter named by cfg.Type.
func NewClassifier(cfg config.ClassifierConfig, features []string, logger *zap.Logger) (schemas.Classifier, error) {
	switch cfg.Type {
	case "heuristic":
		return classifier.NewHeuristic(features), nil
	case "remote":
		return classifier.NewRemote(classifier.RemoteConfig{
			Endpoint:  cfg.Endpoint,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
			Features:  features,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown classifier type %q", cfg.Type)
	}
}
