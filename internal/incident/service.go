// Package incident implements the analyst actions on stored alerts.
package incident

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/observability"
	"go.uber.org/zap"
)

// Mitigation outcomes reported to metrics.
const (
	OutcomeBlocked  = "blocked"
	OutcomeFailed   = "failed"
	OutcomeNotFound = "not_found"
)

// BlockResult acknowledges a block request.
type BlockResult struct {
	Status   string `json:"status"`
	AlertID  string `json:"alert_id"`
	SourceIP string `json:"source_ip"`
	Message  string `json:"message"`
}

// Service resolves alerts and hands block requests to a Mitigator.
type Service struct {
	store     schemas.AlertStore
	mitigator schemas.Mitigator
	metrics   *observability.Metrics
	log       *zap.Logger
}

// NewService creates a Service. metrics may be nil.
func NewService(store schemas.AlertStore, mitigator schemas.Mitigator, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		mitigator: mitigator,
		metrics:   metrics,
		log:       logger.Named("incident"),
	}
}

// Resolve marks an alert Resolved. Resolving an already resolved alert returns
// it unchanged. Unknown ids yield schemas.ErrNotFound.
func (s *Service) Resolve(ctx context.Context, id string) (schemas.AlertRecord, error) {
	rec, err := s.store.UpdateStatus(ctx, id, schemas.StatusResolved)
	if err != nil {
		if errors.Is(err, schemas.ErrNotFound) {
			return schemas.AlertRecord{}, err
		}
		return schemas.AlertRecord{}, fmt.Errorf("failed to resolve alert %s: %w", id, err)
	}
	s.log.Info("Alert resolved.", zap.String("id", id), zap.String("source_ip", rec.SourceIP))
	return rec, nil
}

// Block asks the mitigator to block the source of an alert. The alert itself
// is not modified.
func (s *Service) Block(ctx context.Context, id string) (BlockResult, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, schemas.ErrNotFound) {
			s.metrics.ObserveMitigation(OutcomeNotFound)
			return BlockResult{}, err
		}
		s.metrics.ObserveMitigation(OutcomeFailed)
		return BlockResult{}, fmt.Errorf("failed to look up alert %s: %w", id, err)
	}

	if err := s.mitigator.Block(ctx, rec); err != nil {
		s.metrics.ObserveMitigation(OutcomeFailed)
		s.log.Error("Mitigation failed.", zap.String("id", id), zap.String("source_ip", rec.SourceIP), zap.Error(err))
		return BlockResult{}, fmt.Errorf("failed to block source %s: %w", rec.SourceIP, err)
	}

	s.metrics.ObserveMitigation(OutcomeBlocked)
	s.log.Info("Source blocked.", zap.String("id", id), zap.String("source_ip", rec.SourceIP))
	return BlockResult{
		Status:   OutcomeBlocked,
		AlertID:  rec.ID,
		SourceIP: rec.SourceIP,
		Message:  fmt.Sprintf("Source %s for alert %s has been blocked at the firewall.", rec.SourceIP, rec.ID),
	}, nil
}
