package api

import (
	"context"
	"time"

	"github.com/xkilldash9x/aegiscore/internal/store"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports which store is serving and the gate position.
type HealthResponse struct {
	Status     string     `json:"status"`
	Mode       string     `json:"mode"`
	Gate       string     `json:"gate"`
	OpenUntil  *time.Time `json:"open_until,omitempty"`
	Classifier string     `json:"classifier,omitempty"`
}

// StoreHealth is satisfied by *store.Adapter.
type StoreHealth interface {
	Mode(ctx context.Context) string
	GateState() store.GateState
}
