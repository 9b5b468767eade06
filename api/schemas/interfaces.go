package schemas

import (
	"context"
)

// -- Store Interface --

// QuerySource records where a query result was served from.
type QuerySource string

const (
	SourcePrimary  QuerySource = "primary"
	SourceCache    QuerySource = "cache"
	SourceFallback QuerySource = "fallback"
	// SourceNone means no store could be read. An empty result with this
	// source is "data unavailable", not "no data".
	SourceNone QuerySource = "none"
)

// QueryResult is an ordered (newest first) slice of alerts plus its origin.
type QueryResult struct {
	Alerts []AlertRecord `json:"alerts"`
	Source QuerySource   `json:"source"`
}

// Available reports whether any store answered the query.
func (r QueryResult) Available() bool {
	return r.Source != SourceNone
}

// WriteAck summarizes what a write-through call reached.
type WriteAck struct {
	Records   int  `json:"records"`   // Size of the snapshot now held in the cache.
	Persisted bool `json:"persisted"` // Snapshot reached the fallback file.
	Primary   bool `json:"primary"`   // Records were inserted into the primary store.
}

// AlertStore is the persistence surface the rest of the core depends on. It is
// satisfied by the store.Adapter, which hides the primary/fallback failover.
type AlertStore interface {
	// Query returns up to limit alerts matching filter, newest first. It never
	// fails; see QueryResult.Source for provenance.
	Query(ctx context.Context, limit int, filter StatusFilter) QueryResult
	// Write replaces the current snapshot with records (write-through).
	Write(ctx context.Context, records []AlertRecord) (WriteAck, error)
	// Append prepends alerts to the current snapshot, applies retention and writes it through.
	Append(ctx context.Context, alerts []AlertRecord) (WriteAck, error)
	// UpdateStatus changes the lifecycle state of a single alert.
	UpdateStatus(ctx context.Context, id string, status AlertStatus) (AlertRecord, error)
	// Get looks a single alert up by id.
	Get(ctx context.Context, id string) (AlertRecord, error)
}

// -- Detection Interfaces --

// Classifier is the external model capability. Implementations must reject a
// vector whose feature set does not match the model version they serve.
type Classifier interface {
	Predict(ctx context.Context, vector FeatureVector) (Prediction, error)
}

// FlowSource produces flow records until the context ends or the source is exhausted.
type FlowSource interface {
	Flows(ctx context.Context) (<-chan FlowRecord, error)
}

// -- Response Interfaces --

// Mitigator performs the side effect behind a block action. It must not
// mutate the alert.
type Mitigator interface {
	Block(ctx context.Context, alert AlertRecord) error
}
