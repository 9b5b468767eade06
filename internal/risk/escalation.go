package risk

import (
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EscalationFactor multiplies the score of every repeat alert from a source.
const EscalationFactor = 1.2

// Escalator counts non-baseline alerts per source ip for the lifetime of one
// detection run. The counters are bounded: once capacity distinct sources are
// tracked, the least recently seen source is forgotten.
type Escalator struct {
	baseline string

	mu        sync.Mutex
	offenders *lru.Cache[string, int]
}

// NewEscalator creates an Escalator tracking up to capacity sources. Alerts of
// the baseline category are never counted or escalated.
func NewEscalator(capacity int, baseline string) (*Escalator, error) {
	cache, err := lru.New[string, int](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create offender cache: %w", err)
	}
	return &Escalator{baseline: baseline, offenders: cache}, nil
}

// Score records one alert from sourceIP and returns its final score. The
// second and later alerts from a source get min(base*1.2, 100). The factor is
// applied to base each time and never compounds.
func (e *Escalator) Score(sourceIP, category string, base float64) (float64, bool) {
	if category == e.baseline {
		return base, false
	}

	e.mu.Lock()
	count, _ := e.offenders.Get(sourceIP)
	count++
	e.offenders.Add(sourceIP, count)
	e.mu.Unlock()

	if count > 1 {
		return Round2(math.Min(base*EscalationFactor, 100)), true
	}
	return base, false
}

// Count returns how many alerts have been recorded for sourceIP.
func (e *Escalator) Count(sourceIP string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	count, _ := e.offenders.Peek(sourceIP)
	return count
}
