// Package flowsource produces flow records for the detection pipeline, either
// synthesized or read from a JSON-lines telemetry file.
package flowsource

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/xkilldash9x/aegiscore/api/schemas"
)

var (
	protocols = []string{schemas.ProtocolTCP, schemas.ProtocolUDP, schemas.ProtocolICMP}

	categoryPorts = map[string][]int{
		schemas.CategoryNormal:     {80, 443, 53, 22, 21},
		schemas.CategoryDDoS:       {80, 443},
		schemas.CategoryBruteForce: {22, 21, 3389},
	}
)

// SynthOption configures a Synthesizer.
type SynthOption func(*Synthesizer)

// WithSeed makes the generated sequence reproducible.
func WithSeed(seed uint64) SynthOption {
	return func(s *Synthesizer) { s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) SynthOption {
	return func(s *Synthesizer) { s.now = now }
}

// WithCount bounds the number of records one Flows call emits. Zero means unbounded.
func WithCount(n int) SynthOption {
	return func(s *Synthesizer) { s.count = n }
}

// WithInterval spaces emitted records out in time.
func WithInterval(d time.Duration) SynthOption {
	return func(s *Synthesizer) { s.interval = d }
}

// Synthesizer generates flow records with a fixed traffic mix: 85% Normal and
// 5% each of DDoS, Brute Force and Port Scan. Every category has its own port
// and packet size profile.
type Synthesizer struct {
	mu       sync.Mutex
	rng      *rand.Rand
	now      func() time.Time
	count    int
	interval time.Duration
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(opts ...SynthOption) *Synthesizer {
	s := &Synthesizer{now: time.Now}
	WithSeed(uint64(time.Now().UnixNano()))(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next draws one record from the traffic mix.
func (s *Synthesizer) Next() schemas.FlowRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generate(s.pickCategory())
}

// Generate draws one record of a forced category.
func (s *Synthesizer) Generate(category string) (schemas.FlowRecord, error) {
	switch category {
	case schemas.CategoryNormal, schemas.CategoryDDoS, schemas.CategoryBruteForce, schemas.CategoryPortScan:
	default:
		return schemas.FlowRecord{}, fmt.Errorf("unknown traffic category %q", category)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generate(category), nil
}

// Batch draws n records.
func (s *Synthesizer) Batch(n int) []schemas.FlowRecord {
	out := make([]schemas.FlowRecord, n)
	for i := range out {
		out[i] = s.Next()
	}
	return out
}

// Flows implements schemas.FlowSource.
func (s *Synthesizer) Flows(ctx context.Context) (<-chan schemas.FlowRecord, error) {
	out := make(chan schemas.FlowRecord)
	go func() {
		defer close(out)
		var tick <-chan time.Time
		if s.interval > 0 {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for i := 0; s.count == 0 || i < s.count; i++ {
			if tick != nil && i > 0 {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- s.Next():
			}
		}
	}()
	return out, nil
}

func (s *Synthesizer) pickCategory() string {
	roll := s.rng.Float64()
	switch {
	case roll < 0.85:
		return schemas.CategoryNormal
	case roll < 0.90:
		return schemas.CategoryDDoS
	case roll < 0.95:
		return schemas.CategoryBruteForce
	default:
		return schemas.CategoryPortScan
	}
}

func (s *Synthesizer) generate(category string) schemas.FlowRecord {
	return schemas.FlowRecord{
		Timestamp:  s.now().Format(schemas.TimestampLayout),
		SourceIP:   fmt.Sprintf("192.168.1.%d", s.between(1, 254)),
		DestIP:     fmt.Sprintf("10.0.0.%d", s.between(1, 19)),
		Protocol:   protocols[s.rng.IntN(len(protocols))],
		PacketSize: s.packetSize(category),
		DestPort:   s.port(category),
		Label:      category,
	}
}

func (s *Synthesizer) port(category string) int {
	if category == schemas.CategoryPortScan {
		return s.between(1, 65535)
	}
	ports, ok := categoryPorts[category]
	if !ok {
		return 80
	}
	return ports[s.rng.IntN(len(ports))]
}

func (s *Synthesizer) packetSize(category string) int {
	switch category {
	case schemas.CategoryDDoS:
		// Both draws happen so the sequence does not depend on which is kept.
		syn, flood := s.between(0, 10), s.between(1000, 1500)
		if s.rng.IntN(2) == 0 {
			return syn
		}
		return flood
	case schemas.CategoryBruteForce:
		return s.between(0, 50)
	case schemas.CategoryPortScan:
		return s.between(0, 20)
	default:
		return s.between(40, 1500)
	}
}

// between returns a uniform int in [lo, hi].
func (s *Synthesizer) between(lo, hi int) int {
	return lo + s.rng.IntN(hi-lo+1)
}
