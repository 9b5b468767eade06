package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/mocks"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// -- Mocks --

// recordingStore is an AlertStore that only records appends.
type recordingStore struct {
	mu        sync.Mutex
	appends   [][]schemas.AlertRecord
	appendErr error
}

func (s *recordingStore) Query(ctx context.Context, limit int, filter schemas.StatusFilter) schemas.QueryResult {
	return schemas.QueryResult{Source: schemas.SourceNone}
}

func (s *recordingStore) Write(ctx context.Context, records []schemas.AlertRecord) (schemas.WriteAck, error) {
	return schemas.WriteAck{}, nil
}

func (s *recordingStore) Append(ctx context.Context, alerts []schemas.AlertRecord) (schemas.WriteAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends = append(s.appends, append([]schemas.AlertRecord(nil), alerts...))
	return schemas.WriteAck{Records: len(alerts), Persisted: s.appendErr == nil}, s.appendErr
}

func (s *recordingStore) UpdateStatus(ctx context.Context, id string, status schemas.AlertStatus) (schemas.AlertRecord, error) {
	return schemas.AlertRecord{}, schemas.ErrNotFound
}

func (s *recordingStore) Get(ctx context.Context, id string) (schemas.AlertRecord, error) {
	return schemas.AlertRecord{}, schemas.ErrNotFound
}

func (s *recordingStore) Appends() [][]schemas.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends
}

// -- Helpers --

func flow(src string, port, size int) schemas.FlowRecord {
	return schemas.FlowRecord{
		Timestamp:  "2024-03-01 12:00:00",
		SourceIP:   src,
		DestIP:     "10.0.0.10",
		Protocol:   schemas.ProtocolTCP,
		PacketSize: size,
		DestPort:   port,
	}
}

func predict(label string, p float64) schemas.Prediction {
	return schemas.Prediction{Label: label, Probabilities: map[string]float64{label: p}}
}

// vectorFor matches the vector built for a record with the given port.
func vectorFor(port int) interface{} {
	return mock.MatchedBy(func(v schemas.FeatureVector) bool {
		got, _ := v.Get(FeatureDestPort)
		return got == float64(port)
	})
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("alert-%d", n)
	}
}

// -- Vectorizer --

func TestVectorizer(t *testing.T) {
	v := NewVectorizer()

	t.Run("emits exactly the required features in order", func(t *testing.T) {
		vec := v.Vectorize(flow("192.168.1.1", 443, 900))
		assert.Equal(t, RequiredFeatures, vec.Names())
		assert.Equal(t, []float64{443, 0, 0, 0, 900}, vec.Values())
	})

	t.Run("derives packet size from forward counters", func(t *testing.T) {
		rec := flow("192.168.1.1", 80, 0)
		rec.Extra = map[string]float64{FeatureTotalLFwdPackets: 3000, FeatureTotalFwdPackets: 3, FeatureFlowDuration: 12.5}
		vec := v.Vectorize(rec)
		assert.Equal(t, []float64{80, 12.5, 3, 3000, 1000}, vec.Values())
	})

	t.Run("zero packet count divides by one", func(t *testing.T) {
		vec := v.VectorizeFrame(map[string]float64{FeatureTotalLFwdPackets: 64, FeatureTotalFwdPackets: 0})
		size, ok := vec.Get(FeaturePacketSize)
		require.True(t, ok)
		assert.Equal(t, 64.0, size)
	})

	t.Run("missing derivation inputs impute zero", func(t *testing.T) {
		vec := v.VectorizeFrame(map[string]float64{FeatureTotalLFwdPackets: 64})
		size, _ := vec.Get(FeaturePacketSize)
		assert.Equal(t, 0.0, size)
	})

	t.Run("non-finite values become zero", func(t *testing.T) {
		vec := v.VectorizeFrame(map[string]float64{FeatureFlowDuration: math.NaN(), FeatureDestPort: math.Inf(1)})
		assert.Equal(t, []float64{0, 0, 0, 0, 0}, vec.Values())
	})

	t.Run("unknown extras are dropped", func(t *testing.T) {
		vec := v.VectorizeFrame(map[string]float64{"ttl": 64})
		assert.Len(t, vec, len(RequiredFeatures))
		_, ok := vec.Get("ttl")
		assert.False(t, ok)
	})

	t.Run("features list is a copy", func(t *testing.T) {
		f := v.Features()
		f[0] = "mutated"
		assert.Equal(t, FeatureDestPort, v.Features()[0])
	})
}

// -- Pipeline --

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()

	t.Run("scores, escalates and appends once", func(t *testing.T) {
		clf := new(mocks.MockClassifier)
		clf.On("Predict", mock.Anything, vectorFor(53)).Return(predict(schemas.CategoryNormal, 0.9), nil)
		clf.On("Predict", mock.Anything, vectorFor(80)).Return(predict(schemas.CategoryDDoS, 0.8), nil)
		store := &recordingStore{}

		p := NewPipeline(NewVectorizer(), clf, store, zap.NewNop(), WithIDGenerator(sequentialIDs()))
		report, err := p.Run(ctx, []schemas.FlowRecord{
			flow("192.168.1.9", 53, 300),
			flow("192.168.1.7", 80, 5),
			flow("192.168.1.7", 80, 5),
		})
		require.NoError(t, err)

		assert.Equal(t, 3, report.Processed)
		assert.Equal(t, 0, report.Skipped)
		assert.Equal(t, 1, report.Escalations)
		require.Len(t, report.Alerts, 2)

		first, second := report.Alerts[0], report.Alerts[1]
		assert.Equal(t, "alert-1", first.ID)
		assert.Equal(t, 72.0, first.RiskScore)
		assert.False(t, first.EscalationFlag)
		assert.Equal(t, 86.4, second.RiskScore)
		assert.True(t, second.EscalationFlag)
		assert.Equal(t, schemas.StatusActive, second.Status)
		assert.Equal(t, "10.0.0.10", second.DestinationIP)
		assert.Equal(t, 0.8, second.Confidence)

		require.Len(t, store.Appends(), 1)
		assert.Equal(t, report.Alerts, store.Appends()[0])
		assert.True(t, report.Ack.Persisted)
		clf.AssertExpectations(t)
	})

	t.Run("bad records are skipped and the batch continues", func(t *testing.T) {
		clf := new(mocks.MockClassifier)
		clf.On("Predict", mock.Anything, vectorFor(22)).Return(schemas.Prediction{}, errors.New("model offline")).Once()
		clf.On("Predict", mock.Anything, vectorFor(3389)).Return(predict(schemas.CategoryBruteForce, 0.7), nil).Once()
		store := &recordingStore{}

		invalid := flow("192.168.1.3", 0, 10)
		p := NewPipeline(NewVectorizer(), clf, store, zap.NewNop())
		report, err := p.Run(ctx, []schemas.FlowRecord{invalid, flow("192.168.1.4", 22, 30), flow("192.168.1.5", 3389, 30)})
		require.NoError(t, err)

		assert.Equal(t, 3, report.Processed)
		assert.Equal(t, 2, report.Skipped)
		require.Len(t, report.Alerts, 1)
		assert.Equal(t, schemas.CategoryBruteForce, report.Alerts[0].PredictedLabel)
		assert.Equal(t, 70.0, report.Alerts[0].RiskScore)
		clf.AssertExpectations(t)
	})

	t.Run("baseline-only batch does not touch the store", func(t *testing.T) {
		clf := new(mocks.MockClassifier)
		clf.On("Predict", mock.Anything, mock.Anything).Return(predict(schemas.CategoryNormal, 0.99), nil)
		store := &recordingStore{}

		report, err := NewPipeline(NewVectorizer(), clf, store, zap.NewNop()).Run(ctx, []schemas.FlowRecord{flow("192.168.1.1", 443, 700)})
		require.NoError(t, err)
		assert.Empty(t, report.Alerts)
		assert.Empty(t, store.Appends())
	})

	t.Run("escalation does not carry over between runs", func(t *testing.T) {
		clf := new(mocks.MockClassifier)
		clf.On("Predict", mock.Anything, mock.Anything).Return(predict(schemas.CategoryPortScan, 1.0), nil)
		p := NewPipeline(NewVectorizer(), clf, &recordingStore{}, zap.NewNop())

		for i := 0; i < 2; i++ {
			report, err := p.Run(ctx, []schemas.FlowRecord{flow("192.168.1.8", 4444, 10)})
			require.NoError(t, err)
			require.Len(t, report.Alerts, 1)
			assert.False(t, report.Alerts[0].EscalationFlag)
			assert.Equal(t, 60.0, report.Alerts[0].RiskScore)
		}
	})

	t.Run("persistence failure is returned with the report", func(t *testing.T) {
		clf := new(mocks.MockClassifier)
		clf.On("Predict", mock.Anything, mock.Anything).Return(predict(schemas.CategoryDDoS, 0.5), nil)
		store := &recordingStore{appendErr: errors.New("disk full")}

		report, err := NewPipeline(NewVectorizer(), clf, store, zap.NewNop()).Run(ctx, []schemas.FlowRecord{flow("192.168.1.1", 80, 2)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to persist 1 alerts")
		assert.Len(t, report.Alerts, 1)
		assert.False(t, report.Ack.Persisted)
	})

	t.Run("cancelled context stops the run", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		store := &recordingStore{}
		_, err := NewPipeline(NewVectorizer(), new(mocks.MockClassifier), store, zap.NewNop()).Run(cctx, []schemas.FlowRecord{flow("192.168.1.1", 80, 2)})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, store.Appends())
	})
}

// -- Stream --

type sliceSource struct {
	records []schemas.FlowRecord
}

func (s sliceSource) Flows(ctx context.Context) (<-chan schemas.FlowRecord, error) {
	out := make(chan schemas.FlowRecord)
	go func() {
		defer close(out)
		for _, r := range s.records {
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func TestPipelineStream(t *testing.T) {
	clf := new(mocks.MockClassifier)
	clf.On("Predict", mock.Anything, mock.Anything).Return(predict(schemas.CategoryDDoS, 0.9), nil)
	store := &recordingStore{}
	p := NewPipeline(NewVectorizer(), clf, store, zap.NewNop())

	records := make([]schemas.FlowRecord, 5)
	for i := range records {
		records[i] = flow(fmt.Sprintf("192.168.1.%d", i+1), 80, 3)
	}

	var sizes []int
	err := p.Stream(context.Background(), sliceSource{records: records}, StreamConfig{BatchSize: 2, FlushInterval: time.Hour}, func(r Report) {
		sizes = append(sizes, r.Processed)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Len(t, store.Appends(), 3)
}

func TestPipelineStreamEscalatesAcrossBatches(t *testing.T) {
	clf := new(mocks.MockClassifier)
	clf.On("Predict", mock.Anything, mock.Anything).Return(predict(schemas.CategoryDDoS, 0.5), nil)
	core, logs := observer.New(zapcore.InfoLevel)
	p := NewPipeline(NewVectorizer(), clf, &recordingStore{}, zap.New(core))

	records := []schemas.FlowRecord{
		flow("192.168.1.7", 80, 3),
		flow("192.168.1.7", 80, 3),
		flow("192.168.1.7", 80, 3),
	}

	var scores []float64
	var flags []bool
	err := p.Stream(context.Background(), sliceSource{records: records}, StreamConfig{BatchSize: 1, FlushInterval: time.Hour}, func(r Report) {
		require.Len(t, r.Alerts, 1)
		scores = append(scores, r.Alerts[0].RiskScore)
		flags = append(flags, r.Alerts[0].EscalationFlag)
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{45, 54, 54}, scores)
	assert.Equal(t, []bool{false, true, true}, flags)

	escalations := logs.FilterMessage("Repeat offender escalated.").All()
	require.Len(t, escalations, 2)
	assert.Equal(t, int64(3), escalations[1].ContextMap()["occurrences"])

	// Separate Run calls do not share offender counts.
	for i := 0; i < 2; i++ {
		report, err := p.Run(context.Background(), records[:1])
		require.NoError(t, err)
		assert.False(t, report.Alerts[0].EscalationFlag)
	}
}

func TestPipelineStreamSourceError(t *testing.T) {
	source := new(mocks.MockFlowSource)
	source.On("Flows", mock.Anything).Return(nil, errors.New("flow file missing")).Once()
	p := NewPipeline(NewVectorizer(), new(mocks.MockClassifier), &recordingStore{}, zap.NewNop())

	err := p.Stream(context.Background(), source, StreamConfig{}, nil)
	assert.ErrorContains(t, err, "flow file missing")
	source.AssertExpectations(t)
}
