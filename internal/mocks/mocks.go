// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Storage() config.StorageConfig {
	args := m.Called()
	return args.Get(0).(config.StorageConfig)
}

func (m *MockConfig) Detection() config.DetectionConfig {
	args := m.Called()
	return args.Get(0).(config.DetectionConfig)
}

func (m *MockConfig) Classifier() config.ClassifierConfig {
	args := m.Called()
	return args.Get(0).(config.ClassifierConfig)
}

func (m *MockConfig) Topology() config.TopologyConfig {
	args := m.Called()
	return args.Get(0).(config.TopologyConfig)
}

func (m *MockConfig) Mitigation() config.MitigationConfig {
	args := m.Called()
	return args.Get(0).(config.MitigationConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

// --- Setters ---

func (m *MockConfig) SetDatabaseURL(url string) {
	m.Called(url)
}

func (m *MockConfig) SetStorageFallbackPath(path string) {
	m.Called(path)
}

func (m *MockConfig) SetDetectionBatchSize(n int) {
	m.Called(n)
}

func (m *MockConfig) SetServerAddr(addr string) {
	m.Called(addr)
}

// -- Store Mock --

// MockAlertStore mocks schemas.AlertStore.
type MockAlertStore struct {
	mock.Mock
}

var _ schemas.AlertStore = (*MockAlertStore)(nil)

func (m *MockAlertStore) Query(ctx context.Context, limit int, filter schemas.StatusFilter) schemas.QueryResult {
	args := m.Called(ctx, limit, filter)
	return args.Get(0).(schemas.QueryResult)
}

func (m *MockAlertStore) Write(ctx context.Context, records []schemas.AlertRecord) (schemas.WriteAck, error) {
	args := m.Called(ctx, records)
	return args.Get(0).(schemas.WriteAck), args.Error(1)
}

func (m *MockAlertStore) Append(ctx context.Context, alerts []schemas.AlertRecord) (schemas.WriteAck, error) {
	args := m.Called(ctx, alerts)
	return args.Get(0).(schemas.WriteAck), args.Error(1)
}

func (m *MockAlertStore) UpdateStatus(ctx context.Context, id string, status schemas.AlertStatus) (schemas.AlertRecord, error) {
	args := m.Called(ctx, id, status)
	return args.Get(0).(schemas.AlertRecord), args.Error(1)
}

func (m *MockAlertStore) Get(ctx context.Context, id string) (schemas.AlertRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(schemas.AlertRecord), args.Error(1)
}

// -- Detection Mocks --

// MockClassifier mocks schemas.Classifier.
type MockClassifier struct {
	mock.Mock
}

var _ schemas.Classifier = (*MockClassifier)(nil)

func (m *MockClassifier) Predict(ctx context.Context, vector schemas.FeatureVector) (schemas.Prediction, error) {
	args := m.Called(ctx, vector)
	return args.Get(0).(schemas.Prediction), args.Error(1)
}

// MockFlowSource mocks schemas.FlowSource. Return a channel the test controls.
type MockFlowSource struct {
	mock.Mock
}

var _ schemas.FlowSource = (*MockFlowSource)(nil)

func (m *MockFlowSource) Flows(ctx context.Context) (<-chan schemas.FlowRecord, error) {
	args := m.Called(ctx)
	ch, _ := args.Get(0).(<-chan schemas.FlowRecord)
	return ch, args.Error(1)
}

// -- Response Mocks --

// MockMitigator mocks schemas.Mitigator.
type MockMitigator struct {
	mock.Mock
}

var _ schemas.Mitigator = (*MockMitigator)(nil)

func (m *MockMitigator) Block(ctx context.Context, alert schemas.AlertRecord) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}
