package testutil

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockMetricsRecorder is a testify mock of the alignment metrics recorder.
// Use NewMockMetricsRecorder for a mock that accepts every call.
type MockMetricsRecorder struct {
	mock.Mock
}

// NewMockMetricsRecorder returns a recorder with permissive expectations;
// assert on calls with AssertCalled.
func NewMockMetricsRecorder() *MockMetricsRecorder {
	m := &MockMetricsRecorder{}
	m.On("ObserveAlignment", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("ObserveScore", mock.Anything, mock.Anything).Maybe()
	m.On("ObserveProducts", mock.Anything).Maybe()
	m.On("ObserveScreening", mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("TrackScreening").Return(func() {}).Maybe()
	m.On("ObserveCache", mock.Anything, mock.Anything).Maybe()
	return m
}

func (m *MockMetricsRecorder) ObserveAlignment(strategy, status string, d time.Duration, evaluations int) {
	m.Called(strategy, status, d, evaluations)
}

func (m *MockMetricsRecorder) ObserveScore(metric string, score float64) {
	m.Called(metric, score)
}

func (m *MockMetricsRecorder) ObserveProducts(count int) {
	m.Called(count)
}

func (m *MockMetricsRecorder) ObserveScreening(succeeded, failed int, d time.Duration) {
	m.Called(succeeded, failed, d)
}

func (m *MockMetricsRecorder) TrackScreening() func() {
	args := m.Called()
	return args.Get(0).(func())
}

func (m *MockMetricsRecorder) ObserveCache(cache string, hit bool) {
	m.Called(cache, hit)
}
