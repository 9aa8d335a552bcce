package app

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	exportDomain "github.com/aradsms/bulk_export/internal/export_service/domain"
	"github.com/aradsms/bulk_export/internal/platform/messagebroker"
)

// MockJobStore for testing ExportService
type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) Upsert(ctx context.Context, job *exportDomain.ExportJobRecord) (exportDomain.UpsertOutcome, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(exportDomain.UpsertOutcome), args.Error(1)
}

func (m *MockJobStore) Lookup(ctx context.Context, id uuid.UUID) (*exportDomain.ExportJobRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exportDomain.ExportJobRecord), args.Error(1)
}

// MockStatusWriter for testing JobStatusConsumer
type MockStatusWriter struct {
	mock.Mock
}

func (m *MockStatusWriter) UpdateStatus(ctx context.Context, id uuid.UUID, status exportDomain.JobStatus, result json.RawMessage, errorMessage string) error {
	args := m.Called(ctx, id, status, result, errorMessage)
	return args.Error(0)
}

// MockNATSClient for testing the service and consumer
type MockNATSClient struct {
	mock.Mock
}

func (m *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

func (m *MockNATSClient) Subscribe(ctx context.Context, subject string, queueGroup string, handler func(msg messagebroker.Message)) (messagebroker.Subscription, error) {
	args := m.Called(ctx, subject, queueGroup, handler)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(messagebroker.Subscription), args.Error(1)
}

func (m *MockNATSClient) Close() {
	m.Called()
}

type MockSubscription struct {
	mock.Mock
}

func (m *MockSubscription) Unsubscribe() error {
	return m.Called().Error(0)
}

type testMessage struct {
	subject string
	data    []byte
}

func (t testMessage) Subject() string { return t.subject }
func (t testMessage) Data() []byte    { return t.data }
