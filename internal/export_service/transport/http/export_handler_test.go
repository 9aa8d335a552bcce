package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/bulk_export/internal/export_service/app"
	exportDomain "github.com/aradsms/bulk_export/internal/export_service/domain"
	redisRepo "github.com/aradsms/bulk_export/internal/export_service/repository/redis"
	adapter_http "github.com/aradsms/bulk_export/internal/export_service/transport/http"
	"github.com/aradsms/bulk_export/internal/export_service/validation"
)

const supportedDestination = "AzureBlockBlob"

// MockExportService for testing ExportHandler error mapping
type MockExportService struct {
	mock.Mock
}

func (m *MockExportService) CreateExport(ctx context.Context, req *exportDomain.CreateExportRequest) (*exportDomain.CreateExportResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(*exportDomain.CreateExportResponse), args.Error(1)
}

func (m *MockExportService) CreateScopedExport(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockExportService) GetExportStatus(ctx context.Context, requestURI string, id string) (*exportDomain.GetExportStatusResponse, error) {
	args := m.Called(ctx, requestURI, id)
	return args.Get(0).(*exportDomain.GetExportStatusResponse), args.Error(1)
}

type testEnv struct {
	router chi.Router
	repo   *redisRepo.RedisExportJobRepository
}

// newTestEnv wires the real service over a miniredis-backed store.
func newTestEnv(t *testing.T, enabled bool) testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg, err := exportDomain.NewExportConfiguration(enabled, []string{supportedDestination})
	require.NoError(t, err)
	repo := redisRepo.NewRedisExportJobRepository(client, nil, logger)
	service := app.NewExportService(repo, nil, cfg, logger)

	return testEnv{router: newRouter(service, cfg, logger), repo: repo}
}

func newRouter(service adapter_http.ExportAppService, cfg *exportDomain.ExportConfiguration, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	adapter_http.NewExportHandler(service, validation.NewRequestGate(cfg), "", logger).RegisterRoutes(r)
	return r
}

func kickoffRequest(path, prefer string) *http.Request {
	q := url.Values{}
	q.Set(exportDomain.QueryDestinationType, supportedDestination)
	q.Set(exportDomain.QueryDestinationConnectionString, "conn")
	req := httptest.NewRequest(http.MethodGet, path+"?"+q.Encode(), nil)
	req.Header.Set(exportDomain.HeaderAccept, exportDomain.FHIRJSONContentType)
	req.Header.Set(exportDomain.HeaderPrefer, prefer)
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeOutcome(t *testing.T, rr *httptest.ResponseRecorder) adapter_http.OperationOutcome {
	t.Helper()
	assert.Equal(t, exportDomain.FHIRJSONContentType, rr.Header().Get("Content-Type"))
	var outcome adapter_http.OperationOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outcome))
	require.Len(t, outcome.Issue, 1)
	assert.Equal(t, "OperationOutcome", outcome.ResourceType)
	return outcome
}

func TestExportHandler_KickoffAndPoll(t *testing.T) {
	env := newTestEnv(t, true)

	rr := serve(env.router, kickoffRequest("/$export", exportDomain.RespondAsyncPreference))
	require.Equal(t, http.StatusAccepted, rr.Code)
	location := rr.Header().Get(exportDomain.HeaderContentLocation)
	require.True(t, strings.HasPrefix(location, "http://example.com/_operations/export/"), location)

	id := strings.TrimPrefix(location, "http://example.com/_operations/export/")
	jobID, err := uuid.Parse(id)
	require.NoError(t, err)

	poll := serve(env.router, httptest.NewRequest(http.MethodGet, "/_operations/export/"+id, nil))
	assert.Equal(t, http.StatusAccepted, poll.Code)
	assert.Empty(t, poll.Body.String())

	manifest := `{"transactionTime":"2024-01-01T00:00:00Z","output":[]}`
	require.NoError(t, env.repo.UpdateStatus(context.Background(), jobID, exportDomain.StatusCompleted, json.RawMessage(manifest), ""))

	poll = serve(env.router, httptest.NewRequest(http.MethodGet, "/_operations/export/"+id, nil))
	assert.Equal(t, http.StatusOK, poll.Code)
	assert.Equal(t, exportDomain.ExportResultContentType, poll.Header().Get("Content-Type"))
	assert.JSONEq(t, manifest, poll.Body.String())
}

func TestExportHandler_FailedJobStillAccepted(t *testing.T) {
	env := newTestEnv(t, true)

	rr := serve(env.router, kickoffRequest("/$export", exportDomain.RespondAsyncPreference))
	require.Equal(t, http.StatusAccepted, rr.Code)
	id := rr.Header().Get(exportDomain.HeaderContentLocation)
	id = id[strings.LastIndex(id, "/")+1:]

	require.NoError(t, env.repo.UpdateStatus(context.Background(), uuid.MustParse(id), exportDomain.StatusFailed, nil, "boom"))

	poll := serve(env.router, httptest.NewRequest(http.MethodGet, "/_operations/export/"+id, nil))
	assert.Equal(t, http.StatusAccepted, poll.Code)
}

func TestExportHandler_KickoffRejected(t *testing.T) {
	env := newTestEnv(t, true)

	tests := []struct {
		name   string
		mutate func(r *http.Request)
	}{
		{"prefer with wait", func(r *http.Request) { r.Header.Set(exportDomain.HeaderPrefer, "respond-async, wait=10") }},
		{"missing accept", func(r *http.Request) { r.Header.Del(exportDomain.HeaderAccept) }},
		{"accept case differs", func(r *http.Request) { r.Header.Set(exportDomain.HeaderAccept, "application/FHIR+json") }},
		{"unsupported destination", func(r *http.Request) {
			q := r.URL.Query()
			q.Set(exportDomain.QueryDestinationType, "azureblockblob")
			r.URL.RawQuery = q.Encode()
		}},
		{"missing connection", func(r *http.Request) {
			q := r.URL.Query()
			q.Del(exportDomain.QueryDestinationConnectionString)
			r.URL.RawQuery = q.Encode()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := kickoffRequest("/$export", exportDomain.RespondAsyncPreference)
			tt.mutate(req)
			rr := serve(env.router, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, rr.Header().Get(exportDomain.HeaderContentLocation))
			assert.Equal(t, "invalid", decodeOutcome(t, rr).Issue[0].Code)
		})
	}
}

func TestExportHandler_ScopedRoutes(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		enabled    bool
		wantStatus int
		wantCode   string
	}{
		{"patient enabled", "/Patient/$export", true, http.StatusNotImplemented, "not-supported"},
		{"patient disabled", "/Patient/$export", false, http.StatusBadRequest, "invalid"},
		{"observation", "/Observation/$export", true, http.StatusBadRequest, "invalid"},
		{"group instance enabled", "/Group/g1/$export", true, http.StatusNotImplemented, "not-supported"},
		{"group instance disabled", "/Group/g1/$export", false, http.StatusBadRequest, "invalid"},
		{"patient instance", "/Patient/p1/$export", true, http.StatusBadRequest, "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.enabled)
			rr := serve(env.router, kickoffRequest(tt.path, exportDomain.RespondAsyncPreference))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCode, decodeOutcome(t, rr).Issue[0].Code)
		})
	}
}

func TestExportHandler_SystemExportDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	rr := serve(env.router, kickoffRequest("/$export", exportDomain.RespondAsyncPreference))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeOutcome(t, rr).Issue[0].Diagnostics, "export")
}

func TestExportHandler_StatusUnknownJob(t *testing.T) {
	env := newTestEnv(t, true)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		rr := serve(env.router, httptest.NewRequest(http.MethodGet, "/_operations/export/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not-found", decodeOutcome(t, rr).Issue[0].Code)
	}
}

func TestExportHandler_ServiceErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg, err := exportDomain.NewExportConfiguration(true, []string{supportedDestination})
	require.NoError(t, err)

	service := new(MockExportService)
	router := newRouter(service, cfg, logger)

	service.On("CreateExport", mock.Anything, mock.MatchedBy(func(req *exportDomain.CreateExportRequest) bool {
		return req.DestinationType == supportedDestination && req.DestinationConnectionString == "conn"
	})).Return(&exportDomain.CreateExportResponse{}, exportDomain.NewJobNotCreatedError(errors.New("conflict"))).Once()
	service.On("GetExportStatus", mock.Anything, mock.Anything, "abc").
		Return(&exportDomain.GetExportStatusResponse{}, exportDomain.NewServiceUnavailableError(errors.New("timeout"))).Once()

	rr := serve(router, kickoffRequest("/$export", exportDomain.RespondAsyncPreference))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	outcome := decodeOutcome(t, rr)
	assert.Equal(t, "processing", outcome.Issue[0].Code)
	assert.NotContains(t, outcome.Issue[0].Diagnostics, "conflict")

	rr = serve(router, httptest.NewRequest(http.MethodGet, "/_operations/export/abc", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	service.AssertExpectations(t)
}

func TestExportHandler_BaseURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg, err := exportDomain.NewExportConfiguration(true, []string{supportedDestination})
	require.NoError(t, err)

	service := new(MockExportService)
	service.On("CreateExport", mock.Anything, mock.Anything).
		Return(&exportDomain.CreateExportResponse{JobCreated: true, ID: "job-1"}, nil).Once()

	r := chi.NewRouter()
	adapter_http.NewExportHandler(service, validation.NewRequestGate(cfg), "https://fhir.example.org/r4/", logger).RegisterRoutes(r)

	rr := serve(r, kickoffRequest("/$export", exportDomain.RespondAsyncPreference))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "https://fhir.example.org/r4/_operations/export/job-1", rr.Header().Get(exportDomain.HeaderContentLocation))
}
