package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainfall-archive/internal/models"
	"rainfall-archive/internal/repository"
	"rainfall-archive/internal/services"
	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

const oxfordCSV = `yyyy,jan,feb,mar,apr,may,jun,jul,aug,sep,oct,nov,dec,tmax,tmin,af,sun
1941,10,20,30,40,50,60,70,80,90,100,110,120,13.4,5.9,38,1432.0
1942,1,2,3,4,5,6,7,8,9,10,11,12,12.8,4.9,51,1390.6
`

type testServer struct {
	t       *testing.T
	router  *mux.Router
	metrics *metrics.Collector
	archive string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "oxford.csv"), []byte(oxfordCSV), 0o644))
	archivePath := filepath.Join(t.TempDir(), "archive.csv")

	logger := logging.NewNopLogger()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("test", reg)

	repo := repository.NewFileArchive(archivePath, logger, collector)
	loader := services.NewIngestionService(models.DefaultLayout(), logger, collector)
	handler := NewRainfallHandler(
		services.NewDatasetService(loader, logger, collector),
		services.NewArchiveService(repo, logger, collector),
		services.NewStatisticsService(repo, logger, collector),
		dataDir,
		logger,
		collector,
	)

	return &testServer{
		t:       t,
		router:  NewRouter(handler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		metrics: collector,
		archive: archivePath,
	}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) open(name string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/datasets", map[string]string{"name": name})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp DatasetResponse
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestOpenDataset(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/datasets", map[string]string{"name": "oxford.csv"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	resp := decode[DatasetResponse](t, rec)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, 24, resp.Observations)
	assert.Equal(t, []int{1941, 1942}, resp.Years)

	list := decode[[]DatasetResponse](t, s.do(http.MethodGet, "/api/datasets", nil))
	require.Len(t, list, 1)
	assert.Equal(t, resp.ID, list[0].ID)
}

func TestOpenDataset_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"missing file", map[string]string{"name": "nowhere.csv"}, http.StatusNotFound},
		{"missing name", map[string]string{}, http.StatusBadRequest},
		{"unknown field", map[string]string{"name": "oxford.csv", "path": "/etc"}, http.StatusBadRequest},
		{"parent directory", map[string]string{"name": ".."}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/datasets", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestOpenDataset_NameStaysInDataDir(t *testing.T) {
	s := newTestServer(t)

	// Only the base name is used, so this resolves to <dataDir>/oxford.csv
	rec := s.do(http.MethodPost, "/api/datasets", map[string]string{"name": "../../oxford.csv"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRainfallLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.open("oxford.csv")
	base := "/api/datasets/" + id

	rec := s.do(http.MethodGet, base+"/rainfall?month=3&year=1941", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30.0, *decode[ObservationResponse](t, rec).Rainfall)

	rec = s.do(http.MethodPut, base+"/rainfall", map[string]interface{}{"month": 3, "year": 1941, "rainfall": 33.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, base+"/rainfall?month=3&year=1941", nil)
	assert.Equal(t, 33.5, *decode[ObservationResponse](t, rec).Rainfall)

	rec = s.do(http.MethodDelete, base+"/rainfall?month=3&year=1941", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, base+"/rainfall?month=3&year=1941", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The cleared month is excluded from both sum and count
	rec = s.do(http.MethodGet, base+"/average?start_month=1&end_month=4&year=1941", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, (10.0+20+40)/3, decode[AverageResponse](t, rec).Average, 1e-9)
}

func TestRainfall_StatusMapping(t *testing.T) {
	s := newTestServer(t)
	id := s.open("oxford.csv")
	base := "/api/datasets/" + id

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown dataset", http.MethodGet, "/api/datasets/nope/rainfall?month=1&year=1941", nil, http.StatusNotFound},
		{"month out of range", http.MethodPut, base + "/rainfall", map[string]interface{}{"month": 13, "year": 2000, "rainfall": 5.0}, http.StatusBadRequest},
		{"negative rainfall", http.MethodPut, base + "/rainfall", map[string]interface{}{"month": 1, "year": 2000, "rainfall": -1}, http.StatusBadRequest},
		{"missing rainfall", http.MethodPut, base + "/rainfall", map[string]interface{}{"month": 1, "year": 2000}, http.StatusBadRequest},
		{"non-integer month", http.MethodGet, base + "/rainfall?month=jan&year=1941", nil, http.StatusBadRequest},
		{"missing year", http.MethodGet, base + "/rainfall?month=1", nil, http.StatusBadRequest},
		{"unknown key", http.MethodDelete, base + "/rainfall?month=1&year=1800", nil, http.StatusNotFound},
		{"empty average", http.MethodGet, base + "/average?start_month=1&end_month=12&year=1800", nil, http.StatusUnprocessableEntity},
		{"sma without archive", http.MethodGet, "/api/archive/sma?start_year=1941&end_year=1942&window=2", nil, http.StatusNotFound},
		{"sma zero window", http.MethodGet, "/api/archive/sma?start_year=1941&end_year=1942&window=0", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.want, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestPutQuarter(t *testing.T) {
	s := newTestServer(t)
	id := s.open("oxford.csv")
	base := "/api/datasets/" + id

	rec := s.do(http.MethodPut, base+"/quarters/summer", map[string]interface{}{"year": 2000, "rainfall": []float64{7, 8, 9}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, [3]int{7, 8, 9}, decode[QuarterResponse](t, rec).Months)

	rec = s.do(http.MethodGet, base+"/rainfall?month=8&year=2000", nil)
	assert.Equal(t, 8.0, *decode[ObservationResponse](t, rec).Rainfall)

	rec = s.do(http.MethodPut, base+"/quarters/fall", map[string]interface{}{"year": 2000, "rainfall": []float64{1, 2, 3}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, base+"/quarters/spring", map[string]interface{}{"year": 2000, "rainfall": []float64{1, 2}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArchiveAndMovingAverage(t *testing.T) {
	s := newTestServer(t)
	id := s.open("oxford.csv")
	base := "/api/datasets/" + id

	rec := s.do(http.MethodPost, base+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 24, decode[services.ArchiveResult](t, rec).Written)

	rec = s.do(http.MethodPut, base+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[services.ArchiveResult](t, rec)
	assert.Equal(t, 24, result.Removed)
	assert.Equal(t, 24, result.Written)

	rec = s.do(http.MethodGet, "/api/archive/sma?start_year=1942&end_year=1942&window=12", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[services.MovingAverageReport](t, rec)
	require.Len(t, report.Points, 1)
	assert.Equal(t, 6.5, report.Points[0].Value)
	assert.Equal(t, 12, report.Points[0].Month)

	rec = s.do(http.MethodDelete, base+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 24, decode[services.ArchiveResult](t, rec).Removed)

	data, err := os.ReadFile(s.archive)
	require.NoError(t, err)
	assert.Equal(t, "year,month,rain\n", string(data))
}

func TestCloseDataset(t *testing.T) {
	s := newTestServer(t)
	id := s.open("oxford.csv")

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/datasets/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/datasets/"+id, nil).Code)
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.DatasetsActive))
}

func TestRequestMetricsUseRouteTemplate(t *testing.T) {
	s := newTestServer(t)
	id := s.open("oxford.csv")

	s.do(http.MethodGet, "/api/datasets/"+id+"/rainfall?month=1&year=1941", nil)
	s.do(http.MethodGet, "/api/datasets/"+id+"/rainfall?month=1&year=1800", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		s.metrics.APIRequestsTotal.WithLabelValues("/api/datasets/{id}/rainfall", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		s.metrics.APIRequestsTotal.WithLabelValues("/api/datasets/{id}/rainfall", "GET", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		s.metrics.APIErrorsTotal.WithLabelValues("not_found", "/api/datasets/{id}/rainfall")))
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestDocsAndMetricsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/docs/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	spec := decode[map[string]interface{}](t, rec)
	paths := spec["paths"].(map[string]interface{})
	assert.Contains(t, paths, "/api/datasets/{id}/quarters/{quarter}")
	assert.Contains(t, paths, "/api/archive/sma")

	rec = s.do(http.MethodGet, "/api/docs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/docs/openapi.json")

	s.do(http.MethodGet, "/health", nil)
	rec = s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_api_requests_total"))
}

func TestToSnake(t *testing.T) {
	assert.Equal(t, "start_month", toSnake("StartMonth"))
	assert.Equal(t, "year", toSnake("Year"))
}
