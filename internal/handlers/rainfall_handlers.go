package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"rainfall-archive/internal/models"
	"rainfall-archive/internal/records"
	"rainfall-archive/internal/services"
	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

var validate = validator.New()

// RainfallHandler handles dataset, archive and moving-average endpoints
type RainfallHandler struct {
	datasets *services.DatasetService
	archive  *services.ArchiveService
	stats    *services.StatisticsService
	dataDir  string
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewRainfallHandler creates a new rainfall handler. Dataset names posted to
// the API are resolved inside dataDir.
func NewRainfallHandler(
	datasets *services.DatasetService,
	archive *services.ArchiveService,
	stats *services.StatisticsService,
	dataDir string,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *RainfallHandler {
	return &RainfallHandler{
		datasets: datasets,
		archive:  archive,
		stats:    stats,
		dataDir:  dataDir,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// DatasetResponse describes a loaded dataset
type DatasetResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Observations int       `json:"observations"`
	Years        []int     `json:"years"`
	RowsRejected int       `json:"rows_rejected,omitempty"`
	LoadedAt     time.Time `json:"loaded_at"`
}

// ObservationResponse is a single (year, month) value
type ObservationResponse struct {
	Year     int      `json:"year"`
	Month    int      `json:"month"`
	Rainfall *float64 `json:"rainfall"`
}

// AverageResponse is the result of an average query
type AverageResponse struct {
	Year       int     `json:"year"`
	StartMonth int     `json:"start_month"`
	EndMonth   int     `json:"end_month"`
	Average    float64 `json:"average"`
}

// QuarterResponse is the result of a quarter upsert
type QuarterResponse struct {
	Quarter  string    `json:"quarter"`
	Year     int       `json:"year"`
	Months   [3]int    `json:"months"`
	Rainfall []float64 `json:"rainfall"`
}

type openDatasetRequest struct {
	Name string `json:"name" validate:"required"`
}

type rainfallRequest struct {
	Month    *int     `json:"month" validate:"required"`
	Year     *int     `json:"year" validate:"required"`
	Rainfall *float64 `json:"rainfall" validate:"required"`
}

type quarterRequest struct {
	Year     *int      `json:"year" validate:"required"`
	Rainfall []float64 `json:"rainfall" validate:"required"`
}

type keyQuery struct {
	Month *int `validate:"required"`
	Year  *int `validate:"required"`
}

type averageQuery struct {
	StartMonth *int `validate:"required"`
	EndMonth   *int `validate:"required"`
	Year       *int `validate:"required"`
}

type smaQuery struct {
	StartYear *int `validate:"required"`
	EndYear   *int `validate:"required"`
	Window    *int `validate:"required"`
}

// OpenDataset handles POST /api/datasets
func (h *RainfallHandler) OpenDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req openDatasetRequest
	if err := h.decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	name := filepath.Base(req.Name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		h.sendError(w, r, &models.ValidationError{
			Field:   "name",
			Value:   req.Name,
			Message: fmt.Sprintf("invalid dataset name %q", req.Name),
		})
		return
	}

	ds, result, err := h.datasets.Open(ctx, name, filepath.Join(h.dataDir, name))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendJSON(w, DatasetResponse{
		ID:           ds.ID,
		Name:         ds.Name,
		Observations: result.Store.Len(),
		Years:        result.Store.Years(),
		RowsRejected: result.RowsRejected,
		LoadedAt:     ds.LoadedAt,
	}, http.StatusCreated)
}

// ListDatasets handles GET /api/datasets
func (h *RainfallHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets := h.datasets.List()
	out := make([]DatasetResponse, 0, len(datasets))
	for _, ds := range datasets {
		resp := DatasetResponse{ID: ds.ID, Name: ds.Name, LoadedAt: ds.LoadedAt}
		_ = ds.View(func(store *records.Store) error {
			resp.Observations = store.Len()
			resp.Years = store.Years()
			return nil
		})
		out = append(out, resp)
	}
	h.sendJSON(w, out, http.StatusOK)
}

// CloseDataset handles DELETE /api/datasets/{id}
func (h *RainfallHandler) CloseDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.datasets.Close(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAverage handles GET /api/datasets/{id}/average
func (h *RainfallHandler) GetAverage(w http.ResponseWriter, r *http.Request) {
	ds, err := h.dataset(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	var q averageQuery
	if err := bindQuery(r, map[string]**int{
		"start_month": &q.StartMonth,
		"end_month":   &q.EndMonth,
		"year":        &q.Year,
	}, &q); err != nil {
		h.sendError(w, r, err)
		return
	}

	var avg float64
	err = ds.View(func(store *records.Store) error {
		var err error
		avg, err = store.Average(*q.StartMonth, *q.EndMonth, *q.Year)
		return err
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendJSON(w, AverageResponse{
		Year:       *q.Year,
		StartMonth: *q.StartMonth,
		EndMonth:   *q.EndMonth,
		Average:    avg,
	}, http.StatusOK)
}

// GetRainfall handles GET /api/datasets/{id}/rainfall
func (h *RainfallHandler) GetRainfall(w http.ResponseWriter, r *http.Request) {
	ds, err := h.dataset(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	var q keyQuery
	if err := bindQuery(r, map[string]**int{"month": &q.Month, "year": &q.Year}, &q); err != nil {
		h.sendError(w, r, err)
		return
	}

	var value float64
	err = ds.View(func(store *records.Store) error {
		var err error
		value, err = store.Rainfall(*q.Month, *q.Year)
		return err
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendJSON(w, ObservationResponse{Year: *q.Year, Month: *q.Month, Rainfall: &value}, http.StatusOK)
}

// PutRainfall handles PUT /api/datasets/{id}/rainfall
func (h *RainfallHandler) PutRainfall(w http.ResponseWriter, r *http.Request) {
	ds, err := h.dataset(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	var req rainfallRequest
	if err := h.decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	err = ds.Update(func(store *records.Store) error {
		return store.Insert(*req.Month, *req.Year, *req.Rainfall)
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.logger.Info(r.Context(), "[API_RAINFALL_SET] Rainfall value stored", logging.Fields{
		"dataset_id": ds.ID,
		"year":       *req.Year,
		"month":      *req.Month,
	})
	h.sendJSON(w, ObservationResponse{Year: *req.Year, Month: *req.Month, Rainfall: req.Rainfall}, http.StatusOK)
}

// DeleteRainfall handles DELETE /api/datasets/{id}/rainfall
func (h *RainfallHandler) DeleteRainfall(w http.ResponseWriter, r *http.Request) {
	ds, err := h.dataset(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	var q keyQuery
	if err := bindQuery(r, map[string]**int{"month": &q.Month, "year": &q.Year}, &q); err != nil {
		h.sendError(w, r, err)
		return
	}

	err = ds.Update(func(store *records.Store) error {
		return store.Delete(*q.Month, *q.Year)
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.logger.Info(r.Context(), "[API_RAINFALL_DELETE] Rainfall value cleared", logging.Fields{
		"dataset_id": ds.ID,
		"year":       *q.Year,
		"month":      *q.Month,
	})
	w.WriteHeader(http.StatusNoContent)
}

// PutQuarter handles PUT /api/datasets/{id}/quarters/{quarter}
func (h *RainfallHandler) PutQuarter(w http.ResponseWriter, r *http.Request) {
	ds, err := h.dataset(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	var req quarterRequest
	if err := h.decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	name := mux.Vars(r)["quarter"]
	err = ds.Update(func(store *records.Store) error {
		return store.InsertQuarter(name, *req.Year, req.Rainfall)
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	quarter, _ := models.ParseQuarter(name)
	h.sendJSON(w, QuarterResponse{
		Quarter:  name,
		Year:     *req.Year,
		Months:   quarter.Months(),
		Rainfall: req.Rainfall,
	}, http.StatusOK)
}

// InsertArchive handles POST /api/datasets/{id}/archive
func (h *RainfallHandler) InsertArchive(w http.ResponseWriter, r *http.Request) {
	h.archiveOp(w, r, h.archive.Insert)
}

// DeleteArchive handles DELETE /api/datasets/{id}/archive
func (h *RainfallHandler) DeleteArchive(w http.ResponseWriter, r *http.Request) {
	h.archiveOp(w, r, h.archive.Delete)
}

// ReplaceArchive handles PUT /api/datasets/{id}/archive
func (h *RainfallHandler) ReplaceArchive(w http.ResponseWriter, r *http.Request) {
	h.archiveOp(w, r, h.archive.Replace)
}

type archiveFunc func(ctx context.Context, store *records.Store) (*services.ArchiveResult, error)

func (h *RainfallHandler) archiveOp(w http.ResponseWriter, r *http.Request, op archiveFunc) {
	ds, err := h.dataset(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	var result *services.ArchiveResult
	err = ds.View(func(store *records.Store) error {
		var err error
		result, err = op(r.Context(), store)
		return err
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendJSON(w, result, http.StatusOK)
}

// GetMovingAverage handles GET /api/archive/sma
func (h *RainfallHandler) GetMovingAverage(w http.ResponseWriter, r *http.Request) {
	var q smaQuery
	if err := bindQuery(r, map[string]**int{
		"start_year": &q.StartYear,
		"end_year":   &q.EndYear,
		"window":     &q.Window,
	}, &q); err != nil {
		h.sendError(w, r, err)
		return
	}

	report, err := h.stats.MovingAverageReport(r.Context(), *q.StartYear, *q.EndYear, *q.Window)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendJSON(w, report, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *RainfallHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "healthy",
		"datasets":  len(h.datasets.List()),
		"archive":   h.archive.Location(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	h.logger.Debug(r.Context(), "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

func (h *RainfallHandler) dataset(r *http.Request) (*services.Dataset, error) {
	return h.datasets.Get(mux.Vars(r)["id"])
}

// decodeBody decodes a JSON body into dst and validates it
func (h *RainfallHandler) decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &models.ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("invalid request body: %v", err),
		}
	}
	return validateStruct(dst)
}

// bindQuery parses integer query parameters into the given pointers and
// validates the populated struct
func bindQuery(r *http.Request, params map[string]**int, dst interface{}) error {
	query := r.URL.Query()
	for name, target := range params {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return &models.ValidationError{
				Field:   name,
				Value:   raw,
				Message: fmt.Sprintf("%s must be an integer, got %q", name, raw),
			}
		}
		*target = &n
	}
	return validateStruct(dst)
}

func validateStruct(dst interface{}) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &models.ValidationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("%s is %s", toSnake(fe.Field()), fe.Tag()),
		}
	}
	return &models.ValidationError{Field: "request", Message: err.Error()}
}

// statusFor maps an error class to an HTTP status code
func statusFor(class models.ErrorClass) int {
	switch class {
	case models.ClassNotFound:
		return http.StatusNotFound
	case models.ClassValidation:
		return http.StatusBadRequest
	case models.ClassComputation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// sendJSON sends a JSON response
func (h *RainfallHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError maps err to a status code and sends an error response.
// Internal errors are logged and their details withheld from the client.
func (h *RainfallHandler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	class := models.Classify(err)
	statusCode := statusFor(class)
	endpoint := routeTemplate(r)

	h.metrics.RecordAPIError(string(class), endpoint)

	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "[API_ERROR] Request failed", logging.Fields{
			"endpoint":    endpoint,
			"method":      r.Method,
			"error_class": class,
		}, err)
		message = "internal server error"
	}

	h.sendJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// RegisterRoutes registers all rainfall API routes
func (h *RainfallHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/datasets", h.OpenDataset).Methods("POST")
	api.HandleFunc("/datasets", h.ListDatasets).Methods("GET")
	api.HandleFunc("/datasets/{id}", h.CloseDataset).Methods("DELETE")
	api.HandleFunc("/datasets/{id}/average", h.GetAverage).Methods("GET")
	api.HandleFunc("/datasets/{id}/rainfall", h.GetRainfall).Methods("GET")
	api.HandleFunc("/datasets/{id}/rainfall", h.PutRainfall).Methods("PUT")
	api.HandleFunc("/datasets/{id}/rainfall", h.DeleteRainfall).Methods("DELETE")
	api.HandleFunc("/datasets/{id}/quarters/{quarter}", h.PutQuarter).Methods("PUT")
	api.HandleFunc("/datasets/{id}/archive", h.InsertArchive).Methods("POST")
	api.HandleFunc("/datasets/{id}/archive", h.DeleteArchive).Methods("DELETE")
	api.HandleFunc("/datasets/{id}/archive", h.ReplaceArchive).Methods("PUT")
	api.HandleFunc("/archive/sma", h.GetMovingAverage).Methods("GET")

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
