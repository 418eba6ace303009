package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rainfall-archive/internal/models"
	"rainfall-archive/internal/records"
	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

// Dataset is a loaded record store shared between requests.
// All access to the store goes through View or Update, which hold the
// dataset's own lock.
type Dataset struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loaded_at"`

	mu    sync.Mutex
	store *records.Store
	dirty bool
}

// View runs fn with the store locked
func (d *Dataset) View(fn func(store *records.Store) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.store)
}

// Update runs fn with the store locked and marks the dataset changed if fn succeeds
func (d *Dataset) Update(fn func(store *records.Store) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := fn(d.store); err != nil {
		return err
	}
	d.dirty = true
	return nil
}

// Snapshot runs fn only when the dataset changed since the last successful
// snapshot. It reports whether fn ran.
func (d *Dataset) Snapshot(fn func(store *records.Store) error) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dirty {
		return false, nil
	}
	if err := fn(d.store); err != nil {
		return true, err
	}
	d.dirty = false
	return true, nil
}

// Dirty reports whether the dataset changed since it was loaded or last snapshotted
func (d *Dataset) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// DatasetService keeps loaded datasets in memory by id
type DatasetService struct {
	loader  *IngestionService
	logger  *logging.StructuredLogger
	metrics *metrics.Collector

	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewDatasetService creates a new dataset service
func NewDatasetService(loader *IngestionService, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DatasetService {
	return &DatasetService{
		loader:   loader,
		logger:   logger,
		metrics:  metricsCollector,
		datasets: make(map[string]*Dataset),
	}
}

// Open loads the CSV at path and registers it under a new id
func (s *DatasetService) Open(ctx context.Context, name, path string) (*Dataset, *LoadResult, error) {
	result, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	ds := &Dataset{
		ID:       uuid.NewString(),
		Name:     name,
		Source:   path,
		LoadedAt: time.Now().UTC(),
		store:    result.Store,
	}

	s.mu.Lock()
	s.datasets[ds.ID] = ds
	active := len(s.datasets)
	s.mu.Unlock()

	s.metrics.DatasetsActive.Set(float64(active))
	s.logger.Info(ctx, "[DATASET_OPEN] Dataset registered", logging.Fields{
		"dataset_id":   ds.ID,
		"name":         name,
		"observations": result.Store.Len(),
		"active":       active,
	})

	return ds, result, nil
}

// Get returns the dataset with the given id
func (s *DatasetService) Get(id string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.datasets[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "dataset", ID: id}
	}
	return ds, nil
}

// List returns all datasets, oldest first
func (s *DatasetService) List() []*Dataset {
	s.mu.RLock()
	out := make([]*Dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		out = append(out, ds)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LoadedAt.Equal(out[j].LoadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LoadedAt.Before(out[j].LoadedAt)
	})
	return out
}

// Close unregisters a dataset
func (s *DatasetService) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.datasets[id]; !ok {
		s.mu.Unlock()
		return &models.NotFoundError{Resource: "dataset", ID: id}
	}
	delete(s.datasets, id)
	active := len(s.datasets)
	s.mu.Unlock()

	s.metrics.DatasetsActive.Set(float64(active))
	s.logger.Info(ctx, "[DATASET_CLOSE] Dataset removed", logging.Fields{
		"dataset_id": id,
		"active":     active,
	})
	return nil
}
