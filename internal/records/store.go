// Package records holds the in-memory rainfall record set: an ordered
// sequence of observations plus a (year, month) index maintained on every
// mutation.
package records

import (
	"fmt"
	"sort"

	"rainfall-archive/internal/models"
)

// Store is an ordered collection of observations with O(1) lookup by key.
// Order is insertion order. When the same key is appended twice the index
// points at the most recent row and older rows become unreachable by lookup.
//
// A Store is not safe for concurrent use; callers sharing one must serialize.
type Store struct {
	rows  []models.Observation
	index map[models.Key]int
}

// New creates an empty store
func New() *Store {
	return &Store{
		index: make(map[models.Key]int),
	}
}

// FromObservations builds a store by appending every observation in order
func FromObservations(observations []models.Observation) *Store {
	s := &Store{
		rows:  make([]models.Observation, 0, len(observations)),
		index: make(map[models.Key]int, len(observations)),
	}
	for _, obs := range observations {
		s.append(obs)
	}
	return s
}

func (s *Store) append(obs models.Observation) {
	if obs.Rainfall != nil {
		obs.Rainfall = models.Float64(*obs.Rainfall)
	}
	s.rows = append(s.rows, obs)
	s.index[obs.Key()] = len(s.rows) - 1
}

// Len returns the number of rows, including unreachable duplicates
func (s *Store) Len() int {
	return len(s.rows)
}

// Observations returns a copy of the rows in insertion order
func (s *Store) Observations() []models.Observation {
	out := make([]models.Observation, len(s.rows))
	for i, obs := range s.rows {
		out[i] = obs
		if obs.Rainfall != nil {
			out[i].Rainfall = models.Float64(*obs.Rainfall)
		}
	}
	return out
}

// Years returns the distinct years present, ascending
func (s *Store) Years() []int {
	seen := make(map[int]struct{})
	years := make([]int, 0)
	for _, obs := range s.rows {
		if _, ok := seen[obs.Year]; ok {
			continue
		}
		seen[obs.Year] = struct{}{}
		years = append(years, obs.Year)
	}
	sort.Ints(years)
	return years
}

// Lookup returns the current observation for (year, month)
func (s *Store) Lookup(month, year int) (models.Observation, bool) {
	pos, ok := s.index[models.Key{Year: year, Month: month}]
	if !ok {
		return models.Observation{}, false
	}
	return s.rows[pos], true
}

// Average returns the mean rainfall of year over months startMonth..endMonth
// inclusive. Absent values are excluded from both sum and count.
func (s *Store) Average(startMonth, endMonth, year int) (float64, error) {
	if err := models.ValidateMonth(startMonth); err != nil {
		return 0, err
	}
	if err := models.ValidateMonth(endMonth); err != nil {
		return 0, err
	}

	var (
		sum   float64
		count int
	)
	for _, obs := range s.rows {
		if obs.Year != year || obs.Month < startMonth || obs.Month > endMonth {
			continue
		}
		if obs.Rainfall == nil {
			continue
		}
		sum += *obs.Rainfall
		count++
	}

	if count == 0 {
		return 0, &models.ComputationError{
			Operation: "average",
			Message:   fmt.Sprintf("no rainfall values for year %d, months %d-%d", year, startMonth, endMonth),
		}
	}

	return sum / float64(count), nil
}

// Rainfall returns the value stored for (year, month)
func (s *Store) Rainfall(month, year int) (float64, error) {
	if err := validateKey(month, year); err != nil {
		return 0, err
	}

	obs, ok := s.Lookup(month, year)
	if !ok || obs.Rainfall == nil {
		return 0, notFound(month, year)
	}
	return *obs.Rainfall, nil
}

// Delete marks the value for (year, month) absent. The row itself stays.
func (s *Store) Delete(month, year int) error {
	if err := validateKey(month, year); err != nil {
		return err
	}

	pos, ok := s.index[models.Key{Year: year, Month: month}]
	if !ok {
		return notFound(month, year)
	}
	s.rows[pos].Rainfall = nil
	return nil
}

// Insert overwrites the value for (year, month) or appends a new row
func (s *Store) Insert(month, year int, rainfall float64) error {
	if err := validateKey(month, year); err != nil {
		return err
	}
	if err := models.ValidateRainfall(rainfall); err != nil {
		return err
	}

	s.upsert(month, year, rainfall)
	return nil
}

// InsertQuarter upserts the three months of a quarter. Each month is looked
// up on its own, so existing rows are overwritten wherever they sit and
// missing ones are appended in month order. Nothing is written unless every
// argument is valid.
func (s *Store) InsertQuarter(quarterName string, year int, rainfall []float64) error {
	quarter, err := models.ParseQuarter(quarterName)
	if err != nil {
		return err
	}
	if err := models.ValidateYear(year); err != nil {
		return err
	}
	if len(rainfall) != 3 {
		return &models.ValidationError{
			Field:   "rainfall",
			Value:   fmt.Sprint(rainfall),
			Message: fmt.Sprintf("quarter needs exactly 3 rainfall values, got %d", len(rainfall)),
		}
	}
	for _, v := range rainfall {
		if err := models.ValidateRainfall(v); err != nil {
			return err
		}
	}

	for i, month := range quarter.Months() {
		s.upsert(month, year, rainfall[i])
	}
	return nil
}

func (s *Store) upsert(month, year int, rainfall float64) {
	key := models.Key{Year: year, Month: month}
	if pos, ok := s.index[key]; ok {
		s.rows[pos].Rainfall = models.Float64(rainfall)
		return
	}
	s.append(models.Observation{Year: year, Month: month, Rainfall: models.Float64(rainfall)})
}

func validateKey(month, year int) error {
	if err := models.ValidateMonth(month); err != nil {
		return err
	}
	return models.ValidateYear(year)
}

func notFound(month, year int) error {
	return &models.NotFoundError{
		Resource: "rainfall observation",
		ID:       fmt.Sprintf("%d-%02d", year, month),
	}
}
