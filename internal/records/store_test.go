package records

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainfall-archive/internal/models"
)

func yearOf(year int, values ...float64) []models.Observation {
	out := make([]models.Observation, 0, len(values))
	for i, v := range values {
		out = append(out, models.Observation{Year: year, Month: i + 1, Rainfall: models.Float64(v)})
	}
	return out
}

func requireClass(t *testing.T, err error, class models.ErrorClass) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, class, models.Classify(err), "unexpected error: %v", err)
}

func TestInsertRainfallRoundTrip(t *testing.T) {
	cases := []struct {
		month int
		year  int
		value float64
	}{
		{1, 0, 0},
		{6, 1941, 55.5},
		{12, 2024, 310.25},
	}

	s := New()
	for _, c := range cases {
		require.NoError(t, s.Insert(c.month, c.year, c.value))
		got, err := s.Rainfall(c.month, c.year)
		require.NoError(t, err)
		assert.Equal(t, c.value, got)
	}
	assert.Equal(t, len(cases), s.Len())
}

func TestInsertOverwritesInPlace(t *testing.T) {
	s := FromObservations(yearOf(1941, 10, 20, 30))

	require.NoError(t, s.Insert(2, 1941, 99))
	require.NoError(t, s.Insert(2, 1941, 99))

	assert.Equal(t, 3, s.Len(), "insert on an existing key must not append")
	got, err := s.Rainfall(2, 1941)
	require.NoError(t, err)
	assert.Equal(t, 99.0, got)
	assert.Equal(t, 2, s.Observations()[1].Month)
}

func TestInsertValidation(t *testing.T) {
	s := New()

	requireClass(t, s.Insert(13, 2000, 5.0), models.ClassValidation)
	requireClass(t, s.Insert(0, 2000, 5.0), models.ClassValidation)
	requireClass(t, s.Insert(1, -1, 5.0), models.ClassValidation)
	requireClass(t, s.Insert(1, 2000, -0.5), models.ClassValidation)

	assert.Equal(t, 0, s.Len(), "invalid inserts must not mutate")
}

func TestRainfallNotFound(t *testing.T) {
	s := FromObservations(yearOf(1941, 10))

	requireClass(t, func() error { _, err := s.Rainfall(2, 1941); return err }(), models.ClassNotFound)
	requireClass(t, func() error { _, err := s.Rainfall(1, 1942); return err }(), models.ClassNotFound)

	var nf *models.NotFoundError
	_, err := s.Rainfall(5, 1950)
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "1950-05", nf.ID)
}

func TestDeleteClearsValue(t *testing.T) {
	s := FromObservations(yearOf(1941, 10, 20, 60))

	require.NoError(t, s.Delete(3, 1941))

	_, err := s.Rainfall(3, 1941)
	requireClass(t, err, models.ClassNotFound)

	obs, ok := s.Lookup(3, 1941)
	require.True(t, ok, "deleted observation stays in the store")
	assert.Nil(t, obs.Rainfall)
	assert.Equal(t, 3, s.Len())

	avg, err := s.Average(1, 3, 1941)
	require.NoError(t, err)
	assert.Equal(t, 15.0, avg, "absent value is excluded from sum and count")
}

func TestDeleteErrors(t *testing.T) {
	s := FromObservations(yearOf(1941, 10))

	requireClass(t, s.Delete(13, 1941), models.ClassValidation)
	requireClass(t, s.Delete(1, -5), models.ClassValidation)
	requireClass(t, s.Delete(2, 1941), models.ClassNotFound)
}

func TestAverage(t *testing.T) {
	obs := append(yearOf(1941, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12), yearOf(1942, 100, 200)...)
	s := FromObservations(obs)

	tests := []struct {
		name       string
		start, end int
		year       int
		want       float64
		wantClass  models.ErrorClass
	}{
		{name: "whole year", start: 1, end: 12, year: 1941, want: 6.5},
		{name: "first quarter", start: 1, end: 3, year: 1941, want: 2},
		{name: "single month", start: 7, end: 7, year: 1941, want: 7},
		{name: "other year", start: 1, end: 12, year: 1942, want: 150},
		{name: "no rows for year", start: 1, end: 12, year: 1999, wantClass: models.ClassComputation},
		{name: "inverted range", start: 6, end: 1, year: 1941, wantClass: models.ClassComputation},
		{name: "bad month", start: 0, end: 12, year: 1941, wantClass: models.ClassValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Average(tt.start, tt.end, tt.year)
			if tt.wantClass != "" {
				requireClass(t, err, tt.wantClass)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAverageAllAbsent(t *testing.T) {
	s := FromObservations(yearOf(1941, 10))
	require.NoError(t, s.Delete(1, 1941))

	_, err := s.Average(1, 12, 1941)
	requireClass(t, err, models.ClassComputation)
}

func TestInsertQuarterOnEmptyStore(t *testing.T) {
	tests := []struct {
		quarter string
		months  []int
	}{
		{"winter", []int{1, 2, 3}},
		{"spring", []int{4, 5, 6}},
		{"summer", []int{7, 8, 9}},
		{"autumn", []int{10, 11, 12}},
	}

	for _, tt := range tests {
		t.Run(tt.quarter, func(t *testing.T) {
			s := New()
			require.NoError(t, s.InsertQuarter(tt.quarter, 2001, []float64{1.5, 2.5, 3.5}))

			rows := s.Observations()
			require.Len(t, rows, 3)
			for i, row := range rows {
				assert.Equal(t, 2001, row.Year)
				assert.Equal(t, tt.months[i], row.Month)
				require.NotNil(t, row.Rainfall)
				assert.Equal(t, []float64{1.5, 2.5, 3.5}[i], *row.Rainfall)
			}
		})
	}
}

func TestInsertQuarterOverwritesExisting(t *testing.T) {
	s := FromObservations(yearOf(1941, 1, 2, 3, 4, 5, 6))

	require.NoError(t, s.InsertQuarter("spring", 1941, []float64{40, 50, 60}))

	assert.Equal(t, 6, s.Len())
	for month, want := range map[int]float64{4: 40, 5: 50, 6: 60, 1: 1} {
		got, err := s.Rainfall(month, 1941)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestInsertQuarterNonContiguousRows(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(7, 1950, 1))
	require.NoError(t, s.Insert(1, 1999, 1))
	require.NoError(t, s.Insert(9, 1950, 1))

	require.NoError(t, s.InsertQuarter("summer", 1950, []float64{7, 8, 9}))

	assert.Equal(t, 4, s.Len(), "only the missing August row is appended")
	for _, month := range []int{7, 8, 9} {
		got, err := s.Rainfall(month, 1950)
		require.NoError(t, err)
		assert.Equal(t, float64(month), got)
	}
	v, err := s.Rainfall(1, 1999)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v, "rows outside the quarter are untouched")
}

func TestInsertQuarterValidation(t *testing.T) {
	s := FromObservations(yearOf(2000, 1, 2, 3))

	requireClass(t, s.InsertQuarter("fall", 2000, []float64{1, 2, 3}), models.ClassValidation)
	requireClass(t, s.InsertQuarter("spring", 2000, []float64{1, 2}), models.ClassValidation)
	requireClass(t, s.InsertQuarter("spring", 2000, []float64{1, 2, 3, 4}), models.ClassValidation)
	requireClass(t, s.InsertQuarter("winter", 2000, []float64{1, -2, 3}), models.ClassValidation)
	requireClass(t, s.InsertQuarter("winter", -1, []float64{1, 2, 3}), models.ClassValidation)

	got, err := s.Rainfall(2, 2000)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got, "rejected quarter must not partially apply")
	assert.Equal(t, 3, s.Len())
}

func TestDuplicateKeysResolveToLatest(t *testing.T) {
	obs := append(yearOf(1941, 10, 20), yearOf(1941, 30)...)
	s := FromObservations(obs)

	got, err := s.Rainfall(1, 1941)
	require.NoError(t, err)
	assert.Equal(t, 30.0, got)
	assert.Equal(t, 3, s.Len())

	require.NoError(t, s.Insert(1, 1941, 5))
	assert.Equal(t, 10.0, *s.Observations()[0].Rainfall, "older duplicate is unreachable")
	assert.Equal(t, 5.0, *s.Observations()[2].Rainfall)
}

func TestObservationsIsACopy(t *testing.T) {
	s := FromObservations(yearOf(1941, 10))

	rows := s.Observations()
	*rows[0].Rainfall = 999
	rows[0].Month = 7

	got, err := s.Rainfall(1, 1941)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)
}

func TestYears(t *testing.T) {
	s := FromObservations(append(yearOf(1950, 1), yearOf(1941, 1, 2)...))
	assert.Equal(t, []int{1941, 1950}, s.Years())
	assert.Empty(t, New().Years())
}
