package models

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MonthsPerYear is the number of month columns in a wide-format year row
const MonthsPerYear = 12

// Observation represents one month's rainfall measurement for one year
// A nil Rainfall means the value is absent (never measured, or erased)
type Observation struct {
	Year     int      `json:"year" db:"year"`
	Month    int      `json:"month" db:"month"`
	Rainfall *float64 `json:"rainfall" db:"rain"`
}

// Key identifies an observation by (year, month)
type Key struct {
	Year  int
	Month int
}

// Key returns the lookup key of the observation
func (o Observation) Key() Key {
	return Key{Year: o.Year, Month: o.Month}
}

// HasValue reports whether the observation carries a rainfall value
func (o Observation) HasValue() bool {
	return o.Rainfall != nil
}

// Float64 returns a pointer to v, for building observations with a value
func Float64(v float64) *float64 {
	return &v
}

// Quarter is a fixed three-month span of the year
type Quarter string

const (
	Winter Quarter = "winter"
	Spring Quarter = "spring"
	Summer Quarter = "summer"
	Autumn Quarter = "autumn"
)

var quarterStartMonths = map[Quarter]int{
	Winter: 1,
	Spring: 4,
	Summer: 7,
	Autumn: 10,
}

// ParseQuarter resolves a quarter name; unknown names are a validation error
func ParseQuarter(name string) (Quarter, error) {
	q := Quarter(name)
	if _, ok := quarterStartMonths[q]; !ok {
		return "", &ValidationError{
			Field:   "quarter",
			Value:   name,
			Message: fmt.Sprintf("unknown quarter %q, expected one of winter, spring, summer, autumn", name),
		}
	}
	return q, nil
}

// StartMonth returns the first month (1-12) of the quarter
func (q Quarter) StartMonth() int {
	return quarterStartMonths[q]
}

// Months returns the three consecutive months of the quarter
func (q Quarter) Months() [3]int {
	start := q.StartMonth()
	return [3]int{start, start + 1, start + 2}
}

// ValidateMonth rejects months outside 1-12
func ValidateMonth(month int) error {
	if month < 1 || month > MonthsPerYear {
		return &ValidationError{
			Field:   "month",
			Value:   strconv.Itoa(month),
			Message: fmt.Sprintf("month must be between 1 and 12, got %d", month),
		}
	}
	return nil
}

// ValidateYear rejects negative years
func ValidateYear(year int) error {
	if year < 0 {
		return &ValidationError{
			Field:   "year",
			Value:   strconv.Itoa(year),
			Message: fmt.Sprintf("year must not be negative, got %d", year),
		}
	}
	return nil
}

// ValidateRainfall rejects negative and non-finite rainfall values
func ValidateRainfall(rainfall float64) error {
	if math.IsNaN(rainfall) || math.IsInf(rainfall, 0) || rainfall < 0 {
		return &ValidationError{
			Field:   "rainfall",
			Value:   strconv.FormatFloat(rainfall, 'g', -1, 64),
			Message: fmt.Sprintf("rainfall must be a non-negative number, got %v", rainfall),
		}
	}
	return nil
}

// ValidateWindow rejects moving-average windows smaller than one
func ValidateWindow(window int) error {
	if window < 1 {
		return &ValidationError{
			Field:   "window",
			Value:   strconv.Itoa(window),
			Message: fmt.Sprintf("window size must be at least 1, got %d", window),
		}
	}
	return nil
}

// markerRegex matches everything that is not part of a plain decimal number.
// Source files flag estimated or provisional values with characters like '*' or '#'.
var markerRegex = regexp.MustCompile(`[^0-9.]+`)

// CleanRainfall strips marker characters from a rainfall cell and parses it
func CleanRainfall(cell string) (float64, error) {
	cleaned := markerRegex.ReplaceAllString(norm.NFKC.String(cell), "")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, &ValidationError{
			Field:   "rainfall",
			Value:   cell,
			Message: fmt.Sprintf("rainfall cell %q is not numeric", cell),
		}
	}
	return value, nil
}

// RawYearRow represents a single year line of a wide-format input file
// Used during ingestion, before type coercion
type RawYearRow struct {
	Line   int
	Year   string
	Months [MonthsPerYear]string
}

// ToObservations reshapes the wide row into one observation per month.
// The whole row is rejected if the year or any month cell fails coercion.
func (r *RawYearRow) ToObservations() ([]Observation, error) {
	year, err := strconv.Atoi(strings.TrimSpace(norm.NFKC.String(r.Year)))
	if err != nil {
		return nil, &ValidationError{
			Field:   "year",
			Value:   r.Year,
			Message: fmt.Sprintf("line %d: year %q is not an integer", r.Line, r.Year),
		}
	}

	observations := make([]Observation, 0, MonthsPerYear)
	for i, cell := range r.Months {
		value, err := CleanRainfall(cell)
		if err != nil {
			return nil, &ValidationError{
				Field:   "rainfall",
				Value:   cell,
				Message: fmt.Sprintf("line %d: month %d: %v", r.Line, i+1, err),
			}
		}
		observations = append(observations, Observation{
			Year:     year,
			Month:    i + 1,
			Rainfall: Float64(value),
		})
	}

	return observations, nil
}

// Layout describes the fixed column positions of a wide-format file.
// Every column that is neither the year column nor a metadata column holds
// a monthly rainfall value, in January..December order.
type Layout struct {
	YearColumn      int   `yaml:"year_column" json:"year_column"`
	MetadataColumns []int `yaml:"metadata_columns" json:"metadata_columns"`
}

// DefaultLayout matches files shaped year,jan..dec,tmax,tmin,af,sun
func DefaultLayout() Layout {
	return Layout{
		YearColumn:      0,
		MetadataColumns: []int{13, 14, 15, 16},
	}
}

// MonthColumns resolves the twelve month column positions for a file with
// the given number of header columns
func (l Layout) MonthColumns(width int) ([MonthsPerYear]int, error) {
	var columns [MonthsPerYear]int

	if l.YearColumn < 0 || l.YearColumn >= width {
		return columns, &ValidationError{
			Field:   "year_column",
			Value:   strconv.Itoa(l.YearColumn),
			Message: fmt.Sprintf("year column %d is outside a %d-column header", l.YearColumn, width),
		}
	}

	skip := make(map[int]bool, len(l.MetadataColumns)+1)
	skip[l.YearColumn] = true
	for _, c := range l.MetadataColumns {
		skip[c] = true
	}

	n := 0
	for c := 0; c < width; c++ {
		if skip[c] {
			continue
		}
		if n == MonthsPerYear {
			n++
			break
		}
		columns[n] = c
		n++
	}

	if n != MonthsPerYear {
		return columns, &ValidationError{
			Field:   "layout",
			Value:   strconv.Itoa(width),
			Message: fmt.Sprintf("layout leaves %s month columns in a %d-column header, expected 12", countLabel(n), width),
		}
	}

	return columns, nil
}

func countLabel(n int) string {
	if n > MonthsPerYear {
		return "more than 12"
	}
	return strconv.Itoa(n)
}
