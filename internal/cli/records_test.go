package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainfall-archive/internal/repository"
	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

func TestList_Text(t *testing.T) {
	stdout, stderr, err := execute(t, "list", table)
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assertGolden(t, "list", stdout)
}

func TestList_JSON(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", "list", table)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TableResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, table, resp.Data.Source)
	assert.Equal(t, 1, resp.Data.RowsRejected)
	assert.Len(t, resp.Data.Observations, 24)
}

func TestList_VerboseReportsRejections(t *testing.T) {
	_, stderr, err := execute(t, "-v", "list", table)
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 accepted, 1 rejected")
	assert.Contains(t, stderr, "rejected: line 4: month 2")
	assert.Contains(t, stderr, "[LOAD_COMPLETE]")
}

func TestList_MissingFile(t *testing.T) {
	_, stderr, err := execute(t, "list", "testdata/nope.csv")
	require.Error(t, err)
	assert.True(t, Reported(err))
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr, "Error [not_found]: file not found: testdata/nope.csv")
}

func TestList_Layout(t *testing.T) {
	_, stderr, err := execute(t, "--layout", "testdata/missing.yaml", "list", table)
	require.Error(t, err)
	assert.Contains(t, stderr, "layout file not found")
}

func TestAverage(t *testing.T) {
	stdout, _, err := execute(t, "average", table, "--year", "1940", "--start-month", "1", "--end-month", "3")
	require.NoError(t, err)
	assert.Equal(t, "1940 months 1-3: 20\n", stdout)
}

func TestAverage_NoValues(t *testing.T) {
	_, stderr, err := execute(t, "average", table, "--year", "1999")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr, "Error [computation]")
}

func TestGet_JSON(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", "get", table, "--year", "1941", "--month", "1")
	require.NoError(t, err)
	assertGolden(t, "get_json", stdout)
}

func TestGet_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		code     int
		contains string
	}{
		{
			name:     "month out of range",
			args:     []string{"get", table, "--year", "1940", "--month", "13"},
			code:     ExitCommandError,
			contains: `"code": "validation"`,
		},
		{
			name:     "unknown year",
			args:     []string{"get", table, "--year", "1942", "--month", "1"},
			code:     ExitFailure,
			contains: `"code": "not_found"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, append([]string{"--format", "json"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, stdout, `"status": "error"`)
			assert.Contains(t, stdout, tt.contains)
		})
	}
}

func TestSet(t *testing.T) {
	stdout, _, err := execute(t, "set", table, "--year", "1940", "--month", "2", "--rainfall", "22.5")
	require.NoError(t, err)
	assert.Equal(t, "1940-02: 22.5\n", stdout)

	stdout, _, err = execute(t, "set", table, "--year", "1950", "--month", "6", "--rainfall", "3")
	require.NoError(t, err)
	assert.Equal(t, "1950-06: 3\n", stdout, "a missing month is added")
}

func TestSet_Invalid(t *testing.T) {
	_, stderr, err := execute(t, "set", table, "--year", "1940", "--month", "13", "--rainfall", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, "month must be between 1 and 12, got 13")
}

func TestSet_Save(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "archive.csv")

	stdout, _, err := execute(t, "--archive", archivePath, "set", table, "--year", "1940", "--month", "2", "--rainfall", "22.5", "--save")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1940-02: 22.5\n")
	assert.Contains(t, stdout, "replaced years 1940,1941, removed 0, wrote 24")

	// Saving twice replaces rather than duplicates.
	_, _, err = execute(t, "--archive", archivePath, "set", table, "--year", "1940", "--month", "2", "--rainfall", "23", "--save")
	require.NoError(t, err)

	repo := repository.NewFileArchive(archivePath, logging.NewNopLogger(),
		metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry()))
	rows, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 24)
	assert.Equal(t, 23.0, *rows[1].Rainfall)
}

func TestDelete(t *testing.T) {
	stdout, _, err := execute(t, "delete", table, "--year", "1940", "--month", "1")
	require.NoError(t, err)
	assert.Equal(t, "1940-01: -\n", stdout)

	_, stderr, err := execute(t, "delete", table, "--year", "1942", "--month", "1")
	require.Error(t, err)
	assert.Contains(t, stderr, "Error [not_found]: rainfall observation not found: 1942-01")
}

func TestQuarter(t *testing.T) {
	stdout, _, err := execute(t, "quarter", table, "spring", "--year", "1941", "--rainfall", "40.1,38.5,51")
	require.NoError(t, err)
	assert.Equal(t, "1941-04: 40.1\n1941-05: 38.5\n1941-06: 51\n", stdout)
}

func TestQuarter_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{
			name:     "unknown quarter",
			args:     []string{"quarter", table, "fall", "--year", "1941", "--rainfall", "1,2,3"},
			contains: `unknown quarter "fall"`,
		},
		{
			name:     "two values",
			args:     []string{"quarter", table, "winter", "--year", "1941", "--rainfall", "1,2"},
			contains: "quarter needs exactly 3 rainfall values, got 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, stderr, tt.contains)
		})
	}
}
