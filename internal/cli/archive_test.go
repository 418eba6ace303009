package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainfall-archive/internal/services"
)

func TestArchive_InsertDeleteReplace(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "archive.csv")
	countRows := func() int {
		data, err := os.ReadFile(archivePath)
		require.NoError(t, err)
		return strings.Count(string(data), "\n") - 1
	}

	stdout, _, err := execute(t, "--archive", archivePath, "archive", "insert", table)
	require.NoError(t, err)
	assert.Equal(t, "archive "+archivePath+": inserted years 1940,1941, removed 0, wrote 24\n", stdout)

	_, _, err = execute(t, "--archive", archivePath, "archive", "insert", table)
	require.NoError(t, err)
	assert.Equal(t, 48, countRows(), "insert appends duplicates")

	stdout, _, err = execute(t, "--archive", archivePath, "archive", "replace", table)
	require.NoError(t, err)
	assert.Contains(t, stdout, "replaced years 1940,1941, removed 48, wrote 24")
	assert.Equal(t, 24, countRows())

	stdout, _, err = execute(t, "--format", "json", "--archive", archivePath, "archive", "delete", table)
	require.NoError(t, err)

	var resp struct {
		Status string                 `json:"status"`
		Data   services.ArchiveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []int{1940, 1941}, resp.Data.Years)
	assert.Equal(t, 24, resp.Data.Removed)
	assert.Equal(t, 0, countRows())
}

func TestArchive_DeleteMissingArchive(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "archive.csv")

	_, stderr, err := execute(t, "--archive", archivePath, "archive", "delete", table)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr, "Error [not_found]")
}

func TestSMA(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "archive.csv")
	_, _, err := execute(t, "--archive", archivePath, "archive", "insert", table)
	require.NoError(t, err)

	stdout, _, err := execute(t, "--archive", archivePath, "sma", "--start-year", "1940", "--end-year", "1940", "--window", "4")
	require.NoError(t, err)
	assertGolden(t, "sma", stdout)
}

func TestSMA_WindowLargerThanRange(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "archive.csv")
	_, _, err := execute(t, "--archive", archivePath, "archive", "insert", table)
	require.NoError(t, err)

	stdout, _, err := execute(t, "--format", "json", "--archive", archivePath, "sma", "--start-year", "1940", "--end-year", "1940", "--window", "13")
	require.NoError(t, err)

	var resp struct {
		Data services.MovingAverageReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, 12, resp.Data.Observations)
	assert.Empty(t, resp.Data.Points)
}

func TestSMA_InvalidWindow(t *testing.T) {
	_, stderr, err := execute(t, "--archive", filepath.Join(t.TempDir(), "archive.csv"), "sma", "--start-year", "1940", "--end-year", "1941", "--window", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, "window size must be at least 1, got 0")
}
