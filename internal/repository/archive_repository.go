package repository

import (
	"context"

	"rainfall-archive/internal/models"
)

// ArchiveRepository persists long-format observation history.
// Rows come back from Load in the order they were inserted.
type ArchiveRepository interface {
	// Insert appends every observation; no deduplication is performed
	Insert(ctx context.Context, observations []models.Observation) (int, error)

	// DeleteYears removes every row whose year is in years, regardless of month
	DeleteYears(ctx context.Context, years []int) (int, error)

	// Load returns all archived rows in stored order
	Load(ctx context.Context) ([]models.Observation, error)

	// Location names the archive for logs (a path or a table)
	Location() string
}

func yearSet(years []int) map[int]struct{} {
	set := make(map[int]struct{}, len(years))
	for _, y := range years {
		set[y] = struct{}{}
	}
	return set
}
