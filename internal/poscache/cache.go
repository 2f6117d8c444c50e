package poscache

import "github.com/starford/stemma/internal/models"

// Cache defines the interface for chart cache operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Cache interface {
	UpsertChart(row ChartRow) error
	DeleteChart(path string) error
	GetChart(path string) (*ChartRow, error)
	GetChecksum(path string) (string, error)
	SetView(path string, view models.ViewMode) error
	SavePosition(chart, record string, pos models.Position) error
	Positions(chart string) (map[string]models.Position, error)
	ReplacePositions(chart string, positions map[string]models.Position) error
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies Cache at compile time.
var _ Cache = (*DB)(nil)
