package api

import (
	"time"

	"github.com/starford/stemma/internal/chartservice"
	"github.com/starford/stemma/internal/models"
)

// CreateChartRequest is the request body for creating a chart.
type CreateChartRequest struct {
	Path    string `json:"path" example:"teams/eng.stemma" validate:"required"`
	Content string `json:"content" example:"- id: 1\n  name: CEO" validate:"required"`
}

// UpdateChartRequest is the request body for updating a chart.
type UpdateChartRequest struct {
	Content string `json:"content" example:"- id: 1\n  name: CEO" validate:"required"`
}

// MoveRequest is the request body for a sibling move operation.
type MoveRequest struct {
	ID        string `json:"id" example:"3" validate:"required"`
	Direction string `json:"direction" example:"up" validate:"required" enums:"up,down"`
}

// SwapRequest is the request body for a record swap operation.
type SwapRequest struct {
	A string `json:"a" example:"2" validate:"required"`
	B string `json:"b" example:"5" validate:"required"`
}

// ViewRequest selects a chart's layout mode.
type ViewRequest struct {
	View string `json:"view" example:"graph" validate:"required" enums:"tree,graph"`
}

// ReorderRequest toggles whether drag gestures count as structural edits.
type ReorderRequest struct {
	Enabled bool `json:"enabled" example:"true"`
}

// PositionRequest pins a dragged node at a coordinate.
type PositionRequest struct {
	ID string  `json:"id" example:"3" validate:"required"`
	X  float64 `json:"x" example:"120.5"`
	Y  float64 `json:"y" example:"80"`
}

// MeasurementsRequest carries client-measured card heights keyed by record id.
type MeasurementsRequest struct {
	Heights map[string]float64 `json:"heights" validate:"required"`
}

// ExportRequest selects the output format of a chart export.
type ExportRequest struct {
	Format string `json:"format" example:"png" enums:"svg,png,dot"`
}

// ChartDetail is the full chart response type (aliased from the domain layer).
type ChartDetail = chartservice.ChartDetail

// ValidationReport is the validation response type (aliased from the domain layer).
type ValidationReport = chartservice.ValidationReport

// ChartListResponse wraps paginated chart listings.
type ChartListResponse struct {
	Charts []models.ChartMeta `json:"charts" validate:"required"`
	Total  int                `json:"total" example:"42" validate:"required"`
}

// RecordResponse wraps a resolved record's fields.
type RecordResponse struct {
	Record map[string]any `json:"record" validate:"required"`
}

// ExportResponse is returned after a successful chart export.
type ExportResponse struct {
	Filename string `json:"filename" example:"eng-6ba7b810.svg" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	URL      string `json:"url" example:"/api/exports/eng-6ba7b810.svg" validate:"required"`
}

// ChartMetaDTO mirrors models.ChartMeta for swag.
type ChartMetaDTO struct {
	Path      string    `json:"path" example:"teams/eng.stemma"`
	Checksum  string    `json:"checksum" example:"abc123..."`
	UpdatedAt time.Time `json:"updated_at"`
}
