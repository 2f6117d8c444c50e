// Package models defines the domain types for Stemma.
package models

import "time"

// ViewMode selects which layout engine renders a chart.
type ViewMode string

const (
	// ViewTree lays the chart out as a top-down hierarchy.
	ViewTree ViewMode = "tree"
	// ViewGraph lays the chart out with a force-directed placement.
	ViewGraph ViewMode = "graph"
)

// Valid reports whether m is a known view mode.
func (m ViewMode) Valid() bool {
	return m == ViewTree || m == ViewGraph
}

// ChartMeta is a lightweight representation returned by list operations.
type ChartMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Position is a cached node coordinate, written when a user drags a node
// and read back to pin the node in force-directed layouts.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Direction is the direction of a sibling reorder.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}
