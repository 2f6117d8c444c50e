// Package storage defines the chart library file-system abstraction.
package storage

import "github.com/starford/stemma/internal/models"

// Ext is the file extension of chart documents in a library.
const Ext = ".stemma"

// Provider is the interface for chart library file operations.
type Provider interface {
	// List returns metadata for every chart file under dir (relative to
	// the library root).
	List(dir string) ([]models.ChartMeta, error)
	// Read returns the raw bytes of the file at path (relative to the
	// library root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the library
	// root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to the library root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to the library root).
	Move(oldPath, newPath string) error
}
