// Package testutil provides shared test helpers for setting up chart libraries and databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/stemma/internal/poscache"
	"github.com/starford/stemma/internal/storage"
)

// TestCache creates a temporary SQLite position cache that is automatically cleaned up.
func TestCache(t *testing.T) *poscache.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "stemma-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := poscache.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary chart library directory with a storage.Provider.
func TestLibrary(t *testing.T) (string, storage.Provider) {
	t.Helper()
	libraryDir := t.TempDir()
	store, err := storage.NewFS(libraryDir)
	if err != nil {
		t.Fatal(err)
	}
	return libraryDir, store
}
