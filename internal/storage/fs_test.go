package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const chartFixture = `---
options:
  nodeWidth: 250
---
- id: 1
  name: Ada
`

func newTestFS(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	fs := newTestFS(t)

	if err := fs.Write("team.stemma", []byte(chartFixture)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := fs.Read("team.stemma")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != chartFixture {
		t.Errorf("Read = %q, want %q", got, chartFixture)
	}
}

func TestWriteCreatesSubdirectories(t *testing.T) {
	fs := newTestFS(t)

	if err := fs.Write("org/engineering/team.stemma", []byte(chartFixture)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := fs.Read("org/engineering/team.stemma")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != chartFixture {
		t.Errorf("Read = %q, want %q", got, chartFixture)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	fs := newTestFS(t)

	if err := fs.Write("team.stemma", []byte(chartFixture)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries, err := os.ReadDir(fs.Root())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".stemma-tmp-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestDelete(t *testing.T) {
	fs := newTestFS(t)

	if err := fs.Write("team.stemma", []byte(chartFixture)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Delete("team.stemma"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := fs.Read("team.stemma"); err == nil {
		t.Error("Read after Delete succeeded, want error")
	}
}

func TestDeleteMissingChart(t *testing.T) {
	fs := newTestFS(t)

	if err := fs.Delete("absent.stemma"); err == nil {
		t.Error("Delete of missing chart succeeded, want error")
	}
}

func TestMove(t *testing.T) {
	fs := newTestFS(t)

	if err := fs.Write("team.stemma", []byte(chartFixture)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Move("team.stemma", "archive/team.stemma"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := fs.Read("team.stemma"); err == nil {
		t.Error("Read of old path succeeded, want error")
	}
	got, err := fs.Read("archive/team.stemma")
	if err != nil {
		t.Fatalf("Read of new path: %v", err)
	}
	if string(got) != chartFixture {
		t.Errorf("Read = %q, want %q", got, chartFixture)
	}
}

func TestListFiltersByExtension(t *testing.T) {
	fs := newTestFS(t)

	if err := fs.Write("team.stemma", []byte(chartFixture)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Write("org/board.stemma", []byte(chartFixture)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Write("README.md", []byte("not a chart")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	charts, err := fs.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(charts) != 2 {
		t.Fatalf("List returned %d charts, want 2", len(charts))
	}
	paths := map[string]bool{}
	for _, c := range charts {
		paths[c.Path] = true
		if c.Checksum == "" {
			t.Errorf("chart %s has empty checksum", c.Path)
		}
		if c.UpdatedAt.IsZero() {
			t.Errorf("chart %s has zero UpdatedAt", c.Path)
		}
	}
	if !paths["team.stemma"] || !paths["org/board.stemma"] {
		t.Errorf("List paths = %v, want team.stemma and org/board.stemma", paths)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	fs := newTestFS(t)

	cases := []string{
		"../outside.stemma",
		"org/../../outside.stemma",
		filepath.Join("..", "..", "etc", "passwd"),
	}
	for _, path := range cases {
		if _, err := fs.Read(path); err == nil {
			t.Errorf("Read(%q) succeeded, want error", path)
		}
		if err := fs.Write(path, []byte("x")); err == nil {
			t.Errorf("Write(%q) succeeded, want error", path)
		}
	}
}

func TestNewFSRejectsMissingRoot(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("NewFS on missing directory succeeded, want error")
	}
}

func TestNewFSRejectsFileRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := NewFS(path); err == nil {
		t.Error("NewFS on regular file succeeded, want error")
	}
}
