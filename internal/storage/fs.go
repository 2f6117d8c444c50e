package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/stemma/internal/checksum"
	"github.com/starford/stemma/internal/models"
)

// FS implements Provider over a local directory tree.
type FS struct {
	root string
}

// NewFS creates a file-system provider rooted at the given library directory.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve library root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat library root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root %s is not a directory", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute path of the library root.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves rel against the root and rejects paths that escape it.
func (f *FS) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(f.root, rel))
	if cleaned != f.root && !strings.HasPrefix(cleaned, f.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes library root", rel)
	}
	return cleaned, nil
}

func (f *FS) List(dir string) ([]models.ChartMeta, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var charts []models.ChartMeta
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), Ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		charts = append(charts, models.ChartMeta{
			Path:      filepath.ToSlash(rel),
			Checksum:  checksum.Sum(content),
			UpdatedAt: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list charts: %w", err)
	}
	return charts, nil
}

func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read chart: %w", err)
	}
	return content, nil
}

// Write stores content atomically: a temp file in the target directory is
// synced and then renamed over the destination, so watchers never observe a
// partially written chart.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".stemma-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("chart %s does not exist: %w", path, err)
		}
		return fmt.Errorf("delete chart: %w", err)
	}
	return nil
}

func (f *FS) Move(oldPath, newPath string) error {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("move chart: %w", err)
	}
	return nil
}
