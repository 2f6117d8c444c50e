package poscache

import (
	"log/slog"
	"time"

	"github.com/starford/stemma/internal/storage"
)

// Sync walks the chart library and brings the cache up to date:
//   - new/changed charts get their metadata row refreshed
//   - charts removed from disk are deleted, along with their positions
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		row := ChartRow{Path: m.Path, Checksum: m.Checksum, UpdatedAt: m.UpdatedAt}
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = time.Now().UTC()
		}
		if err := db.UpsertChart(row); err != nil {
			logger.Warn("sync: upsert failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: cached", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteChart(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}
