package poscache

import (
	"fmt"
	"sort"
	"time"

	"github.com/starford/stemma/internal/models"
)

// ChartRow represents a row in the charts table.
type ChartRow struct {
	Path      string
	Checksum  string
	View      models.ViewMode
	UpdatedAt time.Time
}

// UpsertChart inserts or refreshes a chart's metadata. The stored view
// preference survives updates; it only changes through SetView.
func (db *DB) UpsertChart(row ChartRow) error {
	view := row.View
	if !view.Valid() {
		view = models.ViewTree
	}
	_, err := db.conn.Exec(`
		INSERT INTO charts (path, checksum, view, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, row.Path, row.Checksum, string(view), row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("poscache: upsert chart: %w", err)
	}
	return nil
}

// DeleteChart removes a chart's metadata and all its saved positions.
func (db *DB) DeleteChart(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("poscache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, _ = tx.Exec(`DELETE FROM positions WHERE chart = ?`, path)
	_, _ = tx.Exec(`DELETE FROM charts WHERE path = ?`, path)

	return tx.Commit()
}

// GetChart returns the stored row for a chart, or nil if it is not cached.
func (db *DB) GetChart(path string) (*ChartRow, error) {
	var row ChartRow
	var view string
	err := db.conn.QueryRow(`
		SELECT path, checksum, view, updated_at FROM charts WHERE path = ?
	`, path).Scan(&row.Path, &row.Checksum, &view, &row.UpdatedAt)
	if err != nil {
		return nil, nil // not cached is fine
	}
	row.View = models.ViewMode(view)
	if !row.View.Valid() {
		row.View = models.ViewTree
	}
	return &row, nil
}

// GetChecksum returns the stored checksum for a chart, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM charts WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// SetView stores the view preference for a chart.
func (db *DB) SetView(path string, view models.ViewMode) error {
	if !view.Valid() {
		return fmt.Errorf("poscache: unknown view mode %q", view)
	}
	_, err := db.conn.Exec(`UPDATE charts SET view = ? WHERE path = ?`, string(view), path)
	if err != nil {
		return fmt.Errorf("poscache: set view: %w", err)
	}
	return nil
}

// SavePosition upserts one record's dragged coordinate.
func (db *DB) SavePosition(chart, record string, pos models.Position) error {
	_, err := db.conn.Exec(`
		INSERT INTO positions (chart, record, x, y)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chart, record) DO UPDATE SET
			x = excluded.x,
			y = excluded.y
	`, chart, record, pos.X, pos.Y)
	if err != nil {
		return fmt.Errorf("poscache: save position: %w", err)
	}
	return nil
}

// Positions returns every saved position for a chart, keyed by record id.
func (db *DB) Positions(chart string) (map[string]models.Position, error) {
	rows, err := db.conn.Query(`SELECT record, x, y FROM positions WHERE chart = ?`, chart)
	if err != nil {
		return nil, fmt.Errorf("poscache: positions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.Position)
	for rows.Next() {
		var record string
		var pos models.Position
		if err := rows.Scan(&record, &pos.X, &pos.Y); err != nil {
			return nil, err
		}
		out[record] = pos
	}
	return out, rows.Err()
}

// ReplacePositions rewrites a chart's position set: delete old then bulk
// insert. Records absent from positions lose their saved coordinate, which
// is how stale entries are pruned after structural edits.
func (db *DB) ReplacePositions(chart string, positions map[string]models.Position) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("poscache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM positions WHERE chart = ?`, chart)
	if len(positions) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO positions (chart, record, x, y) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("poscache: prepare position insert: %w", err)
		}
		defer stmt.Close()

		records := make([]string, 0, len(positions))
		for record := range positions {
			records = append(records, record)
		}
		sort.Strings(records)
		for _, record := range records {
			pos := positions[record]
			if _, err := stmt.Exec(chart, record, pos.X, pos.Y); err != nil {
				return fmt.Errorf("poscache: insert position: %w", err)
			}
		}
	}

	return tx.Commit()
}

// AllChecksums returns the stored checksum for every cached chart.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM charts`)
	if err != nil {
		return nil, fmt.Errorf("poscache: all checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, cs string
		if err := rows.Scan(&path, &cs); err != nil {
			return nil, err
		}
		out[path] = cs
	}
	return out, rows.Err()
}
