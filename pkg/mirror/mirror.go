// Package mirror keeps a durable local copy of a client's rectangles so the
// client can keep working, and re-offer its state, after losing the relay.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/astromechza/rectangle-sync/pkg/rect"
)

// DefaultKey is the row holding the serialized collection.
const DefaultKey = "rectangles"

type Mirror struct {
	database *sql.DB
	path     string
	key      string
}

// Open opens (creating if needed) the sqlite file at path.
func Open(path string) (*Mirror, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mirror path: %w", err)
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", abs))
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror: %w", err)
	}
	m := &Mirror{database: db, path: abs, key: DefaultKey}
	if err := m.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Mirror) init() error {
	if _, err := m.database.Exec(
		`CREATE TABLE IF NOT EXISTS mirrors (
		id text not null primary key,
		content text not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create mirror table: %w", err)
	}
	return nil
}

// Path is the absolute location of the sqlite file.
func (m *Mirror) Path() string {
	return m.path
}

func (m *Mirror) Close() error {
	return m.database.Close()
}

// Save replaces the stored collection with rects.
func (m *Mirror) Save(ctx context.Context, rects []rect.Rectangle) error {
	if rects == nil {
		rects = []rect.Rectangle{}
	}
	content, err := json.Marshal(rects)
	if err != nil {
		return fmt.Errorf("failed to encode mirror: %w", err)
	}
	if _, err := m.database.ExecContext(
		ctx,
		`INSERT INTO mirrors (id, content) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content WHERE content != excluded.content`,
		m.key, string(content),
	); err != nil {
		return fmt.Errorf("failed to save mirror: %w", err)
	}
	return nil
}

// Load returns the stored collection, or an empty one if nothing was saved.
func (m *Mirror) Load(ctx context.Context) ([]rect.Rectangle, error) {
	var content string
	if err := m.database.QueryRowContext(
		ctx, `SELECT content FROM mirrors WHERE id = ?`, m.key,
	).Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []rect.Rectangle{}, nil
		}
		return nil, fmt.Errorf("failed to load mirror: %w", err)
	}
	var rects []rect.Rectangle
	if err := json.Unmarshal([]byte(content), &rects); err != nil {
		return nil, fmt.Errorf("failed to decode mirror: %w", err)
	}
	if rects == nil {
		rects = []rect.Rectangle{}
	}
	return rects, nil
}
