// Package artifacts indexes generated spreadsheet artifacts so the boundary
// can retrieve and delete them after the producing run completes.
package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/certiflow/certiflow/internal/template"
)

// ErrNotFound is returned when an artifact id is not in the registry.
var ErrNotFound = errors.New("artifacts: not found")

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	id         TEXT PRIMARY KEY,
	template   TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	path       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

// Registry is a SQLite-backed artifact index. Rows are written once per
// pipeline run and removed when the caller deletes the artifact.
type Registry struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(ctx context.Context, path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open artifact db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init artifact db: %w", err)
	}
	return &Registry{db: db, logger: logger}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// Record stores a freshly generated artifact.
func (r *Registry) Record(ctx context.Context, a template.Artifact) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, template, checksum, path, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Template, a.Checksum, a.Path, a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record artifact %s: %w", a.ID, err)
	}
	r.logger.Info("artifacts.recorded", "artifact_id", a.ID, "template", a.Template)
	return nil
}

// Get looks up an artifact by id.
func (r *Registry) Get(ctx context.Context, id string) (template.Artifact, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, template, checksum, path, created_at FROM artifacts WHERE id = ?`, id)
	return scanArtifact(row)
}

// Delete removes an artifact row.
func (r *Registry) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete artifact %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all artifacts, newest first.
func (r *Registry) List(ctx context.Context) ([]template.Artifact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, template, checksum, path, created_at FROM artifacts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []template.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (template.Artifact, error) {
	var a template.Artifact
	var createdAt string
	err := row.Scan(&a.ID, &a.Template, &a.Checksum, &a.Path, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return template.Artifact{}, ErrNotFound
	}
	if err != nil {
		return template.Artifact{}, fmt.Errorf("scan artifact: %w", err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return template.Artifact{}, fmt.Errorf("parse created_at: %w", err)
	}
	return a, nil
}
