package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/patient-predict-server/internal/domain"
)

// SQLiteStore keeps bundles in an embedded SQLite registry.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens the registry, creating the file and schema if they
// don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite registry path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// newSQLiteStoreWithDB wraps an already prepared handle.
func newSQLiteStoreWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// created_at holds unix nanoseconds so ordering is exact.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		version TEXT NOT NULL,
		name TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (version, name)
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_created_at ON artifacts(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save replaces every file of the bundle's version in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, files Files) (string, error) {
	manifest, err := manifestOf(files)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM artifacts WHERE version = ?", manifest.Version); err != nil {
		return "", fmt.Errorf("failed to clear version %s: %w", manifest.Version, err)
	}

	now := time.Now().UnixNano()
	for _, name := range files.Names() {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO artifacts (version, name, payload, created_at) VALUES (?, ?, ?, ?)",
			manifest.Version, name, files[name], now,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return manifest.Version, nil
}

// Fetch returns the files of a version, or of the newest one when version
// is empty.
func (s *SQLiteStore) Fetch(ctx context.Context, version string) (Files, error) {
	if version == "" {
		err := s.db.QueryRowContext(ctx,
			"SELECT version FROM artifacts WHERE name = ? ORDER BY created_at DESC LIMIT 1",
			ManifestFile,
		).Scan(&version)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: registry holds no bundles", domain.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find latest version: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT name, payload FROM artifacts WHERE version = ?", version)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	files := make(Files)
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		files[name] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: bundle version %s", domain.ErrNotFound, version)
	}
	return files, nil
}

// Versions lists stored bundles, newest first.
func (s *SQLiteStore) Versions(ctx context.Context) ([]VersionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, COUNT(*), MAX(created_at)
		FROM artifacts
		GROUP BY version
		ORDER BY MAX(created_at) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var versions []VersionInfo
	for rows.Next() {
		var info VersionInfo
		var created int64
		if err := rows.Scan(&info.Version, &info.Files, &created); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		info.CreatedAt = time.Unix(0, created)
		versions = append(versions, info)
	}
	return versions, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
