package artifacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/patient-predict-server/internal/database"
	"github.com/patient-predict-server/internal/domain"
)

// PostgresStore keeps bundles in the shared Postgres registry. The schema is
// owned by the migrations directory.
type PostgresStore struct {
	db     *database.DB
	logger *logrus.Logger
}

// NewPostgresStore creates a registry on an open pool.
func NewPostgresStore(db *database.DB, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Save replaces every file of the bundle's version in one transaction.
func (s *PostgresStore) Save(ctx context.Context, files Files) (string, error) {
	manifest, err := manifestOf(files)
	if err != nil {
		return "", err
	}

	err = pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM artifacts WHERE version = $1", manifest.Version); err != nil {
			return fmt.Errorf("clearing version %s: %w", manifest.Version, err)
		}

		batch := &pgx.Batch{}
		for _, name := range files.Names() {
			batch.Queue(
				"INSERT INTO artifacts (version, name, payload, created_at) VALUES ($1, $2, $3, NOW())",
				manifest.Version, name, files[name],
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return "", fmt.Errorf("saving bundle %s: %w", manifest.Version, err)
	}

	s.logger.WithField("version", manifest.Version).Debug("Bundle stored in Postgres registry")
	return manifest.Version, nil
}

// Fetch returns the files of a version, or of the newest one when version
// is empty.
func (s *PostgresStore) Fetch(ctx context.Context, version string) (Files, error) {
	if version == "" {
		err := s.db.Pool.QueryRow(ctx,
			"SELECT version FROM artifacts WHERE name = $1 ORDER BY created_at DESC, version DESC LIMIT 1",
			ManifestFile,
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: registry holds no bundles", domain.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("finding latest version: %w", err)
		}
	}

	rows, err := s.db.Pool.Query(ctx, "SELECT name, payload FROM artifacts WHERE version = $1", version)
	if err != nil {
		return nil, fmt.Errorf("querying bundle %s: %w", version, err)
	}
	defer rows.Close()

	files := make(Files)
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		files[name] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artifacts: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: bundle version %s", domain.ErrNotFound, version)
	}
	return files, nil
}

// Versions lists stored bundles, newest first.
func (s *PostgresStore) Versions(ctx context.Context) ([]VersionInfo, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT version, COUNT(*), MAX(created_at)
		FROM artifacts
		GROUP BY version
		ORDER BY MAX(created_at) DESC, version DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	var versions []VersionInfo
	for rows.Next() {
		var info VersionInfo
		var count int64
		if err := rows.Scan(&info.Version, &count, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		info.Files = int(count)
		versions = append(versions, info)
	}
	return versions, rows.Err()
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
