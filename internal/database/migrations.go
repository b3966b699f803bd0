package database

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// SchemaStatus describes the artifact registry schema against the migrations
// shipped with the binary.
type SchemaStatus struct {
	Version uint // 0 when nothing is applied
	Latest  uint
	Dirty   bool
}

// Pending reports whether migrations remain to be applied.
func (s SchemaStatus) Pending() bool {
	return s.Version < s.Latest
}

// Ready reports whether the registry tables can be used.
func (s SchemaStatus) Ready() bool {
	return s.Version > 0 && !s.Dirty && !s.Pending()
}

// MigrationRunner applies the artifact registry schema
type MigrationRunner struct {
	migrate   *migrate.Migrate
	sourceURL string
	log       *logrus.Logger
}

// NewMigrationRunner creates a runner over the migrations directory.
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	if info, err := os.Stat(migrationsPath); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("migrations directory %q not found", migrationsPath)
	}
	sourceURL := "file://" + migrationsPath

	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}
	m.Log = migrateLogger{logger}

	return &MigrationRunner{
		migrate:   m,
		sourceURL: sourceURL,
		log:       logger,
	}, nil
}

// Up applies every pending registry migration. Cancelling ctx stops after the
// migration in flight.
func (mr *MigrationRunner) Up(ctx context.Context) error {
	status, err := mr.Status()
	if err != nil {
		return err
	}
	if status.Dirty {
		return fmt.Errorf("registry schema is dirty at version %d; fix it and force the version", status.Version)
	}
	if !status.Pending() {
		mr.log.WithField("version", status.Version).Info("Registry schema is up to date")
		return nil
	}

	if err := mr.run(ctx, mr.migrate.Up); err != nil {
		return fmt.Errorf("migrating registry from %d to %d: %w", status.Version, status.Latest, err)
	}
	mr.log.WithFields(logrus.Fields{"from": status.Version, "to": status.Latest}).Info("Registry schema migrated")
	return nil
}

// Down rolls back the newest applied migration.
func (mr *MigrationRunner) Down(ctx context.Context) error {
	status, err := mr.Status()
	if err != nil {
		return err
	}
	if status.Version == 0 {
		mr.log.Info("No registry migrations to roll back")
		return nil
	}

	if err := mr.run(ctx, func() error { return mr.migrate.Steps(-1) }); err != nil {
		return fmt.Errorf("rolling back registry version %d: %w", status.Version, err)
	}
	mr.log.WithField("from", status.Version).Info("Registry migration rolled back")
	return nil
}

func (mr *MigrationRunner) run(ctx context.Context, step func() error) error {
	done := make(chan error, 1)
	go func() { done <- step() }()

	select {
	case err := <-done:
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return err
	case <-ctx.Done():
		mr.migrate.GracefulStop <- true
		<-done
		return ctx.Err()
	}
}

// Status reads the applied version and the newest shipped migration.
func (mr *MigrationRunner) Status() (SchemaStatus, error) {
	latest, err := LatestMigration(mr.sourceURL)
	if err != nil {
		return SchemaStatus{}, err
	}

	status := SchemaStatus{Latest: latest}
	version, dirty, err := mr.migrate.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return status, nil
	case err != nil:
		return SchemaStatus{}, fmt.Errorf("reading registry schema version: %w", err)
	}
	status.Version = version
	status.Dirty = dirty
	return status, nil
}

// LatestMigration walks a migration source and returns its highest version.
func LatestMigration(sourceURL string) (uint, error) {
	driver, err := source.Open(sourceURL)
	if err != nil {
		return 0, fmt.Errorf("opening migration source: %w", err)
	}
	defer driver.Close()

	version, err := driver.First()
	if err != nil {
		return 0, fmt.Errorf("migration source %s has no migrations: %w", sourceURL, err)
	}
	for {
		next, err := driver.Next(version)
		if errors.Is(err, os.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, fmt.Errorf("reading migration source: %w", err)
		}
		version = next
	}
}

// Close closes the migration runner
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database: %w", dbErr)
	}
	return nil
}

// migrateLogger routes golang-migrate's progress lines to logrus at debug.
type migrateLogger struct {
	logger *logrus.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf("migrate: "+format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.logger.IsLevelEnabled(logrus.DebugLevel)
}
