package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/patient-predict-server/internal/database"
	"github.com/patient-predict-server/internal/domain"
)

// VersionInfo describes one stored bundle.
type VersionInfo struct {
	Version   string    `json:"version"`
	Files     int       `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}

// Source yields bundle files. An empty version means the latest bundle.
type Source interface {
	Fetch(ctx context.Context, version string) (Files, error)
	Versions(ctx context.Context) ([]VersionInfo, error)
	Close() error
}

// Store is a Source that bundles can be imported into.
type Store interface {
	Source
	Save(ctx context.Context, files Files) (string, error)
}

// DirSource reads a single bundle from a directory on disk.
type DirSource struct {
	dir string
}

// NewDirSource creates a directory source.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Fetch reads every regular file of the directory.
func (d *DirSource) Fetch(_ context.Context, version string) (Files, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading bundle directory: %v", domain.ErrArtifact, err)
	}

	files := make(Files)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrArtifact, entry.Name(), err)
		}
		files[entry.Name()] = data
	}

	if version != "" {
		manifest, err := manifestOf(files)
		if err != nil {
			return nil, err
		}
		if manifest.Version != version {
			return nil, fmt.Errorf("%w: bundle version %s in %s", domain.ErrNotFound, version, d.dir)
		}
	}
	return files, nil
}

// Versions reports the one bundle in the directory.
func (d *DirSource) Versions(ctx context.Context) ([]VersionInfo, error) {
	files, err := d.Fetch(ctx, "")
	if err != nil {
		return nil, err
	}
	manifest, err := manifestOf(files)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(filepath.Join(d.dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArtifact, err)
	}
	return []VersionInfo{{Version: manifest.Version, Files: len(files), CreatedAt: info.ModTime()}}, nil
}

// Close implements Source
func (d *DirSource) Close() error { return nil }

func manifestOf(files Files) (*Manifest, error) {
	data, ok := files[ManifestFile]
	if !ok {
		return nil, fmt.Errorf("%w: bundle has no %s", domain.ErrArtifact, ManifestFile)
	}
	return ParseManifest(data)
}

// Open returns the source selected by the artifacts configuration.
func Open(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (Source, error) {
	switch cfg.Artifacts.Source {
	case domain.ArtifactSourceDir, "":
		return NewDirSource(cfg.Artifacts.Dir), nil
	case domain.ArtifactSourceSQLite, domain.ArtifactSourcePostgres:
		store, err := OpenStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown artifact source %q", cfg.Artifacts.Source)
	}
}

// OpenStore returns the registry selected by the artifacts configuration.
// A directory source cannot be imported into.
func OpenStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (Store, error) {
	switch cfg.Artifacts.Source {
	case domain.ArtifactSourceSQLite:
		store, err := NewSQLiteStore(cfg.Artifacts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case domain.ArtifactSourcePostgres:
		db, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to artifact registry: %w", err)
		}
		return NewPostgresStore(db, logger), nil
	default:
		return nil, fmt.Errorf("artifact source %q is not a registry", cfg.Artifacts.Source)
	}
}

// LoadBundle fetches and parses a bundle from a source.
func LoadBundle(ctx context.Context, src Source, version string, logger *logrus.Logger) (*Bundle, error) {
	files, err := src.Fetch(ctx, version)
	if err != nil {
		return nil, err
	}
	bundle, err := Load(files)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"version": bundle.Version(),
		"files":   len(files),
		"remote":  remoteRoles(bundle),
	}).Info("Artifact bundle loaded")

	return bundle, nil
}

// Import copies the bundle of one source into a registry.
func Import(ctx context.Context, from Source, to Store, logger *logrus.Logger) (string, error) {
	files, err := from.Fetch(ctx, "")
	if err != nil {
		return "", err
	}
	// Refuse bundles that would not load.
	if _, err := Load(files); err != nil {
		return "", err
	}
	version, err := to.Save(ctx, files)
	if err != nil {
		return "", err
	}

	logger.WithFields(logrus.Fields{
		"version": version,
		"files":   files.Names(),
	}).Info("Artifact bundle imported")
	return version, nil
}

func remoteRoles(b *Bundle) []string {
	var roles []string
	for role, ref := range b.Manifest.Models {
		if ref.Remote != nil {
			roles = append(roles, string(role))
		}
	}
	sort.Strings(roles)
	return roles
}
