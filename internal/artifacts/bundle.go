package artifacts

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/encoding"
	"github.com/patient-predict-server/internal/inference"
)

// ManifestFile is the entry point of every bundle.
const ManifestFile = "manifest.yaml"

// Role identifies one of the three chain stages.
type Role string

// Stage roles
const (
	RoleTreatment Role = "treatment"
	RoleRecovery  Role = "recovery"
	RoleOutcome   Role = "outcome"
)

// Roles lists the stages in chain order.
var Roles = []Role{RoleTreatment, RoleRecovery, RoleOutcome}

// ModelRef points at a local model file or a remote model endpoint.
type ModelRef struct {
	File   string                `yaml:"file,omitempty"`
	Remote *inference.RemoteSpec `yaml:"remote,omitempty"`
}

// Manifest describes a bundle.
type Manifest struct {
	Version      string            `yaml:"version"`
	FeatureOrder []domain.Field    `yaml:"feature_order"`
	Encoders     string            `yaml:"encoders"`
	Models       map[Role]ModelRef `yaml:"models"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
}

// Files is a bundle as raw named payloads, the unit stored by every source.
type Files map[string][]byte

// Names returns the file names in sorted order.
func (f Files) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseManifest decodes and checks a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decoding manifest: %v", domain.ErrArtifact, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest is complete and that its feature order is the
// one the assembler produces.
func (m *Manifest) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("%w: manifest has no version", domain.ErrArtifact)
	}
	if m.Encoders == "" {
		return fmt.Errorf("%w: manifest names no encoder file", domain.ErrArtifact)
	}
	if len(m.FeatureOrder) != len(domain.FeatureOrder) {
		return fmt.Errorf("%w: feature_order has %d entries, expected %v",
			domain.ErrArtifact, len(m.FeatureOrder), domain.FeatureOrder)
	}
	for i, field := range domain.FeatureOrder {
		if m.FeatureOrder[i] != field {
			return fmt.Errorf("%w: feature_order[%d] is %q, expected %q",
				domain.ErrArtifact, i, m.FeatureOrder[i], field)
		}
	}
	for _, role := range Roles {
		ref, ok := m.Models[role]
		if !ok {
			return fmt.Errorf("%w: manifest has no %s model", domain.ErrArtifact, role)
		}
		if (ref.File == "") == (ref.Remote == nil) {
			return fmt.Errorf("%w: %s model needs exactly one of file or remote", domain.ErrArtifact, role)
		}
	}
	return nil
}

// Bundle is the loaded, immutable set of artifacts behind one chain.
type Bundle struct {
	Manifest *Manifest
	Registry *encoding.Registry
	Models   map[Role]*inference.Model
}

// Version returns the manifest version.
func (b *Bundle) Version() string {
	return b.Manifest.Version
}

// Load parses every file the manifest references and cross-checks models
// against the encoders.
func Load(files Files) (*Bundle, error) {
	data, ok := files[ManifestFile]
	if !ok {
		return nil, fmt.Errorf("%w: bundle has no %s", domain.ErrArtifact, ManifestFile)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}

	encData, ok := files[manifest.Encoders]
	if !ok {
		return nil, fmt.Errorf("%w: encoder file %q not in bundle", domain.ErrArtifact, manifest.Encoders)
	}
	registry, err := encoding.ParseRegistry(encData)
	if err != nil {
		return nil, err
	}

	models := make(map[Role]*inference.Model)
	for _, role := range Roles {
		ref := manifest.Models[role]
		if ref.File == "" {
			continue
		}
		payload, ok := files[ref.File]
		if !ok {
			return nil, fmt.Errorf("%w: %s model file %q not in bundle", domain.ErrArtifact, role, ref.File)
		}
		model, err := inference.ParseModel(payload)
		if err != nil {
			return nil, fmt.Errorf("%s model: %w", role, err)
		}
		models[role] = model
	}

	bundle := &Bundle{Manifest: manifest, Registry: registry, Models: models}
	if err := bundle.checkLabels(); err != nil {
		return nil, err
	}
	return bundle, nil
}

// checkLabels makes sure local classifiers only emit codes their label
// encoder can decode.
func (b *Bundle) checkLabels() error {
	labels := map[Role]domain.Field{
		RoleTreatment: domain.FieldTreatment,
		RoleOutcome:   domain.FieldOutcome,
	}
	for role, field := range labels {
		model, ok := b.Models[role]
		if !ok {
			continue
		}
		if model.Task != inference.TaskClassification {
			return fmt.Errorf("%w: %s model must be a classifier", domain.ErrArtifact, role)
		}
		n, err := b.Registry.Cardinality(field)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrArtifact, err)
		}
		for _, class := range model.Classes {
			if class < 0 || class >= n {
				return fmt.Errorf("%w: %s model emits class %d, %s encoder has %d categories",
					domain.ErrArtifact, role, class, field, n)
			}
		}
	}
	if model, ok := b.Models[RoleRecovery]; ok && model.Task != inference.TaskRegression {
		return fmt.Errorf("%w: recovery model must be a regressor", domain.ErrArtifact)
	}
	return nil
}

// Stages builds one Stage per role. The returned close function releases
// remote stage connections.
func (b *Bundle) Stages(config inference.RemoteConfig, logger *logrus.Logger) (inference.Stages, func(), error) {
	built := make(map[Role]inference.Stage, len(Roles))
	var remotes []*inference.RemoteStage
	closeAll := func() {
		for _, r := range remotes {
			r.Close()
		}
	}

	for _, role := range Roles {
		if model, ok := b.Models[role]; ok {
			built[role] = inference.NewLocalStage(string(role), model)
			continue
		}
		remote, err := inference.NewRemoteStage(string(role), *b.Manifest.Models[role].Remote, config, logger)
		if err != nil {
			closeAll()
			return inference.Stages{}, nil, err
		}
		remotes = append(remotes, remote)
		built[role] = remote
	}

	return inference.Stages{
		Treatment: built[RoleTreatment],
		Recovery:  built[RoleRecovery],
		Outcome:   built[RoleOutcome],
	}, closeAll, nil
}
