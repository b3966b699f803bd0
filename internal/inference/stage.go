package inference

import (
	"context"

	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/features"
)

// Stage is one model invocation in the chain: a vector in, one number out.
// Implementations must be safe for concurrent use and free of side effects.
type Stage interface {
	Name() string
	NFeatures() int
	Predict(ctx context.Context, v features.FeatureVector) (float64, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Features  int
	Fn        func(ctx context.Context, v features.FeatureVector) (float64, error)
}

// Name implements Stage
func (s StageFunc) Name() string { return s.StageName }

// NFeatures implements Stage
func (s StageFunc) NFeatures() int { return s.Features }

// Predict implements Stage
func (s StageFunc) Predict(ctx context.Context, v features.FeatureVector) (float64, error) {
	if len(v) != s.Features {
		return 0, domain.NewPredictionError(domain.ErrInvalidFeatureVector, "",
			"stage %s expects %d features, got %d", s.StageName, s.Features, len(v))
	}
	return s.Fn(ctx, v)
}

// LocalStage evaluates a model loaded into memory.
type LocalStage struct {
	name  string
	model *Model
}

// NewLocalStage wraps a validated model.
func NewLocalStage(name string, model *Model) *LocalStage {
	return &LocalStage{name: name, model: model}
}

// Name implements Stage
func (s *LocalStage) Name() string { return s.name }

// NFeatures implements Stage
func (s *LocalStage) NFeatures() int { return s.model.NFeatures }

// Model returns the underlying model.
func (s *LocalStage) Model() *Model { return s.model }

// Predict implements Stage
func (s *LocalStage) Predict(_ context.Context, v features.FeatureVector) (float64, error) {
	return s.model.Predict(v)
}
