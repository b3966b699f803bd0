package inference

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/features"
)

// Stages are the three configured instances of the chain.
type Stages struct {
	Treatment Stage
	Recovery  Stage
	Outcome   Stage
}

// ChainResult holds the raw output of every stage.
type ChainResult struct {
	TreatmentCode int
	RecoveryDays  float64 // unrounded regression output
	OutcomeCode   int
}

// Chain runs treatment → recovery → outcome. Each stage receives the previous
// vector augmented with the previous stage's raw output.
type Chain struct {
	stages           Stages
	schema           features.Schema
	treatmentClasses int
	outcomeClasses   int
	logger           *logrus.Logger
}

// NewChain checks that each stage accepts the vector length it will be given.
func NewChain(stages Stages, schema features.Schema, treatmentClasses, outcomeClasses int, logger *logrus.Logger) (*Chain, error) {
	expected := []struct {
		stage Stage
		role  string
		n     int
	}{
		{stages.Treatment, "treatment", features.BaseLength},
		{stages.Recovery, "recovery", features.WithTreatmentLength},
		{stages.Outcome, "outcome", features.FullLength},
	}
	for _, e := range expected {
		if e.stage == nil {
			return nil, fmt.Errorf("%w: %s stage is missing", domain.ErrArtifact, e.role)
		}
		if e.stage.NFeatures() != e.n {
			return nil, fmt.Errorf("%w: %s stage expects %d features, the chain supplies %d",
				domain.ErrArtifact, e.role, e.stage.NFeatures(), e.n)
		}
	}
	if len(schema) != features.FullLength {
		return nil, fmt.Errorf("feature schema has %d columns, expected %d", len(schema), features.FullLength)
	}

	return &Chain{
		stages:           stages,
		schema:           schema,
		treatmentClasses: treatmentClasses,
		outcomeClasses:   outcomeClasses,
		logger:           logger,
	}, nil
}

// Run executes the three stages in order and stops at the first failure.
func (c *Chain) Run(ctx context.Context, base features.FeatureVector) (*ChainResult, error) {
	if err := c.schema.Validate(base, features.BaseLength); err != nil {
		return nil, fmt.Errorf("treatment stage: %w", err)
	}

	rawTreatment, err := c.stages.Treatment.Predict(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("treatment stage: %w", err)
	}
	treatmentCode, err := labelCode(rawTreatment, c.treatmentClasses, domain.FieldTreatment)
	if err != nil {
		return nil, fmt.Errorf("treatment stage: %w", err)
	}

	withTreatment := features.Augment(base, rawTreatment)
	if err := c.schema.Validate(withTreatment, features.WithTreatmentLength); err != nil {
		return nil, fmt.Errorf("recovery stage: %w", err)
	}

	recoveryDays, err := c.stages.Recovery.Predict(ctx, withTreatment)
	if err != nil {
		return nil, fmt.Errorf("recovery stage: %w", err)
	}

	full := features.Augment(withTreatment, recoveryDays)
	if err := c.schema.Validate(full, features.FullLength); err != nil {
		return nil, fmt.Errorf("outcome stage: %w", err)
	}

	rawOutcome, err := c.stages.Outcome.Predict(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("outcome stage: %w", err)
	}
	outcomeCode, err := labelCode(rawOutcome, c.outcomeClasses, domain.FieldOutcome)
	if err != nil {
		return nil, fmt.Errorf("outcome stage: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"treatment_code": treatmentCode,
		"recovery_days":  recoveryDays,
		"outcome_code":   outcomeCode,
	}).Debug("Inference chain completed")

	return &ChainResult{
		TreatmentCode: treatmentCode,
		RecoveryDays:  recoveryDays,
		OutcomeCode:   outcomeCode,
	}, nil
}

// labelCode checks that a classifier output is a code the label encoder knows.
func labelCode(raw float64, classes int, field domain.Field) (int, error) {
	if math.IsNaN(raw) || raw != math.Trunc(raw) || raw < 0 || raw >= float64(classes) {
		return 0, domain.NewPredictionError(domain.ErrUnknownCode, field,
			"model produced %v, expected a code in 0..%d", raw, classes-1)
	}
	return int(raw), nil
}
