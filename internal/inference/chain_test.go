package inference

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/encoding"
	"github.com/patient-predict-server/internal/features"
)

// recordingStage returns a fixed value and remembers every vector it saw.
type recordingStage struct {
	name  string
	n     int
	value float64
	err   error

	mu   sync.Mutex
	seen []features.FeatureVector
}

func (s *recordingStage) Name() string   { return s.name }
func (s *recordingStage) NFeatures() int { return s.n }

func (s *recordingStage) Predict(_ context.Context, v features.FeatureVector) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, v.Clone())
	return s.value, s.err
}

func (s *recordingStage) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func testSchema(t *testing.T) features.Schema {
	t.Helper()
	reg, err := encoding.NewRegistry(map[domain.Field][]string{
		domain.FieldPatientArea: {"East", "North", "South", "West"},
		domain.FieldDiagnosis:   {"Asthma", "Flu", "Fracture"},
		domain.FieldGender:      {"Female", "Male"},
		domain.FieldMonth:       {"April", "February", "January", "March"},
		domain.FieldSeverity:    {"Mild", "Moderate", "Severe"},
		domain.FieldTreatment:   {"Antibiotics", "Cast", "Inhaler", "Rest"},
		domain.FieldOutcome:     {"Readmitted", "Recovered"},
	})
	require.NoError(t, err)
	schema, err := features.NewSchema(reg)
	require.NoError(t, err)
	return schema
}

type stubs struct {
	treatment, recovery, outcome *recordingStage
}

func newStubs() *stubs {
	return &stubs{
		treatment: &recordingStage{name: "treatment", n: 6, value: 2},
		recovery:  &recordingStage{name: "recovery", n: 7, value: 5.7},
		outcome:   &recordingStage{name: "outcome", n: 8, value: 1},
	}
}

func (s *stubs) chain(t *testing.T) *Chain {
	t.Helper()
	chain, err := NewChain(Stages{
		Treatment: s.treatment,
		Recovery:  s.recovery,
		Outcome:   s.outcome,
	}, testSchema(t), 4, 2, testLogger())
	require.NoError(t, err)
	return chain
}

func TestChain_RunFeedsRawOutputsForward(t *testing.T) {
	s := newStubs()
	chain := s.chain(t)
	base := features.FeatureVector{1, 1, 1, 34, 3, 1}

	result, err := chain.Run(context.Background(), base)

	require.NoError(t, err)
	assert.Equal(t, 2, result.TreatmentCode)
	assert.Equal(t, 5.7, result.RecoveryDays)
	assert.Equal(t, 1, result.OutcomeCode)

	require.Equal(t, 1, s.treatment.calls())
	require.Equal(t, 1, s.recovery.calls())
	require.Equal(t, 1, s.outcome.calls())
	assert.Equal(t, features.FeatureVector{1, 1, 1, 34, 3, 1}, s.treatment.seen[0])
	assert.Equal(t, features.FeatureVector{1, 1, 1, 34, 3, 1, 2}, s.recovery.seen[0])
	// The outcome stage sees the unrounded recovery estimate.
	assert.Equal(t, features.FeatureVector{1, 1, 1, 34, 3, 1, 2, 5.7}, s.outcome.seen[0])

	// Base vector is untouched.
	assert.Equal(t, features.FeatureVector{1, 1, 1, 34, 3, 1}, base)
}

func TestChain_OutcomeDependsOnRawTreatmentCode(t *testing.T) {
	schema := testSchema(t)
	// Keys on column 6: treatment code 2 gives class 1, anything else class 0.
	outcome := &Model{
		Name: "outcome", Task: TaskClassification, Kind: KindForest, NFeatures: 8,
		Classes: []int{0, 1},
		Trees: []Tree{{Nodes: []Node{
			{Feature: 6, Threshold: 1.5, Left: 1, Right: 2},
			{Left: leafMarker, Value: []float64{1, 0}},
			{Feature: 6, Threshold: 2.5, Left: 3, Right: 4},
			{Left: leafMarker, Value: []float64{0, 1}},
			{Left: leafMarker, Value: []float64{1, 0}},
		}}},
	}
	require.NoError(t, outcome.Validate())

	run := func(treatmentCode float64) int {
		chain, err := NewChain(Stages{
			Treatment: &recordingStage{name: "treatment", n: 6, value: treatmentCode},
			Recovery:  &recordingStage{name: "recovery", n: 7, value: 5.7},
			Outcome:   NewLocalStage("outcome", outcome),
		}, schema, 4, 2, testLogger())
		require.NoError(t, err)
		result, err := chain.Run(context.Background(), features.FeatureVector{1, 1, 1, 34, 3, 1})
		require.NoError(t, err)
		return result.OutcomeCode
	}

	assert.Equal(t, 1, run(2))
	assert.Equal(t, 0, run(0))
	assert.Equal(t, 0, run(3))
}

func TestChain_Deterministic(t *testing.T) {
	s := newStubs()
	chain := s.chain(t)
	base := features.FeatureVector{0, 2, 1, 70, 0, 2}

	first, err := chain.Run(context.Background(), base)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := chain.Run(context.Background(), base)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestChain_StageFailureAbortsLaterStages(t *testing.T) {
	s := newStubs()
	s.recovery.err = errors.New("model crashed")
	chain := s.chain(t)

	_, err := chain.Run(context.Background(), features.FeatureVector{1, 1, 1, 34, 3, 1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "recovery stage")
	assert.Equal(t, 1, s.treatment.calls())
	assert.Equal(t, 1, s.recovery.calls())
	assert.Equal(t, 0, s.outcome.calls())
}

func TestChain_InvalidBaseVector(t *testing.T) {
	s := newStubs()
	chain := s.chain(t)

	for _, base := range []features.FeatureVector{
		{1, 1, 1, 34, 3},
		{1, 1, 1, 34, 3, 1, 0},
		{9, 1, 1, 34, 3, 1},
	} {
		_, err := chain.Run(context.Background(), base)
		assert.True(t, errors.Is(err, domain.ErrInvalidFeatureVector), "base %v: %v", base, err)
	}
	assert.Equal(t, 0, s.treatment.calls())
}

func TestChain_UnknownTreatmentCode(t *testing.T) {
	for _, value := range []float64{4, -1, 1.5} {
		s := newStubs()
		s.treatment.value = value
		chain := s.chain(t)

		_, err := chain.Run(context.Background(), features.FeatureVector{1, 1, 1, 34, 3, 1})

		assert.True(t, errors.Is(err, domain.ErrUnknownCode), "value %v: %v", value, err)
		assert.Equal(t, 0, s.recovery.calls())
	}
}

func TestChain_UnknownOutcomeCode(t *testing.T) {
	s := newStubs()
	s.outcome.value = 2
	chain := s.chain(t)

	_, err := chain.Run(context.Background(), features.FeatureVector{1, 1, 1, 34, 3, 1})

	assert.True(t, errors.Is(err, domain.ErrUnknownCode))
}

func TestChain_NonFiniteRecoveryRejected(t *testing.T) {
	s := newStubs()
	s.recovery.value = posInf()
	chain := s.chain(t)

	_, err := chain.Run(context.Background(), features.FeatureVector{1, 1, 1, 34, 3, 1})

	assert.True(t, errors.Is(err, domain.ErrInvalidFeatureVector))
	assert.Equal(t, 0, s.outcome.calls())
}

func TestNewChain_StageWidthMismatch(t *testing.T) {
	s := newStubs()
	s.outcome.n = 7

	_, err := NewChain(Stages{
		Treatment: s.treatment,
		Recovery:  s.recovery,
		Outcome:   s.outcome,
	}, testSchema(t), 4, 2, testLogger())

	assert.True(t, errors.Is(err, domain.ErrArtifact))

	_, err = NewChain(Stages{Treatment: s.treatment}, testSchema(t), 4, 2, testLogger())
	assert.True(t, errors.Is(err, domain.ErrArtifact))
}

func TestStageFunc(t *testing.T) {
	stage := StageFunc{
		StageName: "double",
		Features:  2,
		Fn: func(_ context.Context, v features.FeatureVector) (float64, error) {
			return 2 * (v[0] + v[1]), nil
		},
	}

	got, err := stage.Predict(context.Background(), features.FeatureVector{1, 2})
	require.NoError(t, err)
	assert.Equal(t, float64(6), got)

	_, err = stage.Predict(context.Background(), features.FeatureVector{1})
	assert.True(t, errors.Is(err, domain.ErrInvalidFeatureVector))
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}
