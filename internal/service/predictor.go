// Package service wires the encoders, feature assembler and inference chain
// into the prediction pipeline used by every presentation surface.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/patient-predict-server/internal/artifacts"
	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/encoding"
	"github.com/patient-predict-server/internal/features"
	"github.com/patient-predict-server/internal/inference"
)

// PredictorService implements domain.Predictor. It holds only immutable state
// and is safe for concurrent use.
type PredictorService struct {
	version   string
	registry  *encoding.Registry
	assembler *features.Assembler
	chain     *inference.Chain
	cache     *ResultCache
	logger    *logrus.Logger
}

// NewPredictorService builds the pipeline over a loaded bundle. cache may be nil.
func NewPredictorService(bundle *artifacts.Bundle, stages inference.Stages, cache *ResultCache, logger *logrus.Logger) (*PredictorService, error) {
	assembler, err := features.NewAssembler(bundle.Registry)
	if err != nil {
		return nil, fmt.Errorf("building feature assembler: %w", err)
	}

	treatmentClasses, err := bundle.Registry.Cardinality(domain.FieldTreatment)
	if err != nil {
		return nil, err
	}
	outcomeClasses, err := bundle.Registry.Cardinality(domain.FieldOutcome)
	if err != nil {
		return nil, err
	}

	chain, err := inference.NewChain(stages, assembler.Schema(), treatmentClasses, outcomeClasses, logger)
	if err != nil {
		return nil, fmt.Errorf("building inference chain: %w", err)
	}

	return &PredictorService{
		version:   bundle.Version(),
		registry:  bundle.Registry,
		assembler: assembler,
		chain:     chain,
		cache:     cache,
		logger:    logger,
	}, nil
}

// Version returns the artifact version predictions are made with.
func (s *PredictorService) Version() string {
	return s.version
}

// Predict validates, encodes, runs the chain and decodes the labels.
func (s *PredictorService) Predict(ctx context.Context, input *domain.PatientInput) (*domain.PredictionResult, error) {
	start := time.Now()
	if input == nil {
		input = &domain.PatientInput{}
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	key := CacheKey(s.version, input)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			cached.ID = uuid.New().String()
			cached.Cached = true
			cached.ProcessingTime = time.Since(start)
			s.logger.WithFields(logrus.Fields{
				"prediction_id": cached.ID,
				"treatment":     cached.Treatment,
				"outcome":       cached.Outcome,
			}).Debug("Prediction served from cache")
			return cached, nil
		}
	}

	codes, err := s.registry.EncodeInput(input)
	if err != nil {
		return nil, err
	}
	base, err := s.assembler.Assemble(codes, *input.Age)
	if err != nil {
		return nil, err
	}

	out, err := s.chain.Run(ctx, base)
	if err != nil {
		s.logger.WithError(err).Error("Inference chain failed")
		return nil, err
	}

	treatment, err := s.registry.Decode(domain.FieldTreatment, out.TreatmentCode)
	if err != nil {
		return nil, err
	}
	outcome, err := s.registry.Decode(domain.FieldOutcome, out.OutcomeCode)
	if err != nil {
		return nil, err
	}

	result := &domain.PredictionResult{
		ID:              uuid.New().String(),
		Treatment:       treatment,
		RecoveryDays:    DisplayDays(out.RecoveryDays),
		RecoveryDaysRaw: out.RecoveryDays,
		Outcome:         outcome,
		ArtifactVersion: s.version,
		TreatmentCode:   out.TreatmentCode,
		OutcomeCode:     out.OutcomeCode,
		ProcessingTime:  time.Since(start),
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, result)
	}

	s.logger.WithFields(logrus.Fields{
		"prediction_id":   result.ID,
		"treatment":       result.Treatment,
		"recovery_days":   result.RecoveryDaysRaw,
		"outcome":         result.Outcome,
		"processing_time": result.ProcessingTime,
	}).Info("Prediction completed")

	return result, nil
}

// DisplayDays rounds a recovery estimate half to even.
func DisplayDays(days float64) int {
	return int(math.RoundToEven(days))
}

// Form describes every input field in form order.
func (s *PredictorService) Form() *domain.FormDescription {
	form := &domain.FormDescription{
		ArtifactVersion: s.version,
		Placeholder:     domain.Placeholder,
	}
	for _, field := range []domain.Field{
		domain.FieldPatientArea, domain.FieldDiagnosis, domain.FieldGender,
		domain.FieldAge, domain.FieldMonth, domain.FieldSeverity,
	} {
		if field == domain.FieldAge {
			form.Fields = append(form.Fields, domain.FieldVocabulary{
				Field:   field,
				Min:     domain.IntPtr(domain.MinAge),
				Max:     domain.IntPtr(domain.MaxAge),
				Default: domain.IntPtr(domain.DefaultAge),
			})
			continue
		}
		categories, _ := s.registry.Vocabulary(field)
		form.Fields = append(form.Fields, domain.FieldVocabulary{Field: field, Categories: categories})
	}
	return form
}

// Vocabulary lists the categories of an encoded field in code order.
func (s *PredictorService) Vocabulary(field domain.Field) ([]string, error) {
	categories, err := s.registry.Vocabulary(field)
	if err != nil {
		return nil, fmt.Errorf("%w: no vocabulary for field %q", domain.ErrNotFound, field)
	}
	return categories, nil
}

// IsClientError reports whether err was caused by the submission rather than
// by the artifacts or a stage.
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrIncompleteInput) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrUnknownCategory)
}
