package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/patient-predict-server/internal/artifacts"
	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/inference"
)

// Build loads the configured bundle once and assembles the predictor. The
// returned cleanup closes remote stages, the cache and the artifact source.
func Build(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*PredictorService, func(), error) {
	source, err := artifacts.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening artifact source: %w", err)
	}
	// The bundle is fully in memory once loaded.
	defer source.Close()

	bundle, err := artifacts.LoadBundle(ctx, source, cfg.Artifacts.Version, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading artifacts: %w", err)
	}

	stages, closeStages, err := bundle.Stages(inference.RemoteConfigFrom(cfg.Inference), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building stages: %w", err)
	}

	cache, err := NewResultCache(cfg.Cache, logger)
	if err != nil {
		closeStages()
		return nil, nil, fmt.Errorf("creating result cache: %w", err)
	}

	predictor, err := NewPredictorService(bundle, stages, cache, logger)
	if err != nil {
		closeStages()
		if cache != nil {
			cache.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		closeStages()
		if cache != nil {
			if err := cache.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close result cache")
			}
		}
	}
	return predictor, cleanup, nil
}
