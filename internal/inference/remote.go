package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/features"
)

// RemoteSpec points a stage at a model served over HTTP.
type RemoteSpec struct {
	URL       string `yaml:"url" json:"url"`
	NFeatures int    `yaml:"n_features" json:"n_features"`
}

// RemoteConfig represents configuration for remote stage clients
type RemoteConfig struct {
	Timeout        time.Duration
	RateLimit      int // requests per second, 0 disables limiting
	MaxRequests    uint32
	Interval       time.Duration
	BreakerTimeout time.Duration
}

// RemoteConfigFrom converts the inference section of the application config.
func RemoteConfigFrom(cfg domain.InferenceConfig) RemoteConfig {
	return RemoteConfig{
		Timeout:        cfg.RemoteTimeout,
		RateLimit:      cfg.RemoteRateLimit,
		MaxRequests:    cfg.BreakerMaxRequest,
		Interval:       cfg.BreakerInterval,
		BreakerTimeout: cfg.BreakerTimeout,
	}
}

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions []float64 `json:"predictions"`
}

// RemoteStage calls a model endpoint: POST {"instances": [[...]]} answered by
// {"predictions": [x]}. Calls go through a rate limiter and a circuit breaker.
type RemoteStage struct {
	name       string
	url        string
	nFeatures  int
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewRemoteStage creates a remote stage client
func NewRemoteStage(name string, spec RemoteSpec, config RemoteConfig, logger *logrus.Logger) (*RemoteStage, error) {
	if spec.URL == "" {
		return nil, fmt.Errorf("%w: remote stage %s has no url", domain.ErrArtifact, name)
	}
	if spec.NFeatures <= 0 {
		return nil, fmt.Errorf("%w: remote stage %s must declare n_features", domain.ErrArtifact, name)
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.BreakerTimeout == 0 {
		config.BreakerTimeout = 60 * time.Second
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// A rejected vector says nothing about the endpoint's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrInvalidFeatureVector)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"stage": name,
				"from":  from.String(),
				"to":    to.String(),
			}).Warn("Remote stage circuit breaker changed state")
		},
	})

	return &RemoteStage{
		name:      name,
		url:       spec.URL,
		nFeatures: spec.NFeatures,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: &http.Transport{},
		},
		rateLimit: rate.NewLimiter(limit, 1),
		breaker:   breaker,
		logger:    logger,
	}, nil
}

// Name implements Stage
func (r *RemoteStage) Name() string { return r.name }

// NFeatures implements Stage
func (r *RemoteStage) NFeatures() int { return r.nFeatures }

// State returns the circuit breaker state.
func (r *RemoteStage) State() gobreaker.State { return r.breaker.State() }

// Predict implements Stage
func (r *RemoteStage) Predict(ctx context.Context, v features.FeatureVector) (float64, error) {
	if len(v) != r.nFeatures {
		return 0, domain.NewPredictionError(domain.ErrInvalidFeatureVector, "",
			"stage %s expects %d features, got %d", r.name, r.nFeatures, len(v))
	}

	if err := r.rateLimit.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: rate limit wait failed: %v", domain.ErrStageUnavailable, err)
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.call(ctx, v)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, fmt.Errorf("%w: %s circuit breaker open", domain.ErrStageUnavailable, r.name)
		}
		return 0, err
	}
	return result.(float64), nil
}

func (r *RemoteStage) call(ctx context.Context, v features.FeatureVector) (float64, error) {
	body, err := json.Marshal(predictRequest{Instances: [][]float64{v}})
	if err != nil {
		return 0, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s request failed: %v", domain.ErrStageUnavailable, r.name, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%w: reading %s response: %v", domain.ErrStageUnavailable, r.name, err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return 0, domain.NewPredictionError(domain.ErrInvalidFeatureVector, "",
			"stage %s rejected the vector: %s", r.name, bytes.TrimSpace(payload))
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("%w: %s returned status %d", domain.ErrStageUnavailable, r.name, resp.StatusCode)
	}

	var out predictResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return 0, fmt.Errorf("%w: decoding %s response: %v", domain.ErrStageUnavailable, r.name, err)
	}
	if len(out.Predictions) != 1 {
		return 0, fmt.Errorf("%w: %s returned %d predictions for one instance", domain.ErrStageUnavailable, r.name, len(out.Predictions))
	}

	r.logger.WithFields(logrus.Fields{
		"stage":      r.name,
		"prediction": out.Predictions[0],
	}).Debug("Remote stage answered")

	return out.Predictions[0], nil
}

// Close releases idle connections.
func (r *RemoteStage) Close() {
	r.httpClient.CloseIdleConnections()
}
