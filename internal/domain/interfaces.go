package domain

import (
	"context"
)

// Predictor runs the full encode → infer → decode pipeline for one submission.
type Predictor interface {
	Predict(ctx context.Context, input *PatientInput) (*PredictionResult, error)
	Form() *FormDescription
	Vocabulary(field Field) ([]string, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetArtifactsConfig() *ArtifactsConfig
	GetDatabaseConfig() *DatabaseConfig
	Reload() error
	Validate() error
	GetDatabaseURL() string
	IsProduction() bool
	IsDevelopment() bool
}
