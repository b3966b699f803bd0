package mcp

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patient-predict-server/internal/artifacts"
	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/features"
	"github.com/patient-predict-server/internal/inference"
	"github.com/patient-predict-server/internal/service"
)

const testBundleDir = "../artifacts/testdata/bundle"

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func newTestServer(t *testing.T, stages *inference.Stages) *Server {
	t.Helper()
	bundle, err := artifacts.LoadBundle(context.Background(), artifacts.NewDirSource(testBundleDir), "", testLogger())
	require.NoError(t, err)

	if stages == nil {
		built, closeStages, err := bundle.Stages(inference.RemoteConfig{}, testLogger())
		require.NoError(t, err)
		t.Cleanup(closeStages)
		stages = &built
	}

	predictor, err := service.NewPredictorService(bundle, *stages, nil, testLogger())
	require.NoError(t, err)

	return NewServer(domain.MCPConfig{ServerName: "patient-predict", ServerVersion: "1.0.0"}, predictor, testLogger())
}

func scenario() PredictParams {
	return PredictParams{
		PatientArea: "North",
		Diagnosis:   "Flu",
		Gender:      "Male",
		Age:         domain.IntPtr(34),
		Month:       "March",
		Severity:    "Moderate",
	}
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	content, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func TestNewServer(t *testing.T) {
	server := newTestServer(t, nil)

	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.logger)
}

func TestHandlePredict(t *testing.T) {
	server := newTestServer(t, nil)

	result, out, err := server.handlePredict(context.Background(), nil, scenario())

	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, text(t, result), "Treatment: Rest")
	assert.Contains(t, text(t, result), "Recovery days: 9")

	predicted, ok := out.(PredictResult)
	require.True(t, ok)
	assert.Equal(t, "Recovered", predicted.Outcome)
	assert.InDelta(t, 8.7, predicted.RecoveryDaysRaw, 1e-9)
	assert.Equal(t, "2024.06.1", predicted.ArtifactVersion)
}

func TestHandlePredict_StubStagesFeedRawValues(t *testing.T) {
	var outcomeSaw features.FeatureVector
	stages := inference.Stages{
		Treatment: inference.StageFunc{StageName: "treatment", Features: 6, Fn: func(context.Context, features.FeatureVector) (float64, error) {
			return 2, nil
		}},
		Recovery: inference.StageFunc{StageName: "recovery", Features: 7, Fn: func(context.Context, features.FeatureVector) (float64, error) {
			return 5.7, nil
		}},
		Outcome: inference.StageFunc{StageName: "outcome", Features: 8, Fn: func(_ context.Context, v features.FeatureVector) (float64, error) {
			outcomeSaw = v.Clone()
			return 1, nil
		}},
	}
	server := newTestServer(t, &stages)

	result, out, err := server.handlePredict(context.Background(), nil, scenario())

	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 6, out.(PredictResult).RecoveryDays)
	assert.Equal(t, features.FeatureVector{1, 1, 1, 34, 7, 1, 2, 5.7}, outcomeSaw)
}

func TestHandlePredict_IncompleteInput(t *testing.T) {
	server := newTestServer(t, nil)
	params := scenario()
	params.Gender = domain.Placeholder
	params.Age = nil

	result, out, err := server.handlePredict(context.Background(), nil, params)

	require.NoError(t, err)
	assert.Nil(t, out)
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), domain.CodeIncompleteInput)
	assert.Contains(t, text(t, result), "gender")
	assert.Contains(t, text(t, result), "age")
}

func TestHandlePredict_StageFailure(t *testing.T) {
	stages := inference.Stages{
		Treatment: inference.StageFunc{StageName: "treatment", Features: 6, Fn: func(context.Context, features.FeatureVector) (float64, error) {
			return 0, fmt.Errorf("%w: timeout", domain.ErrStageUnavailable)
		}},
		Recovery: inference.StageFunc{StageName: "recovery", Features: 7},
		Outcome:  inference.StageFunc{StageName: "outcome", Features: 8},
	}
	server := newTestServer(t, &stages)

	result, _, err := server.handlePredict(context.Background(), nil, scenario())

	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(text(t, result), "Error "+domain.CodeStageUnavailable))
}

func TestHandleForm(t *testing.T) {
	server := newTestServer(t, nil)

	result, out, err := server.handleForm(context.Background(), nil, FormParams{})

	require.NoError(t, err)
	assert.Contains(t, text(t, result), `"patient_area"`)
	form, ok := out.(*domain.FormDescription)
	require.True(t, ok)
	assert.Len(t, form.Fields, 6)
}

func TestHandleVocabulary(t *testing.T) {
	server := newTestServer(t, nil)

	result, _, err := server.handleVocabulary(context.Background(), nil, VocabularyParams{Field: "gender"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "gender: Female, Male", text(t, result))

	result, _, err = server.handleVocabulary(context.Background(), nil, VocabularyParams{Field: "blood_type"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), domain.CodeNotFound)
}
