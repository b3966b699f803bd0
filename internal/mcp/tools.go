package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/service"
)

// PredictParams defines parameters for the predict_patient_outcome tool.
// Fields are optional in the schema so incomplete submissions reach the
// pipeline and come back listing every missing field.
type PredictParams struct {
	PatientArea string `json:"patient_area,omitempty" jsonschema:"area the patient lives in"`
	Diagnosis   string `json:"diagnosis,omitempty" jsonschema:"diagnosed condition"`
	Gender      string `json:"gender,omitempty" jsonschema:"patient gender"`
	Age         *int   `json:"age,omitempty" jsonschema:"age in years between 0 and 100"`
	Month       string `json:"month,omitempty" jsonschema:"month of admission"`
	Severity    string `json:"severity,omitempty" jsonschema:"severity of the condition"`
}

// PredictResult defines the structured output of predict_patient_outcome.
type PredictResult struct {
	Treatment       string  `json:"treatment"`
	RecoveryDays    int     `json:"recovery_days"`
	RecoveryDaysRaw float64 `json:"recovery_days_raw"`
	Outcome         string  `json:"outcome"`
	ArtifactVersion string  `json:"artifact_version"`
}

// VocabularyParams defines parameters for the list_vocabulary tool.
type VocabularyParams struct {
	Field string `json:"field" jsonschema:"field name such as diagnosis or severity"`
}

// FormParams is empty; describe_form takes no arguments.
type FormParams struct{}

func (p PredictParams) input() *domain.PatientInput {
	return &domain.PatientInput{
		PatientArea: p.PatientArea,
		Diagnosis:   p.Diagnosis,
		Gender:      p.Gender,
		Age:         p.Age,
		Month:       p.Month,
		Severity:    p.Severity,
	}
}

func (s *Server) handlePredict(ctx context.Context, req *mcp.CallToolRequest, params PredictParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolPredict).Info("Tool invoked")

	result, err := s.predictor.Predict(ctx, params.input())
	if err != nil {
		return s.createErrorResult(err), nil, nil
	}

	out := PredictResult{
		Treatment:       result.Treatment,
		RecoveryDays:    result.RecoveryDays,
		RecoveryDaysRaw: result.RecoveryDaysRaw,
		Outcome:         result.Outcome,
		ArtifactVersion: result.ArtifactVersion,
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Treatment: %s\nRecovery days: %d\nOutcome: %s",
					out.Treatment, out.RecoveryDays, out.Outcome),
			},
		},
	}, out, nil
}

func (s *Server) handleForm(ctx context.Context, req *mcp.CallToolRequest, _ FormParams) (*mcp.CallToolResult, any, error) {
	form := s.predictor.Form()

	data, err := json.MarshalIndent(form, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encoding form: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, form, nil
}

func (s *Server) handleVocabulary(ctx context.Context, req *mcp.CallToolRequest, params VocabularyParams) (*mcp.CallToolResult, any, error) {
	categories, err := s.predictor.Vocabulary(domain.Field(params.Field))
	if err != nil {
		return s.createErrorResult(err), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %s", params.Field, strings.Join(categories, ", "))},
		},
	}, map[string]any{"field": params.Field, "categories": categories}, nil
}

// createErrorResult reports a failed call to the client without failing the protocol exchange.
func (s *Server) createErrorResult(err error) *mcp.CallToolResult {
	apiErr := domain.APIErrorFrom(err, "")
	text := fmt.Sprintf("Error %s: %s", apiErr.Code, apiErr.Message)
	if len(apiErr.Fields) > 0 {
		text += fmt.Sprintf(" (fields: %v)", apiErr.Fields)
	}
	if !service.IsClientError(err) && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WithError(err).Error("Tool call failed")
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
