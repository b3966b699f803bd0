// Package domain contains the core entities shared by the patient prediction pipeline:
// the submitted patient record, the prediction result, field names and error kinds.
//
// The three predictive models were trained on a fixed feature column order
// (see FeatureOrder). Every component that builds or inspects a feature vector
// relies on that order.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Field is the name of an encoded input field or output label.
type Field string

// Input fields and output labels known to the encoder registry.
const (
	FieldPatientArea Field = "patient_area"
	FieldDiagnosis   Field = "diagnosis"
	FieldGender      Field = "gender"
	FieldMonth       Field = "month"
	FieldSeverity    Field = "severity"
	FieldTreatment   Field = "treatment"
	FieldOutcome     Field = "outcome"

	// Numeric features. They have no encoder.
	FieldAge          Field = "age"
	FieldRecoveryDays Field = "recovery_days"
)

// InputFields lists the categorical input fields in the order they appear in a
// submission form.
var InputFields = []Field{FieldPatientArea, FieldDiagnosis, FieldGender, FieldMonth, FieldSeverity}

// LabelFields lists the output label fields decoded after inference.
var LabelFields = []Field{FieldTreatment, FieldOutcome}

// EncodedFields lists every field that must have an encoder in a bundle.
var EncodedFields = []Field{
	FieldPatientArea, FieldDiagnosis, FieldGender, FieldMonth, FieldSeverity,
	FieldTreatment, FieldOutcome,
}

// FeatureOrder is the training-time column order of the full eight element
// vector consumed by the outcome stage. The treatment stage sees the first six
// columns and the recovery stage the first seven.
var FeatureOrder = []Field{
	FieldPatientArea, FieldDiagnosis, FieldGender, FieldAge, FieldMonth, FieldSeverity,
	FieldTreatment, FieldRecoveryDays,
}

// Age bounds accepted by the models.
const (
	MinAge     = 0
	MaxAge     = 100
	DefaultAge = 30
)

// Placeholder is the value forms use for a dropdown that has not been chosen.
const Placeholder = "-- Select --"

// PatientInput is a single form submission.
type PatientInput struct {
	PatientArea string `json:"patient_area"`
	Diagnosis   string `json:"diagnosis"`
	Gender      string `json:"gender"`
	Age         *int   `json:"age"`
	Month       string `json:"month"`
	Severity    string `json:"severity"`
}

// Category returns the submitted category for a categorical input field.
func (p *PatientInput) Category(field Field) (string, error) {
	switch field {
	case FieldPatientArea:
		return p.PatientArea, nil
	case FieldDiagnosis:
		return p.Diagnosis, nil
	case FieldGender:
		return p.Gender, nil
	case FieldMonth:
		return p.Month, nil
	case FieldSeverity:
		return p.Severity, nil
	default:
		return "", fmt.Errorf("%s is not a categorical input field", field)
	}
}

// CacheKey returns a stable key for the submission. Two submissions with the same
// key produce the same prediction under the same artifacts.
func (p *PatientInput) CacheKey() string {
	age := -1
	if p.Age != nil {
		age = *p.Age
	}
	return fmt.Sprintf("%q|%q|%q|%d|%q|%q", p.PatientArea, p.Diagnosis, p.Gender, age, p.Month, p.Severity)
}

// IntPtr is a helper for building PatientInput literals.
func IntPtr(v int) *int {
	return &v
}

// PredictionResult is the outcome of one pipeline run.
type PredictionResult struct {
	ID              string        `json:"id"`
	Treatment       string        `json:"treatment"`
	RecoveryDays    int           `json:"recovery_days"`
	RecoveryDaysRaw float64       `json:"recovery_days_raw"`
	Outcome         string        `json:"outcome"`
	ArtifactVersion string        `json:"artifact_version"`
	ProcessingTime  time.Duration `json:"processing_time"`
	Cached          bool          `json:"cached"`
	TreatmentCode   int           `json:"treatment_code"`
	OutcomeCode     int           `json:"outcome_code"`
}

// FieldVocabulary describes one form field for a presentation layer.
type FieldVocabulary struct {
	Field      Field    `json:"field"`
	Categories []string `json:"categories,omitempty"`
	Min        *int     `json:"min,omitempty"`
	Max        *int     `json:"max,omitempty"`
	Default    *int     `json:"default,omitempty"`
}

// FormDescription lists every input field in form order.
type FormDescription struct {
	ArtifactVersion string            `json:"artifact_version"`
	Placeholder     string            `json:"placeholder"`
	Fields          []FieldVocabulary `json:"fields"`
}

// ErrNotFound is returned by artifact sources when a bundle version does not exist.
var ErrNotFound = errors.New("not found")
