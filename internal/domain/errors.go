package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds raised by the prediction pipeline. PredictionError unwraps to one
// of these so callers can use errors.Is.
var (
	ErrUnknownCategory      = errors.New("unknown category")
	ErrUnknownCode          = errors.New("unknown code")
	ErrInvalidFeatureVector = errors.New("invalid feature vector")
	ErrIncompleteInput      = errors.New("incomplete input")
	ErrInvalidInput         = errors.New("invalid input")
	ErrArtifact             = errors.New("invalid artifact")
	ErrStageUnavailable     = errors.New("stage unavailable")
)

// Error codes used in API responses
const (
	CodeUnknownCategory      = "UNKNOWN_CATEGORY"
	CodeUnknownCode          = "UNKNOWN_CODE"
	CodeInvalidFeatureVector = "INVALID_FEATURE_VECTOR"
	CodeIncompleteInput      = "INCOMPLETE_INPUT"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeArtifact             = "ARTIFACT_ERROR"
	CodeStageUnavailable     = "STAGE_UNAVAILABLE"
	CodeInternalServer       = "INTERNAL_SERVER_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeRequestTimeout       = "REQUEST_TIMEOUT"
)

// PredictionError describes which precondition of a prediction failed.
type PredictionError struct {
	Kind    error   `json:"-"`
	Field   Field   `json:"field,omitempty"`
	Fields  []Field `json:"fields,omitempty"`
	Message string  `json:"message"`
}

// Error implements the error interface
func (e *PredictionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

// Unwrap returns the error kind.
func (e *PredictionError) Unwrap() error {
	return e.Kind
}

// NewPredictionError creates a PredictionError of the given kind.
func NewPredictionError(kind error, field Field, format string, args ...interface{}) *PredictionError {
	return &PredictionError{
		Kind:    kind,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewIncompleteInputError reports every unselected field at once.
func NewIncompleteInputError(missing []Field) *PredictionError {
	return &PredictionError{
		Kind:    ErrIncompleteInput,
		Fields:  missing,
		Message: fmt.Sprintf("please fill in all fields before prediction, missing: %v", missing),
	}
}

// ErrorCode maps an error to its API error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrIncompleteInput):
		return CodeIncompleteInput
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrUnknownCategory):
		return CodeUnknownCategory
	case errors.Is(err, ErrUnknownCode):
		return CodeUnknownCode
	case errors.Is(err, ErrInvalidFeatureVector):
		return CodeInvalidFeatureVector
	case errors.Is(err, ErrStageUnavailable):
		return CodeStageUnavailable
	case errors.Is(err, ErrArtifact):
		return CodeArtifact
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternalServer
	}
}

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Fields    []Field   `json:"fields,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// APIErrorFrom converts a pipeline error into the response body shown to users.
func APIErrorFrom(err error, requestID string) *APIError {
	apiErr := NewAPIError(ErrorCode(err), err.Error(), "", requestID)

	var predErr *PredictionError
	if errors.As(err, &predErr) {
		apiErr.Message = predErr.Message
		if predErr.Field != "" {
			apiErr.Details = fmt.Sprintf("field %s", predErr.Field)
		}
		apiErr.Fields = predErr.Fields
	}
	return apiErr
}
