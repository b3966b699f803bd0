package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/middleware"
)

// predictResponse is the JSON body of a successful prediction.
type predictResponse struct {
	ID              string  `json:"id"`
	Treatment       string  `json:"treatment"`
	RecoveryDays    int     `json:"recovery_days"`
	RecoveryDaysRaw float64 `json:"recovery_days_raw"`
	Outcome         string  `json:"outcome"`
	ArtifactVersion string  `json:"artifact_version"`
	ProcessingTime  string  `json:"processing_time"`
	Cached          bool    `json:"cached"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"timestamp":        time.Now().UTC(),
		"uptime":           time.Since(s.startedAt).Round(time.Second).String(),
		"artifact_version": s.predictor.Form().ArtifactVersion,
	})
}

func (s *Server) handleForm(c *gin.Context) {
	c.JSON(http.StatusOK, s.predictor.Form())
}

func (s *Server) handleVocabulary(c *gin.Context) {
	field := domain.Field(c.Param("field"))
	categories, err := s.predictor.Vocabulary(field)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"field":      field,
		"categories": categories,
	})
}

func (s *Server) handlePredict(c *gin.Context) {
	var input domain.PatientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(
			"INVALID_REQUEST", "Request body must be a JSON patient record", err.Error(), requestID(c)))
		return
	}

	result, err := s.predictor.Predict(c.Request.Context(), &input)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, predictResponse{
		ID:              result.ID,
		Treatment:       result.Treatment,
		RecoveryDays:    result.RecoveryDays,
		RecoveryDaysRaw: result.RecoveryDaysRaw,
		Outcome:         result.Outcome,
		ArtifactVersion: result.ArtifactVersion,
		ProcessingTime:  result.ProcessingTime.String(),
		Cached:          result.Cached,
	})
}

// respondError writes the APIError body with the status of the error kind.
func (s *Server) respondError(c *gin.Context, err error) {
	// A stage cut off by the request deadline reports the timeout, not the stage.
	if errors.Is(c.Request.Context().Err(), context.DeadlineExceeded) {
		s.logger.WithError(err).WithField("request_id", requestID(c)).Warn("Prediction request timed out")
		c.JSON(http.StatusRequestTimeout, domain.NewAPIError(
			domain.CodeRequestTimeout, "Request timeout", err.Error(), requestID(c)))
		return
	}

	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("request_id", requestID(c)).Error("Prediction request failed")
	}
	c.JSON(status, domain.APIErrorFrom(err, requestID(c)))
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrIncompleteInput),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownCategory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(middleware.RequestIDKey)
}
