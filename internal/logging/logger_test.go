package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patient-predict-server/internal/domain"
)

func TestNewLogger_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, closeLog, err := NewLogger(domain.LoggingConfig{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	logger.WithField("request_id", "abc").Debug("Prediction completed")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "Prediction completed", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "abc", entry["request_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_LevelsAndFormats(t *testing.T) {
	logger, closeLog, err := NewLogger(domain.LoggingConfig{Level: "warn", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	defer closeLog()

	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stderr, logger.Out)

	logger, _, err = NewLogger(domain.LoggingConfig{Level: "chatty"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stdout, logger.Out)
}
