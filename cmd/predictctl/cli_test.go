package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args against the test bundle.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PATIENT_PREDICT_ARTIFACTS_SOURCE", "dir")
	t.Setenv("PATIENT_PREDICT_ARTIFACTS_DIR", "../../internal/artifacts/testdata/bundle")
	t.Setenv("PATIENT_PREDICT_CACHE_ENABLED", "false")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPredictCmd(t *testing.T) {
	out, err := execute(t, "predict",
		"--area", "North", "--diagnosis", "Flu", "--gender", "Male",
		"--age", "34", "--month", "March", "--severity", "Moderate")

	require.NoError(t, err)
	assert.Contains(t, out, "Treatment:     Rest")
	assert.Contains(t, out, "Recovery days: 9")
	assert.Contains(t, out, "Outcome:       Recovered")
}

func TestPredictCmd_MissingField(t *testing.T) {
	_, err := execute(t, "predict",
		"--area", "North", "--diagnosis", "", "--gender", "Male",
		"--month", "March", "--severity", "Moderate")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "diagnosis")
}

func TestVocabularyCmd(t *testing.T) {
	out, err := execute(t, "vocabulary", "severity")

	require.NoError(t, err)
	assert.Equal(t, "Mild\nModerate\nSevere\n", out)
}

func TestFormCmd(t *testing.T) {
	out, err := execute(t, "form")

	require.NoError(t, err)
	assert.Contains(t, out, "Artifacts 2024.06.1")
	assert.Contains(t, out, "0..100 (default 30)")
}

func TestArtifactsImportAndVersions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "artifacts.db")
	t.Setenv("PATIENT_PREDICT_ARTIFACTS_SQLITE_PATH", dbPath)

	_, err := execute(t, "artifacts", "import", "../../internal/artifacts/testdata/bundle")
	require.Error(t, err, "a directory source cannot be imported into")

	t.Setenv("PATIENT_PREDICT_ARTIFACTS_SOURCE", "sqlite")
	rootCmd.SetOut(&bytes.Buffer{})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"artifacts", "import", "../../internal/artifacts/testdata/bundle"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Imported bundle 2024.06.1 into sqlite registry")

	out.Reset()
	rootCmd.SetArgs([]string{"artifacts", "versions"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "2024.06.1")

	out.Reset()
	rootCmd.SetArgs([]string{"predict", "--area", "West", "--diagnosis", "Fracture", "--gender", "Female",
		"--age", "80", "--month", "January", "--severity", "Severe"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Treatment:     Cast")
	assert.Contains(t, out.String(), "Outcome:       Readmitted")
}

func TestMigrateCmd_RejectsUnknownDirection(t *testing.T) {
	_, err := execute(t, "migrate", "sideways")
	assert.Error(t, err)
}
