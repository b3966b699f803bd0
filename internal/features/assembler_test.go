package features

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/encoding"
)

func testRegistry(t *testing.T) *encoding.Registry {
	t.Helper()
	reg, err := encoding.NewRegistry(map[domain.Field][]string{
		domain.FieldPatientArea: {"East", "North", "South", "West"},
		domain.FieldDiagnosis:   {"Asthma", "Flu", "Fracture"},
		domain.FieldGender:      {"Female", "Male"},
		domain.FieldMonth:       {"April", "February", "January", "March"},
		domain.FieldSeverity:    {"Mild", "Moderate", "Severe"},
		domain.FieldTreatment:   {"Antibiotics", "Cast", "Inhaler", "Rest"},
		domain.FieldOutcome:     {"Readmitted", "Recovered"},
	})
	require.NoError(t, err)
	return reg
}

func testCodes() map[domain.Field]int {
	return map[domain.Field]int{
		domain.FieldPatientArea: 1,
		domain.FieldDiagnosis:   2,
		domain.FieldGender:      0,
		domain.FieldMonth:       3,
		domain.FieldSeverity:    1,
	}
}

func TestAssembler_Assemble(t *testing.T) {
	asm, err := NewAssembler(testRegistry(t))
	require.NoError(t, err)

	v, err := asm.Assemble(testCodes(), 34)

	require.NoError(t, err)
	assert.Len(t, v, BaseLength)
	assert.Equal(t, FeatureVector{1, 2, 0, 34, 3, 1}, v)
}

func TestAssembler_AssembleMissingCode(t *testing.T) {
	asm, err := NewAssembler(testRegistry(t))
	require.NoError(t, err)

	codes := testCodes()
	delete(codes, domain.FieldMonth)

	_, err = asm.Assemble(codes, 34)

	assert.True(t, errors.Is(err, domain.ErrInvalidFeatureVector))
}

func TestAssembler_AssembleOutOfDomain(t *testing.T) {
	asm, err := NewAssembler(testRegistry(t))
	require.NoError(t, err)

	codes := testCodes()
	codes[domain.FieldGender] = 2

	_, err = asm.Assemble(codes, 34)
	assert.True(t, errors.Is(err, domain.ErrInvalidFeatureVector))

	_, err = asm.Assemble(testCodes(), 140)
	assert.True(t, errors.Is(err, domain.ErrInvalidFeatureVector))
}

func TestAugment(t *testing.T) {
	base := FeatureVector{1, 2, 0, 34, 3, 1}

	withTreatment := Augment(base, 2)
	full := Augment(withTreatment, 5.7)

	assert.Len(t, base, BaseLength)
	assert.Len(t, withTreatment, WithTreatmentLength)
	assert.Len(t, full, FullLength)
	assert.Equal(t, FeatureVector{1, 2, 0, 34, 3, 1, 2}, withTreatment)
	assert.Equal(t, FeatureVector{1, 2, 0, 34, 3, 1, 2, 5.7}, full)
}

func TestAugment_NoAliasing(t *testing.T) {
	// A base vector with spare capacity would let a naive append share memory.
	base := make(FeatureVector, BaseLength, 16)
	copy(base, FeatureVector{1, 2, 0, 34, 3, 1})

	a := Augment(base, 2)
	b := Augment(base, 3)
	a[0] = 99

	assert.Equal(t, float64(2), a[6])
	assert.Equal(t, float64(3), b[6])
	assert.Equal(t, float64(1), base[0])
	assert.Equal(t, float64(1), b[0])
	assert.Len(t, base, BaseLength)
}

func TestSchema_Validate(t *testing.T) {
	schema, err := NewSchema(testRegistry(t))
	require.NoError(t, err)
	require.Len(t, schema, FullLength)

	valid := FeatureVector{1, 2, 0, 34, 3, 1, 2, 5.7}

	tests := []struct {
		name   string
		vector FeatureVector
		want   int
		ok     bool
	}{
		{"base", valid[:6], BaseLength, true},
		{"with treatment", valid[:7], WithTreatmentLength, true},
		{"full", valid, FullLength, true},
		{"too short", valid[:5], BaseLength, false},
		{"too long", valid[:7], BaseLength, false},
		{"beyond schema", append(valid.Clone(), 1), FullLength + 1, false},
		{"fractional code", FeatureVector{1.5, 2, 0, 34, 3, 1}, BaseLength, false},
		{"negative code", FeatureVector{-1, 2, 0, 34, 3, 1}, BaseLength, false},
		{"treatment out of range", FeatureVector{1, 2, 0, 34, 3, 1, 4}, WithTreatmentLength, false},
		{"NaN recovery", FeatureVector{1, 2, 0, 34, 3, 1, 2, math.NaN()}, FullLength, false},
		{"infinite recovery", FeatureVector{1, 2, 0, 34, 3, 1, 2, math.Inf(1)}, FullLength, false},
		{"negative recovery allowed", FeatureVector{1, 2, 0, 34, 3, 1, 2, -0.3}, FullLength, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.vector, tt.want)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, domain.ErrInvalidFeatureVector), "got %v", err)
			}
		})
	}
}
