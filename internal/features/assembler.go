// Package features builds the fixed-order numeric vectors consumed by the
// inference chain.
package features

import (
	"fmt"
	"math"

	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/encoding"
)

// Lengths of the vectors seen by each stage.
const (
	BaseLength          = 6
	WithTreatmentLength = 7
	FullLength          = 8
)

// FeatureVector is an ordered sequence of features in domain.FeatureOrder.
type FeatureVector []float64

// Clone returns a copy that shares no memory with v.
func (v FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(v))
	copy(out, v)
	return out
}

// FeatureSpec is the valid domain of one column.
type FeatureSpec struct {
	Field      domain.Field
	Categories int // > 0 for categorical columns: valid codes are 0..Categories-1
	Bounded    bool
	Min        float64
	Max        float64
}

// Schema describes every column of the full vector in training order.
type Schema []FeatureSpec

// NewSchema derives the schema from the vocabulary sizes of a registry.
func NewSchema(reg *encoding.Registry) (Schema, error) {
	schema := make(Schema, 0, len(domain.FeatureOrder))
	for _, field := range domain.FeatureOrder {
		switch field {
		case domain.FieldAge:
			schema = append(schema, FeatureSpec{Field: field, Bounded: true, Min: domain.MinAge, Max: domain.MaxAge})
		case domain.FieldRecoveryDays:
			schema = append(schema, FeatureSpec{Field: field})
		default:
			n, err := reg.Cardinality(field)
			if err != nil {
				return nil, err
			}
			schema = append(schema, FeatureSpec{Field: field, Categories: n})
		}
	}
	return schema, nil
}

// Validate checks that v has exactly want columns and that every column lies in
// its domain.
func (s Schema) Validate(v FeatureVector, want int) error {
	if len(v) != want || want > len(s) {
		return domain.NewPredictionError(domain.ErrInvalidFeatureVector, "",
			"expected %d features, got %d", want, len(v))
	}

	for i, value := range v {
		spec := s[i]
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return domain.NewPredictionError(domain.ErrInvalidFeatureVector, spec.Field,
				"column %d is not a finite number", i)
		}
		if spec.Categories > 0 {
			if value != math.Trunc(value) || value < 0 || value >= float64(spec.Categories) {
				return domain.NewPredictionError(domain.ErrInvalidFeatureVector, spec.Field,
					"column %d holds %v, expected a code in 0..%d", i, value, spec.Categories-1)
			}
		}
		if spec.Bounded && (value < spec.Min || value > spec.Max) {
			return domain.NewPredictionError(domain.ErrInvalidFeatureVector, spec.Field,
				"column %d holds %v, expected %v..%v", i, value, spec.Min, spec.Max)
		}
	}
	return nil
}

// Assembler turns encoded inputs into feature vectors.
type Assembler struct {
	schema Schema
}

// NewAssembler creates an assembler whose schema matches the registry.
func NewAssembler(reg *encoding.Registry) (*Assembler, error) {
	schema, err := NewSchema(reg)
	if err != nil {
		return nil, fmt.Errorf("building feature schema: %w", err)
	}
	return &Assembler{schema: schema}, nil
}

// Schema returns the schema used for validation.
func (a *Assembler) Schema() Schema {
	return a.schema
}

// Assemble builds the base vector: area, diagnosis, gender, age, month, severity.
func (a *Assembler) Assemble(codes map[domain.Field]int, age int) (FeatureVector, error) {
	v := make(FeatureVector, 0, BaseLength)
	for _, field := range domain.FeatureOrder[:BaseLength] {
		if field == domain.FieldAge {
			v = append(v, float64(age))
			continue
		}
		code, ok := codes[field]
		if !ok {
			return nil, domain.NewPredictionError(domain.ErrInvalidFeatureVector, field, "no encoded value")
		}
		v = append(v, float64(code))
	}

	if err := a.schema.Validate(v, BaseLength); err != nil {
		return nil, err
	}
	return v, nil
}

// Augment returns a new vector holding v followed by value. v is never modified
// and the result never shares its backing array.
func Augment(v FeatureVector, value float64) FeatureVector {
	out := make(FeatureVector, len(v), len(v)+1)
	copy(out, v)
	return append(out, value)
}
