// Package encoding maps human readable categories to the dense integer codes the
// models were trained on, and back.
package encoding

import (
	"fmt"

	"github.com/patient-predict-server/internal/domain"
)

// CategoryEncoder is a bidirectional mapping between a fixed vocabulary and the
// codes 0..n-1. The position of a category in the vocabulary is its code.
type CategoryEncoder struct {
	field   domain.Field
	classes []string
	codes   map[string]int
}

// NewCategoryEncoder builds an encoder from a training-time vocabulary.
// The vocabulary must be non-empty and free of duplicates.
func NewCategoryEncoder(field domain.Field, classes []string) (*CategoryEncoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("encoder %s has an empty vocabulary", field)
	}

	codes := make(map[string]int, len(classes))
	for i, class := range classes {
		if _, dup := codes[class]; dup {
			return nil, fmt.Errorf("encoder %s has duplicate category %q", field, class)
		}
		codes[class] = i
	}

	owned := make([]string, len(classes))
	copy(owned, classes)

	return &CategoryEncoder{
		field:   field,
		classes: owned,
		codes:   codes,
	}, nil
}

// Field returns the field this encoder belongs to.
func (e *CategoryEncoder) Field() domain.Field {
	return e.field
}

// Len returns the vocabulary size.
func (e *CategoryEncoder) Len() int {
	return len(e.classes)
}

// Encode returns the code of a category.
func (e *CategoryEncoder) Encode(category string) (int, error) {
	code, ok := e.codes[category]
	if !ok {
		return 0, domain.NewPredictionError(domain.ErrUnknownCategory, e.field,
			"%q is not in the training vocabulary", category)
	}
	return code, nil
}

// Decode returns the category of a code.
func (e *CategoryEncoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.classes) {
		return "", domain.NewPredictionError(domain.ErrUnknownCode, e.field,
			"code %d is outside 0..%d", code, len(e.classes)-1)
	}
	return e.classes[code], nil
}

// Classes returns a copy of the vocabulary in code order.
func (e *CategoryEncoder) Classes() []string {
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}
