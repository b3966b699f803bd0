package encoding

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/patient-predict-server/internal/domain"
)

// Registry holds exactly one encoder per encoded field. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	encoders map[domain.Field]*CategoryEncoder
}

// NewRegistry builds a registry from a field → vocabulary mapping. The mapping
// must cover exactly domain.EncodedFields.
func NewRegistry(vocabularies map[domain.Field][]string) (*Registry, error) {
	expected := make(map[domain.Field]bool, len(domain.EncodedFields))
	for _, field := range domain.EncodedFields {
		expected[field] = true
	}

	var unexpected []string
	for field := range vocabularies {
		if !expected[field] {
			unexpected = append(unexpected, string(field))
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return nil, fmt.Errorf("%w: unexpected encoders %v", domain.ErrArtifact, unexpected)
	}

	encoders := make(map[domain.Field]*CategoryEncoder, len(domain.EncodedFields))
	for _, field := range domain.EncodedFields {
		classes, ok := vocabularies[field]
		if !ok {
			return nil, fmt.Errorf("%w: missing encoder for %s", domain.ErrArtifact, field)
		}
		enc, err := NewCategoryEncoder(field, classes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrArtifact, err)
		}
		encoders[field] = enc
	}

	return &Registry{encoders: encoders}, nil
}

// ParseRegistry decodes an encoders.json document: {"field": ["category", ...]}.
func ParseRegistry(data []byte) (*Registry, error) {
	var raw map[domain.Field][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding encoders: %v", domain.ErrArtifact, err)
	}
	return NewRegistry(raw)
}

// Encoder returns the encoder for a field.
func (r *Registry) Encoder(field domain.Field) (*CategoryEncoder, error) {
	enc, ok := r.encoders[field]
	if !ok {
		return nil, fmt.Errorf("no encoder registered for %s", field)
	}
	return enc, nil
}

// Encode maps a category of a field to its code.
func (r *Registry) Encode(field domain.Field, category string) (int, error) {
	enc, err := r.Encoder(field)
	if err != nil {
		return 0, err
	}
	return enc.Encode(category)
}

// Decode maps a code of a field back to its category.
func (r *Registry) Decode(field domain.Field, code int) (string, error) {
	enc, err := r.Encoder(field)
	if err != nil {
		return "", err
	}
	return enc.Decode(code)
}

// Vocabulary lists the categories of a field in code order.
func (r *Registry) Vocabulary(field domain.Field) ([]string, error) {
	enc, err := r.Encoder(field)
	if err != nil {
		return nil, err
	}
	return enc.Classes(), nil
}

// Cardinality returns the vocabulary size of a field.
func (r *Registry) Cardinality(field domain.Field) (int, error) {
	enc, err := r.Encoder(field)
	if err != nil {
		return 0, err
	}
	return enc.Len(), nil
}

// EncodeInput encodes every categorical field of a submission.
func (r *Registry) EncodeInput(input *domain.PatientInput) (map[domain.Field]int, error) {
	codes := make(map[domain.Field]int, len(domain.InputFields))
	for _, field := range domain.InputFields {
		category, err := input.Category(field)
		if err != nil {
			return nil, err
		}
		code, err := r.Encode(field, category)
		if err != nil {
			return nil, err
		}
		codes[field] = code
	}
	return codes, nil
}
