package domain

import "strings"

// IsUnselected reports whether a dropdown value was left empty or on the placeholder.
func IsUnselected(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || v == Placeholder
}

// Validate checks that every field was concretely chosen and that age is within
// bounds. All unselected fields are reported together in one IncompleteInput error.
func (p *PatientInput) Validate() error {
	var missing []Field
	for _, field := range InputFields {
		value, _ := p.Category(field)
		if IsUnselected(value) {
			missing = append(missing, field)
		}
	}
	if p.Age == nil {
		missing = append(missing, FieldAge)
	}
	if len(missing) > 0 {
		return NewIncompleteInputError(missing)
	}

	if *p.Age < MinAge || *p.Age > MaxAge {
		return NewPredictionError(ErrInvalidInput, FieldAge, "age must be between %d and %d, got %d", MinAge, MaxAge, *p.Age)
	}
	return nil
}
