package model

// FieldError is a validation failure attributable to one input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

func fieldErr(field, msg string) error {
	return &FieldError{Field: field, Message: msg}
}
