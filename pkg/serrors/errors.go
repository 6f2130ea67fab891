package serrors

import "fmt"

// Base is a structured error carrying a stable machine-readable code.
// Sentinel errors across the codebase are built from it so callers can
// classify failures with errors.Is and boundaries can map codes to
// transport status.
type Base struct {
	Code      string
	Message   string
	LocaleKey string
}

func (e *Base) Error() string {
	return e.Message
}

func NewError(code, message, localeKey string) *Base {
	return &Base{Code: code, Message: message, LocaleKey: localeKey}
}

// FieldRequiredError is a validation failure for a missing input field.
type FieldRequiredError struct {
	Base
	Field string
}

func NewFieldRequiredError(field, localeKey string) *FieldRequiredError {
	return &FieldRequiredError{
		Base: Base{
			Code:      "FIELD_REQUIRED",
			Message:   fmt.Sprintf("%s is required", field),
			LocaleKey: localeKey,
		},
		Field: field,
	}
}

// Code extracts the stable code from err if it is (or wraps) a *Base.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for {
		if b, ok := err.(*Base); ok {
			return b.Code
		}
		if f, ok := err.(*FieldRequiredError); ok {
			return f.Base.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
		if err == nil {
			return ""
		}
	}
}
