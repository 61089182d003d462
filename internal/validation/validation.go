// Package validation checks request DTOs with struct tags and collects
// field errors in a single error value.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/driveless/driveless/internal/route"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("stop_category", validateStopCategory)
	return v
}

func validateStopCategory(fl validator.FieldLevel) bool {
	_, ok := route.LookupCategory(fl.Field().String())
	return ok
}

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error collects field errors.
type Error struct {
	Errors []FieldError
}

func (e *Error) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + " " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field error.
func (e *Error) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any field error was recorded.
func (e *Error) HasErrors() bool {
	return len(e.Errors) > 0
}

// OrNil returns e when it holds errors and nil otherwise.
func (e *Error) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// Struct validates s against its `validate` tags and returns an *Error
// listing every failed field.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Error{}
	for _, fe := range verrs {
		out.Add(fieldPath(fe), message(fe))
	}
	return out
}

// fieldPath drops the struct name from the namespace, "Req.stops[0].notes" → "stops[0].notes".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	case "stop_category":
		return fmt.Sprintf("unknown category %q", fe.Value())
	case "latitude", "longitude":
		return "is out of range"
	default:
		return "is invalid"
	}
}
