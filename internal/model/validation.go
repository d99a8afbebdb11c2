package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("taskstatus", statusValidator); err != nil {
		panic(fmt.Sprintf("register taskstatus validator: %v", err))
	}
	return v
}

// statusValidator accepts only the three wire statuses.
func statusValidator(fl validator.FieldLevel) bool {
	value := TaskStatus(fl.Field().String())
	for _, s := range Statuses {
		if value == s {
			return true
		}
	}
	return false
}

// ValidationError is a client-side rejection that happens before any
// network call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, name := range sortedKeys(e.Fields) {
		parts = append(parts, e.Fields[name])
	}
	return strings.Join(parts, "; ")
}

// Validate runs the struct tags of v and converts failures into a
// *ValidationError with one readable message per field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "email address is not valid"
	case "eqfield":
		return "passwords do not match"
	case "taskstatus":
		return "status must be pending, in-progress or completed"
	case "min":
		return fmt.Sprintf("%s must not be empty", field)
	case "max":
		return fmt.Sprintf("%s is too long (max %s)", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
