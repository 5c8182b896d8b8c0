package services

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"taskify/backend/internal/models"

	"github.com/go-playground/validator/v10"
)

// TaskInput is the create and full-replace form for a task.
type TaskInput struct {
	Title       string              `json:"title" validate:"required,min=3,max=100"`
	Description string              `json:"description" validate:"max=500"`
	Status      models.TaskStatus   `json:"status" validate:"required,oneof=to_do in_progress done"`
	Priority    models.TaskPriority `json:"priority" validate:"required,oneof=low medium high"`
	AssigneeID  *int64              `json:"assignee_id" validate:"omitempty,gt=0"`
	StartDate   *time.Time          `json:"start_date" validate:"required"`
	DueDate     *time.Time          `json:"due_date"`
}

// MemberInput is the form for adding a directory member.
type MemberInput struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"required,email"`
	Age   *int   `json:"age" validate:"omitempty,gt=0"`
}

// Credentials is the login and account creation form.
type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=100"`
	Password string `json:"password" validate:"required,min=6,max=50"`
}

// ValidationError maps JSON field names to human readable problems.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		validate.RegisterStructValidation(taskInputRules, TaskInput{})
	})
	return validate
}

func taskInputRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(TaskInput)
	if in.StartDate != nil && in.DueDate != nil && in.DueDate.Before(*in.StartDate) {
		sl.ReportError(in.DueDate, "due_date", "DueDate", "gtefield", "start_date")
	}
}

// ValidateTaskInput checks the form rules, including that a due date is
// not before the start date. Failures are returned as *ValidationError.
func ValidateTaskInput(in TaskInput) error { return validateStruct(in) }

func ValidateMemberInput(in MemberInput) error { return validateStruct(in) }

func ValidateCredentials(in Credentials) error { return validateStruct(in) }

func validateStruct(v interface{}) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		if _, seen := out.Fields[fe.Field()]; !seen {
			out.Fields[fe.Field()] = describe(fe)
		}
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return "must be a positive number"
	case "email":
		return "must be a valid email address"
	case "gtefield":
		return fmt.Sprintf("must not be before %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
