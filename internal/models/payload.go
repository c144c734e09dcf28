package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const TitleMaxLength = 200

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// TaskCreate is the body of POST /tasks.
type TaskCreate struct {
	Title       *string `json:"title" validate:"required,min=1,max=200"`
	Description *string `json:"description"`
	Deadline    *string `json:"deadline"`
	// Status omitted takes the default; an explicit null is rejected.
	Status Optional[string] `json:"status"`
}

// NewTask validates the payload and builds the task to insert, with both
// timestamps set to now and the status defaulted when omitted.
func (p TaskCreate) NewTask(now time.Time) (Task, error) {
	if err := validate.Struct(p); err != nil {
		return Task{}, translateValidationError("", err)
	}

	status := DefaultStatus
	switch {
	case p.Status.Supplied():
		parsed, err := ParseStatus(p.Status.Value)
		if err != nil {
			return Task{}, err
		}
		status = parsed
	case p.Status.Set:
		return Task{}, &ValidationError{Field: "status", Message: "status must not be null"}
	}

	ts := FormatTimestamp(now)
	return Task{
		Title:       *p.Title,
		Description: p.Description,
		Deadline:    p.Deadline,
		Status:      status,
		CreatedAt:   ts,
		LastUpdated: ts,
	}, nil
}

// TaskUpdate is the body of PUT /tasks/{id}. Every field is optional.
type TaskUpdate struct {
	Title       Optional[string] `json:"title"`
	Description Optional[string] `json:"description"`
	Deadline    Optional[string] `json:"deadline"`
	Status      Optional[string] `json:"status"`
}

// Changes validates the supplied fields and returns the set to apply, stamped
// with now. Null fields are dropped; an empty result is ErrNoFieldsToUpdate.
func (p TaskUpdate) Changes(now time.Time) (TaskChanges, error) {
	var changes TaskChanges

	if p.Title.Supplied() {
		if err := validate.Var(p.Title.Value, "min=1,max=200"); err != nil {
			return TaskChanges{}, translateValidationError("title", err)
		}
		changes.Title = stringPtr(p.Title.Value)
	}
	if p.Description.Supplied() {
		changes.Description = stringPtr(p.Description.Value)
	}
	if p.Deadline.Supplied() {
		changes.Deadline = stringPtr(p.Deadline.Value)
	}
	if p.Status.Supplied() {
		status, err := ParseStatus(p.Status.Value)
		if err != nil {
			return TaskChanges{}, err
		}
		changes.Status = &status
	}

	if changes.Empty() {
		return TaskChanges{}, ErrNoFieldsToUpdate
	}
	changes.LastUpdated = FormatTimestamp(now)
	return changes, nil
}

func translateValidationError(field string, err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &ValidationError{Field: field, Message: err.Error()}
	}

	fe := errs[0]
	if field == "" {
		field = fe.Field()
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "min":
		msg = fmt.Sprintf("%s must not be empty", field)
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		msg = fmt.Sprintf("%s is invalid", field)
	}
	return &ValidationError{Field: field, Message: msg}
}
