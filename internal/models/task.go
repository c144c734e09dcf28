package models

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusDone    Status = "done"
	StatusPending Status = "pending"
	StatusNotDone Status = "not-done"
	StatusDropped Status = "dropped"
)

const DefaultStatus = StatusNotDone

// TimestampLayout is the wire and storage format of created_at and last_updated.
// Values are always UTC, so layout strings compare in time order.
const TimestampLayout = "2006-01-02T15:04:05.000000"

var validStatuses = []Status{StatusDone, StatusPending, StatusNotDone, StatusDropped}

func Statuses() []Status {
	out := make([]Status, len(validStatuses))
	copy(out, validStatuses)
	return out
}

// ParseStatus returns the Status named by s, or a ValidationError when s is not
// one of the four known values.
func ParseStatus(s string) (Status, error) {
	for _, status := range validStatuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", &ValidationError{
		Field:   "status",
		Message: fmt.Sprintf("status must be one of done, pending, not-done, dropped (got %q)", s),
	}
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

type Task struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Deadline    *string `json:"deadline"`
	Status      Status  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	LastUpdated string  `json:"last_updated"`
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// TaskChanges is the normalized field set of a partial update. Nil fields are
// left untouched by the store.
type TaskChanges struct {
	Title       *string
	Description *string
	Deadline    *string
	Status      *Status
	LastUpdated string
}

func (c TaskChanges) Empty() bool {
	return c.Title == nil && c.Description == nil && c.Deadline == nil && c.Status == nil
}

func (c TaskChanges) Apply(task Task) Task {
	if c.Title != nil {
		task.Title = *c.Title
	}
	if c.Description != nil {
		task.Description = stringPtr(*c.Description)
	}
	if c.Deadline != nil {
		task.Deadline = stringPtr(*c.Deadline)
	}
	if c.Status != nil {
		task.Status = *c.Status
	}
	if c.LastUpdated != "" {
		task.LastUpdated = c.LastUpdated
	}
	return task
}

type TaskResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Deadline    *string `json:"deadline"`
	Status      Status  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	LastUpdated string  `json:"last_updated"`
}

func NewTaskResponse(task Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Deadline:    task.Deadline,
		Status:      task.Status,
		CreatedAt:   task.CreatedAt,
		LastUpdated: task.LastUpdated,
	}
}

// NewTaskResponses never returns nil so an empty store serializes as [].
func NewTaskResponses(tasks []Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, NewTaskResponse(task))
	}
	return out
}

func stringPtr(s string) *string {
	return &s
}
