package models_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"taskflow/backend/internal/models"
)

func strPtr(s string) *string { return &s }

var fixedNow = time.Date(2024, 3, 9, 14, 30, 5, 123456000, time.UTC)

func TestTaskCreate_Defaults(t *testing.T) {
	payload := models.TaskCreate{Title: strPtr("Write report")}

	task, err := payload.NewTask(fixedNow)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if task.Status != models.StatusNotDone {
		t.Errorf("Expected status 'not-done', got '%s'", task.Status)
	}

	if task.CreatedAt != task.LastUpdated {
		t.Errorf("Expected created_at == last_updated, got %s and %s", task.CreatedAt, task.LastUpdated)
	}

	if task.CreatedAt != "2024-03-09T14:30:05.123456" {
		t.Errorf("Unexpected timestamp format: %s", task.CreatedAt)
	}

	if task.Description != nil || task.Deadline != nil {
		t.Error("Expected description and deadline to be nil")
	}
}

func TestTaskCreate_AllFields(t *testing.T) {
	payload := models.TaskCreate{
		Title:       strPtr("Ship release"),
		Description: strPtr("cut the tag"),
		Deadline:    strPtr("next friday"),
		Status:      models.Some("pending"),
	}

	task, err := payload.NewTask(fixedNow)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if task.Status != models.StatusPending {
		t.Errorf("Expected status 'pending', got '%s'", task.Status)
	}
	if *task.Deadline != "next friday" {
		t.Errorf("Expected deadline to be kept verbatim, got %q", *task.Deadline)
	}
}

func TestTaskCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		payload models.TaskCreate
		field   string
	}{
		{"missing title", models.TaskCreate{}, "title"},
		{"empty title", models.TaskCreate{Title: strPtr("")}, "title"},
		{"title too long", models.TaskCreate{Title: strPtr(strings.Repeat("a", 201))}, "title"},
		{"unknown status", models.TaskCreate{Title: strPtr("x"), Status: models.Some("in_progress")}, "status"},
		{"empty status", models.TaskCreate{Title: strPtr("x"), Status: models.Some("")}, "status"},
		{"null status", models.TaskCreate{Title: strPtr("x"), Status: models.Null[string]()}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.payload.NewTask(fixedNow)
			if !errors.Is(err, models.ErrValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}

			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestTaskCreate_TitleLengthCountsCharacters(t *testing.T) {
	title := strings.Repeat("é", models.TitleMaxLength)

	if _, err := (models.TaskCreate{Title: &title}).NewTask(fixedNow); err != nil {
		t.Errorf("Expected %d multi-byte characters to be accepted, got %v", models.TitleMaxLength, err)
	}
}

func TestParseStatus(t *testing.T) {
	for _, status := range models.Statuses() {
		parsed, err := models.ParseStatus(string(status))
		if err != nil {
			t.Errorf("Expected %s to parse, got %v", status, err)
		}
		if parsed != status {
			t.Errorf("Expected %s, got %s", status, parsed)
		}
	}

	if _, err := models.ParseStatus("DONE"); err == nil {
		t.Error("Expected status matching to be case-sensitive")
	}

	if models.Status("completed").Valid() {
		t.Error("Expected 'completed' to be invalid")
	}
}

func TestTaskUpdate_PresenceTracking(t *testing.T) {
	var payload models.TaskUpdate
	body := `{"title": "Renamed", "description": null}`
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}

	if !payload.Title.Supplied() {
		t.Error("Expected title to be supplied")
	}
	if !payload.Description.Set || payload.Description.Valid {
		t.Error("Expected description to be set to null")
	}
	if payload.Deadline.Set {
		t.Error("Expected deadline to be absent")
	}

	changes, err := payload.Changes(fixedNow)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if changes.Description != nil {
		t.Error("Expected null description to be dropped from the change set")
	}
	if changes.Title == nil || *changes.Title != "Renamed" {
		t.Errorf("Expected title change, got %v", changes.Title)
	}
	if changes.LastUpdated != models.FormatTimestamp(fixedNow) {
		t.Errorf("Expected last_updated to be stamped, got %q", changes.LastUpdated)
	}
}

func TestTaskUpdate_NoFields(t *testing.T) {
	bodies := []string{`{}`, `{"title": null, "status": null}`, `{"unknown": 1}`}

	for _, body := range bodies {
		var payload models.TaskUpdate
		if err := json.Unmarshal([]byte(body), &payload); err != nil {
			t.Fatalf("Failed to decode %s: %v", body, err)
		}

		_, err := payload.Changes(fixedNow)
		if !errors.Is(err, models.ErrNoFieldsToUpdate) {
			t.Errorf("For %s expected ErrNoFieldsToUpdate, got %v", body, err)
		}
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("For %s expected error to be a validation error", body)
		}
	}
}

func TestTaskUpdate_InvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		payload models.TaskUpdate
	}{
		{"empty title", models.TaskUpdate{Title: models.Some("")}},
		{"long title", models.TaskUpdate{Title: models.Some(strings.Repeat("x", 201))}},
		{"bad status", models.TaskUpdate{Status: models.Some("archived")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.payload.Changes(fixedNow)
			if !errors.Is(err, models.ErrValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			if errors.Is(err, models.ErrNoFieldsToUpdate) {
				t.Error("Expected a field error, not ErrNoFieldsToUpdate")
			}
		})
	}
}

func TestTaskChanges_Apply(t *testing.T) {
	original := models.Task{
		ID:          "65f0c0ffee0000000000beef",
		Title:       "Old",
		Description: strPtr("keep me"),
		Status:      models.StatusDone,
		CreatedAt:   "2024-01-01T00:00:00.000000",
		LastUpdated: "2024-01-01T00:00:00.000000",
	}

	status := models.StatusPending
	updated := models.TaskChanges{Status: &status, LastUpdated: "2024-02-01T00:00:00.000000"}.Apply(original)

	if updated.Status != models.StatusPending {
		t.Errorf("Expected done -> pending to be allowed, got %s", updated.Status)
	}
	if updated.Title != "Old" || *updated.Description != "keep me" {
		t.Error("Expected unsupplied fields to be unchanged")
	}
	if updated.CreatedAt != original.CreatedAt {
		t.Error("Expected created_at to be unchanged")
	}
	if updated.LastUpdated != "2024-02-01T00:00:00.000000" {
		t.Errorf("Expected last_updated to change, got %s", updated.LastUpdated)
	}
}

func TestNewTaskResponses_EmptyIsNotNil(t *testing.T) {
	data, err := json.Marshal(models.NewTaskResponses(nil))
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("Expected [], got %s", data)
	}
}

func TestTaskResponse_NullOptionalFields(t *testing.T) {
	resp := models.NewTaskResponse(models.Task{ID: "abc", Title: "t", Status: models.StatusNotDone})

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	for _, key := range []string{"id", "title", "description", "deadline", "status", "created_at", "last_updated"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Expected key %q in response", key)
		}
	}
	if decoded["description"] != nil {
		t.Errorf("Expected null description, got %v", decoded["description"])
	}
}
