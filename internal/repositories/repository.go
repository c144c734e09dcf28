// Package repositories maps tasks onto the backing store.
package repositories

import (
	"context"
	"errors"
	"fmt"

	"taskflow/backend/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrTaskNotFound is returned when no stored task matches an identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrStoreUnavailable wraps every failure reported by the store driver.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidTaskID is returned for identifiers that are not 24-character
	// hex ObjectIDs. No store call is made for such ids.
	ErrInvalidTaskID = errors.New("invalid task ID format")
)

// TaskRepository is the store contract used by the task service. All
// implementations take ids that already passed ValidateTaskID.
type TaskRepository interface {
	FindAll(ctx context.Context) ([]models.Task, error)
	FindByID(ctx context.Context, id string) (models.Task, error)
	// Insert stores the task and returns the id the store assigned to it.
	Insert(ctx context.Context, task models.Task) (string, error)
	// Update applies changes to the matching task, or returns ErrTaskNotFound.
	Update(ctx context.Context, id string, changes models.TaskChanges) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

func ValidateTaskID(id string) error {
	if !primitive.IsValidObjectID(id) {
		return ErrInvalidTaskID
	}
	return nil
}

// NewTaskID returns a fresh ObjectID in hex form. Non-Mongo backends use it so
// every backend accepts the same identifier shape.
func NewTaskID() string {
	return primitive.NewObjectID().Hex()
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

type unavailableTaskRepository struct {
	cause error
}

// NewUnavailableTaskRepository returns a repository whose every call fails
// with ErrStoreUnavailable. It stands in when the store client could not be
// built at startup.
func NewUnavailableTaskRepository(cause error) TaskRepository {
	return &unavailableTaskRepository{cause: cause}
}

func (r *unavailableTaskRepository) FindAll(ctx context.Context) ([]models.Task, error) {
	return nil, storeError("find tasks", r.cause)
}

func (r *unavailableTaskRepository) FindByID(ctx context.Context, id string) (models.Task, error) {
	return models.Task{}, storeError("find task", r.cause)
}

func (r *unavailableTaskRepository) Insert(ctx context.Context, task models.Task) (string, error) {
	return "", storeError("insert task", r.cause)
}

func (r *unavailableTaskRepository) Update(ctx context.Context, id string, changes models.TaskChanges) error {
	return storeError("update task", r.cause)
}

func (r *unavailableTaskRepository) Delete(ctx context.Context, id string) error {
	return storeError("delete task", r.cause)
}

func (r *unavailableTaskRepository) Ping(ctx context.Context) error {
	return storeError("ping", r.cause)
}
