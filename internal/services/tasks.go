package services

import (
	"context"
	"fmt"
	"time"

	"taskflow/backend/internal/models"
	"taskflow/backend/internal/repositories"
)

type TaskService interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (models.Task, error)
	CreateTask(ctx context.Context, payload models.TaskCreate) (models.Task, error)
	UpdateTask(ctx context.Context, id string, payload models.TaskUpdate) (models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

type taskService struct {
	repo repositories.TaskRepository
	now  func() time.Time
}

func NewTaskService(repo repositories.TaskRepository) TaskService {
	return NewTaskServiceWithClock(repo, time.Now)
}

func NewTaskServiceWithClock(repo repositories.TaskRepository, now func() time.Time) TaskService {
	return &taskService{repo: repo, now: now}
}

func (s *taskService) ListTasks(ctx context.Context) ([]models.Task, error) {
	tasks, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

func (s *taskService) GetTask(ctx context.Context, id string) (models.Task, error) {
	if err := repositories.ValidateTaskID(id); err != nil {
		return models.Task{}, err
	}
	return s.repo.FindByID(ctx, id)
}

// CreateTask inserts the task and returns it as read back from the store.
// If the read-back fails the insert still stands.
func (s *taskService) CreateTask(ctx context.Context, payload models.TaskCreate) (models.Task, error) {
	task, err := payload.NewTask(s.now())
	if err != nil {
		return models.Task{}, err
	}

	id, err := s.repo.Insert(ctx, task)
	if err != nil {
		return models.Task{}, err
	}

	created, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return models.Task{}, fmt.Errorf("read back created task %s: %w", id, err)
	}
	return created, nil
}

// UpdateTask checks the id, then the payload, before touching the store. As
// with CreateTask, a failed read-back leaves the update applied.
func (s *taskService) UpdateTask(ctx context.Context, id string, payload models.TaskUpdate) (models.Task, error) {
	if err := repositories.ValidateTaskID(id); err != nil {
		return models.Task{}, err
	}

	changes, err := payload.Changes(s.now())
	if err != nil {
		return models.Task{}, err
	}

	if err := s.repo.Update(ctx, id, changes); err != nil {
		return models.Task{}, err
	}

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return models.Task{}, fmt.Errorf("read back updated task %s: %w", id, err)
	}
	return updated, nil
}

func (s *taskService) DeleteTask(ctx context.Context, id string) error {
	if err := repositories.ValidateTaskID(id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
