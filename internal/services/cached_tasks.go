package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskflow/backend/internal/cache"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/repositories"

	"github.com/charmbracelet/log"
)

const allTasksKey = "all_tasks"

func taskKey(id string) string {
	return fmt.Sprintf("task:%s", id)
}

// TaskCache is the subset of *cache.RedisCache the cached service needs.
// Writes are fenced: a value read from the store is cached only if no
// invalidation ran between taking the fence and the write.
type TaskCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	KeyFence(ctx context.Context, key string) (cache.Fence, error)
	GlobalFence(ctx context.Context) (cache.Fence, error)
	SetFenced(ctx context.Context, fence cache.Fence, entries map[string]interface{}, expiration time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type CacheTTLs struct {
	Task time.Duration
	List time.Duration
}

// CachedTaskService is a read-through cache in front of another TaskService.
// Cache failures are logged and never fail a request.
type CachedTaskService struct {
	taskService TaskService
	cache       TaskCache
	ttl         CacheTTLs
	logger      *log.Logger
}

func NewCachedTaskService(taskService TaskService, taskCache TaskCache, ttl CacheTTLs, logger *log.Logger) *CachedTaskService {
	if ttl.Task <= 0 {
		ttl.Task = 5 * time.Minute
	}
	if ttl.List <= 0 {
		ttl.List = time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CachedTaskService{
		taskService: taskService,
		cache:       taskCache,
		ttl:         ttl,
		logger:      logger.WithPrefix("cache"),
	}
}

func (s *CachedTaskService) ListTasks(ctx context.Context) ([]models.Task, error) {
	var cached []models.Task
	if s.lookup(ctx, allTasksKey, &cached) {
		return cached, nil
	}

	fence, fenced := s.fence(ctx, allTasksKey)
	tasks, err := s.taskService.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	if fenced {
		s.store(ctx, fence, map[string]interface{}{allTasksKey: tasks}, s.ttl.List)
	}
	return tasks, nil
}

func (s *CachedTaskService) GetTask(ctx context.Context, id string) (models.Task, error) {
	if err := repositories.ValidateTaskID(id); err != nil {
		return models.Task{}, err
	}

	key := taskKey(id)
	var cached models.Task
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	fence, fenced := s.fence(ctx, key)
	task, err := s.taskService.GetTask(ctx, id)
	if err != nil {
		return task, err
	}

	if fenced {
		s.store(ctx, fence, map[string]interface{}{key: task}, s.ttl.Task)
	}
	return task, nil
}

func (s *CachedTaskService) CreateTask(ctx context.Context, payload models.TaskCreate) (models.Task, error) {
	// The id is unknown until the insert, so priming is guarded by the global
	// fence and must land before the list invalidation bumps it.
	fence, fenced := s.globalFence(ctx)
	task, err := s.taskService.CreateTask(ctx, payload)
	if err != nil {
		if mayHaveWritten(err) {
			s.invalidate(ctx, allTasksKey)
		}
		return task, err
	}

	if fenced {
		s.store(ctx, fence, map[string]interface{}{taskKey(task.ID): task}, s.ttl.Task)
	}
	s.invalidate(ctx, allTasksKey)
	return task, nil
}

func (s *CachedTaskService) UpdateTask(ctx context.Context, id string, payload models.TaskUpdate) (models.Task, error) {
	task, err := s.taskService.UpdateTask(ctx, id, payload)
	if err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) || mayHaveWritten(err) {
			s.invalidate(ctx, taskKey(id), allTasksKey)
		}
		return task, err
	}

	s.invalidate(ctx, taskKey(id), allTasksKey)
	return task, nil
}

func (s *CachedTaskService) DeleteTask(ctx context.Context, id string) error {
	err := s.taskService.DeleteTask(ctx, id)
	if err != nil && !errors.Is(err, repositories.ErrTaskNotFound) {
		return err
	}

	s.invalidate(ctx, taskKey(id), allTasksKey)
	return err
}

// mayHaveWritten reports whether a failed write could still have reached the
// store, such as a read-back failing after the write succeeded.
func mayHaveWritten(err error) bool {
	return errors.Is(err, repositories.ErrStoreUnavailable)
}

// WarmupJobs loads the task list and every task from the underlying service
// under the same keys the read path uses.
func (s *CachedTaskService) WarmupJobs() []cache.WarmupJob {
	return []cache.WarmupJob{
		{
			Name:     allTasksKey,
			Priority: 10,
			TTL:      s.ttl.List,
			Load: func(ctx context.Context) (map[string]interface{}, error) {
				tasks, err := s.taskService.ListTasks(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{allTasksKey: tasks}, nil
			},
		},
		{
			Name:     "tasks",
			Priority: 1,
			TTL:      s.ttl.Task,
			Load: func(ctx context.Context) (map[string]interface{}, error) {
				tasks, err := s.taskService.ListTasks(ctx)
				if err != nil {
					return nil, err
				}
				entries := make(map[string]interface{}, len(tasks))
				for _, task := range tasks {
					entries[taskKey(task.ID)] = task
				}
				return entries, nil
			},
		},
	}
}

func (s *CachedTaskService) lookup(ctx context.Context, key string, dest interface{}) bool {
	err := s.cache.Get(ctx, key, dest)
	switch {
	case err == nil:
		return true
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		s.logger.Warn("cache read failed", "key", key, "err", err)
	}
	return false
}

// fence reports false when the cache is unreachable; the store result is then
// served without being cached.
func (s *CachedTaskService) fence(ctx context.Context, key string) (cache.Fence, bool) {
	fence, err := s.cache.KeyFence(ctx, key)
	if err != nil {
		s.logger.Warn("cache fence read failed", "key", key, "err", err)
		return cache.Fence{}, false
	}
	return fence, true
}

func (s *CachedTaskService) globalFence(ctx context.Context) (cache.Fence, bool) {
	fence, err := s.cache.GlobalFence(ctx)
	if err != nil {
		s.logger.Warn("cache fence read failed", "err", err)
		return cache.Fence{}, false
	}
	return fence, true
}

func (s *CachedTaskService) store(ctx context.Context, fence cache.Fence, entries map[string]interface{}, ttl time.Duration) {
	err := s.cache.SetFenced(ctx, fence, entries, ttl)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrStaleWrite):
		s.logger.Debug("dropped stale cache write", "fence", fence.Key)
	default:
		s.logger.Warn("cache write failed", "fence", fence.Key, "err", err)
	}
}

func (s *CachedTaskService) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.logger.Warn("cache invalidation failed", "keys", keys, "err", err)
	}
}
