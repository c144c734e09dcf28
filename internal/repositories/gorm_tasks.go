package repositories

import (
	"context"
	"errors"

	"taskflow/backend/internal/models"

	"gorm.io/gorm"
)

type taskRecord struct {
	ID          string  `gorm:"primaryKey;type:varchar(24)"`
	Title       string  `gorm:"type:varchar(200);not null"`
	Description *string `gorm:"type:text"`
	Deadline    *string `gorm:"type:text"`
	Status      string  `gorm:"type:varchar(16);not null;default:'not-done'"`
	CreatedAt   string  `gorm:"column:created_at;type:varchar(32);not null;autoCreateTime:false"`
	LastUpdated string  `gorm:"column:last_updated;type:varchar(32);not null"`
}

func (taskRecord) TableName() string {
	return "tasks"
}

func (r taskRecord) toTask() models.Task {
	return models.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Deadline:    r.Deadline,
		Status:      models.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		LastUpdated: r.LastUpdated,
	}
}

// GormTaskRepository stores tasks in a SQL table through gorm. Ids are
// generated as ObjectID hex strings.
type GormTaskRepository struct {
	db *gorm.DB
}

func NewGormTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

// EnsureSchema creates the tasks table when it does not exist yet.
func (r *GormTaskRepository) EnsureSchema(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&taskRecord{}); err != nil {
		return storeError("create tasks table", err)
	}
	return nil
}

func (r *GormTaskRepository) FindAll(ctx context.Context) ([]models.Task, error) {
	var records []taskRecord
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, storeError("find tasks", err)
	}

	tasks := make([]models.Task, 0, len(records))
	for _, rec := range records {
		tasks = append(tasks, rec.toTask())
	}
	return tasks, nil
}

func (r *GormTaskRepository) FindByID(ctx context.Context, id string) (models.Task, error) {
	var rec taskRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, storeError("find task", err)
	}
	return rec.toTask(), nil
}

func (r *GormTaskRepository) Insert(ctx context.Context, task models.Task) (string, error) {
	rec := taskRecord{
		ID:          NewTaskID(),
		Title:       task.Title,
		Description: task.Description,
		Deadline:    task.Deadline,
		Status:      string(task.Status),
		CreatedAt:   task.CreatedAt,
		LastUpdated: task.LastUpdated,
	}

	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", storeError("insert task", err)
	}
	return rec.ID, nil
}

func (r *GormTaskRepository) Update(ctx context.Context, id string, changes models.TaskChanges) error {
	updates := map[string]interface{}{"last_updated": changes.LastUpdated}
	if changes.Title != nil {
		updates["title"] = *changes.Title
	}
	if changes.Description != nil {
		updates["description"] = *changes.Description
	}
	if changes.Deadline != nil {
		updates["deadline"] = *changes.Deadline
	}
	if changes.Status != nil {
		updates["status"] = string(*changes.Status)
	}

	result := r.db.WithContext(ctx).Model(&taskRecord{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return storeError("update task", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *GormTaskRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&taskRecord{})
	if result.Error != nil {
		return storeError("delete task", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *GormTaskRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return storeError("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}
