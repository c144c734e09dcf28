package repositories

import (
	"context"
	"errors"
	"fmt"

	"taskflow/backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type taskDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description *string            `bson:"description"`
	Deadline    *string            `bson:"deadline"`
	Status      string             `bson:"status"`
	CreatedAt   string             `bson:"created_at"`
	LastUpdated string             `bson:"last_updated"`
}

func (d taskDocument) toTask() models.Task {
	return models.Task{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Deadline:    d.Deadline,
		Status:      models.Status(d.Status),
		CreatedAt:   d.CreatedAt,
		LastUpdated: d.LastUpdated,
	}
}

type MongoTaskRepository struct {
	collection *mongo.Collection
}

func NewMongoTaskRepository(collection *mongo.Collection) *MongoTaskRepository {
	return &MongoTaskRepository{collection: collection}
}

func (r *MongoTaskRepository) FindAll(ctx context.Context) ([]models.Task, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, storeError("find tasks", err)
	}
	defer cursor.Close(ctx)

	var docs []taskDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeError("decode tasks", err)
	}

	tasks := make([]models.Task, 0, len(docs))
	for _, doc := range docs {
		tasks = append(tasks, doc.toTask())
	}
	return tasks, nil
}

func (r *MongoTaskRepository) FindByID(ctx context.Context, id string) (models.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Task{}, ErrInvalidTaskID
	}

	var doc taskDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, storeError("find task", err)
	}
	return doc.toTask(), nil
}

func (r *MongoTaskRepository) Insert(ctx context.Context, task models.Task) (string, error) {
	doc := taskDocument{
		Title:       task.Title,
		Description: task.Description,
		Deadline:    task.Deadline,
		Status:      string(task.Status),
		CreatedAt:   task.CreatedAt,
		LastUpdated: task.LastUpdated,
	}

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", storeError("insert task", err)
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", storeError("insert task", fmt.Errorf("unexpected inserted id type %T", result.InsertedID))
	}
	return oid.Hex(), nil
}

func (r *MongoTaskRepository) Update(ctx context.Context, id string, changes models.TaskChanges) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidTaskID
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": setDocument(changes)})
	if err != nil {
		return storeError("update task", err)
	}
	if result.MatchedCount == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *MongoTaskRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidTaskID
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return storeError("delete task", err)
	}
	if result.DeletedCount == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *MongoTaskRepository) Ping(ctx context.Context) error {
	if err := r.collection.Database().Client().Ping(ctx, nil); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func setDocument(changes models.TaskChanges) bson.M {
	set := bson.M{"last_updated": changes.LastUpdated}
	if changes.Title != nil {
		set["title"] = *changes.Title
	}
	if changes.Description != nil {
		set["description"] = *changes.Description
	}
	if changes.Deadline != nil {
		set["deadline"] = *changes.Deadline
	}
	if changes.Status != nil {
		set["status"] = string(*changes.Status)
	}
	return set
}
