package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// HistoryRepository persists orchestration instances and checkpoint events
type HistoryRepository struct {
	instances *mongo.Collection
	events    *mongo.Collection
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *MongoDB) *HistoryRepository {
	return &HistoryRepository{
		instances: db.GetCollection(CollectionOrchestrationInstances),
		events:    db.GetCollection(CollectionOrchestrationHistory),
	}
}

// CreateInstance inserts a new instance. It reports false when an instance
// with the same id already exists.
func (r *HistoryRepository) CreateInstance(ctx context.Context, instance *model.OrchestrationInstance) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.instances.InsertOne(ctxTimeout, instance); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create instance: %w", err)
	}

	return true, nil
}

// GetInstance retrieves an instance by id
func (r *HistoryRepository) GetInstance(ctx context.Context, instanceID string) (*model.OrchestrationInstance, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var instance model.OrchestrationInstance
	err := r.instances.FindOne(ctxTimeout, bson.M{"instance_id": instanceID}).Decode(&instance)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return &instance, nil
}

// ListInstances returns instances in the given status, oldest first
func (r *HistoryRepository) ListInstances(ctx context.Context, status model.InstanceStatus) ([]model.OrchestrationInstance, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.instances.Find(ctxTimeout, bson.M{"status": status}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	instances := []model.OrchestrationInstance{}
	if err := cursor.All(ctxTimeout, &instances); err != nil {
		return nil, fmt.Errorf("failed to decode instances: %w", err)
	}

	return instances, nil
}

// FinishInstance moves a running instance to a terminal status
func (r *HistoryRepository) FinishInstance(ctx context.Context, instanceID string, status model.InstanceStatus, output []byte, errorMessage string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":       status,
			"output":       output,
			"error":        errorMessage,
			"updated_at":   now,
			"completed_at": now,
		},
	}

	filter := bson.M{
		"instance_id": instanceID,
		"status":      model.InstanceStatusRunning,
	}

	result, err := r.instances.UpdateOne(ctxTimeout, filter, update)
	if err != nil {
		return fmt.Errorf("failed to finish instance: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

// AppendEvent records a checkpoint. Re-appending an existing sequence number
// is a no-op.
func (r *HistoryRepository) AppendEvent(ctx context.Context, event model.HistoryEvent) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.events.InsertOne(ctxTimeout, event); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to append history event: %w", err)
	}

	ctxTouch, cancelTouch := context.WithTimeout(ctx, 5*time.Second)
	defer cancelTouch()

	_, err := r.instances.UpdateOne(ctxTouch,
		bson.M{"instance_id": event.InstanceID},
		bson.M{"$set": bson.M{"updated_at": event.RecordedAt}},
	)
	if err != nil {
		return fmt.Errorf("failed to touch instance: %w", err)
	}

	return nil
}

// LoadHistory returns the instance's events ordered by sequence number
func (r *HistoryRepository) LoadHistory(ctx context.Context, instanceID string) ([]model.HistoryEvent, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})

	cursor, err := r.events.Find(ctxTimeout, bson.M{"instance_id": instanceID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	events := []model.HistoryEvent{}
	if err := cursor.All(ctxTimeout, &events); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	return events, nil
}
