package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrLeaseLost is returned when a pod tries to extend a lease it no longer holds
var ErrLeaseLost = errors.New("lease not found or not owned by this pod")

// LeaseRepository handles distributed leases on orchestration instances
type LeaseRepository struct {
	collection *mongo.Collection
}

// NewLeaseRepository creates a new lease repository
func NewLeaseRepository(db *MongoDB) *LeaseRepository {
	return &LeaseRepository{
		collection: db.GetCollection(CollectionOrchestrationLeases),
	}
}

// AcquireLease attempts to take the lease on an instance.
// Returns false when another pod holds an unexpired lease. A pod re-acquiring
// its own lease refreshes it.
func (r *LeaseRepository) AcquireLease(ctx context.Context, instanceID, podID string, ttl time.Duration) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	filter := bson.M{
		"instance_id": instanceID,
		"$or": []bson.M{
			{"expires_at": bson.M{"$lt": now}},
			{"expires_at": bson.M{"$exists": false}},
			{"locked_by": podID},
		},
	}

	update := bson.M{
		"$set": bson.M{
			"instance_id": instanceID,
			"locked_by":   podID,
			"locked_at":   now,
			"expires_at":  expiresAt,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var result model.Lease
	err := r.collection.FindOneAndUpdate(ctxTimeout, filter, update, opts).Decode(&result)
	if err != nil {
		// The upsert collides with the unique index when someone else holds it
		if errors.Is(err, mongo.ErrNoDocuments) || mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	if result.LockedBy != podID {
		return false, nil
	}

	slog.Debug("Acquired lease",
		"instance_id", instanceID,
		"pod_id", podID,
		"expires_at", expiresAt,
	)

	return true, nil
}

// ExtendLease pushes back the expiry of a lease owned by the pod
func (r *LeaseRepository) ExtendLease(ctx context.Context, instanceID, podID string, ttl time.Duration) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"instance_id": instanceID,
		"locked_by":   podID,
	}

	update := bson.M{
		"$set": bson.M{
			"expires_at": time.Now().UTC().Add(ttl),
		},
	}

	result, err := r.collection.UpdateOne(ctxTimeout, filter, update)
	if err != nil {
		return fmt.Errorf("failed to extend lease: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrLeaseLost
	}

	return nil
}

// ReleaseLease drops the lease, but only if the pod owns it
func (r *LeaseRepository) ReleaseLease(ctx context.Context, instanceID, podID string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"instance_id": instanceID,
		"locked_by":   podID,
	}

	if _, err := r.collection.DeleteOne(ctxTimeout, filter); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}

	return nil
}

// ReleaseAllLeases drops every lease owned by the pod.
// Called during graceful shutdown so other pods can resume the instances.
func (r *LeaseRepository) ReleaseAllLeases(ctx context.Context, podID string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.collection.DeleteMany(ctxTimeout, bson.M{"locked_by": podID})
	if err != nil {
		return fmt.Errorf("failed to release all leases: %w", err)
	}

	if result.DeletedCount > 0 {
		slog.Info("Released all leases during shutdown",
			"pod_id", podID,
			"count", result.DeletedCount,
		)
	}

	return nil
}

// CleanExpiredLeases removes leases left behind by crashed pods
func (r *LeaseRepository) CleanExpiredLeases(ctx context.Context) (int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.collection.DeleteMany(ctxTimeout, bson.M{
		"expires_at": bson.M{"$lt": time.Now().UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired leases: %w", err)
	}

	if result.DeletedCount > 0 {
		slog.Info("Cleaned expired leases", "count", result.DeletedCount)
	}

	return result.DeletedCount, nil
}
