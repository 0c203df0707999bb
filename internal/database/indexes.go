package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateIndexes creates all necessary indexes for the collections
func CreateIndexes(ctx context.Context, db *MongoDB) error {
	slog.Info("Creating MongoDB indexes")

	sets := []struct {
		collection string
		indexes    []mongo.IndexModel
	}{
		{CollectionJobs, jobIndexes()},
		{CollectionSessions, sessionIndexes()},
		{CollectionOrchestrationInstances, instanceIndexes()},
		{CollectionOrchestrationHistory, historyIndexes()},
		{CollectionOrchestrationLeases, leaseIndexes()},
	}

	for _, set := range sets {
		if err := createIndexes(ctx, db, set.collection, set.indexes); err != nil {
			return err
		}
	}

	slog.Info("Successfully created all MongoDB indexes")
	return nil
}

func createIndexes(ctx context.Context, db *MongoDB, name string, indexes []mongo.IndexModel) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := db.GetCollection(name).Indexes().CreateMany(ctxTimeout, indexes); err != nil {
		return fmt.Errorf("failed to create %s indexes: %w", name, err)
	}

	slog.Info("Created indexes", "collection", name, "count", len(indexes))
	return nil
}

func jobIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "job_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_job_id_unique"),
		},
		{
			Keys: bson.D{
				{Key: "session_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_session_id_created_at"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_status_created_at"),
		},
	}
}

func sessionIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_session_id_unique"),
		},
	}
}

func instanceIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "instance_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_instance_id_unique"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("idx_status_created_at"),
		},
	}
}

func historyIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "instance_id", Value: 1},
				{Key: "seq", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("idx_instance_id_seq_unique"),
		},
	}
}

func leaseIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "instance_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_instance_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_expires_at_ttl"),
		},
		{
			Keys:    bson.D{{Key: "locked_by", Value: 1}},
			Options: options.Index().SetName("idx_locked_by"),
		},
	}
}
