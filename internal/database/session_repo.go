package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SessionRepository reads and writes screening sessions
type SessionRepository struct {
	collection *mongo.Collection
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *MongoDB) *SessionRepository {
	return &SessionRepository{
		collection: db.GetCollection(CollectionSessions),
	}
}

// GetSession retrieves a session by id
func (r *SessionRepository) GetSession(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var session model.SessionRecord
	err := r.collection.FindOne(ctxTimeout, bson.M{"session_id": sessionID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// UpdateSession replaces the stored session. It reports false when the
// session no longer exists.
func (r *SessionRepository) UpdateSession(ctx context.Context, session *model.SessionRecord) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.collection.ReplaceOne(ctxTimeout, bson.M{"session_id": session.SessionID}, session)
	if err != nil {
		return false, fmt.Errorf("failed to update session: %w", err)
	}

	return result.MatchedCount > 0, nil
}
