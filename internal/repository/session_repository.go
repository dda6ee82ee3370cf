package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/models"
)

const sessionHashKey = "editor:sessions"

// SessionRepository stores editor sessions in a Redis hash shared by every
// admin-facing process. Expiry is not delegated to Redis: the coordinator's
// sweep decides staleness from heartbeat timestamps so it can rebroadcast
// rank changes when it removes a session.
type SessionRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSessionRepository constructs the session store.
func NewSessionRepository(client *redis.Client, logger *zap.Logger) *SessionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRepository{client: client, logger: logger}
}

// Save upserts one session.
func (r *SessionRepository) Save(ctx context.Context, session *models.EditorSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.HSet(ctx, sessionHashKey, session.ID, payload).Err(); err != nil {
		return fmt.Errorf("redis hset session %s: %w", session.ID, err)
	}
	return nil
}

// List returns every stored session, unordered. Rank is derived by the
// caller, never read from the store.
func (r *SessionRepository) List(ctx context.Context) ([]models.EditorSession, error) {
	raw, err := r.client.HGetAll(ctx, sessionHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall sessions: %w", err)
	}

	sessions := make([]models.EditorSession, 0, len(raw))
	for id, value := range raw {
		var session models.EditorSession
		if err := json.Unmarshal([]byte(value), &session); err != nil {
			r.logger.Warn("dropping malformed session entry", zap.String("session_id", id), zap.Error(err))
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Delete removes one session.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.HDel(ctx, sessionHashKey, sessionID).Err(); err != nil {
		return fmt.Errorf("redis hdel session %s: %w", sessionID, err)
	}
	return nil
}
