package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/models"
)

const relayKeyPrefix = "relay:cmd:"

// RelayRepository stores broadcast commands in Redis. Each command lives
// under its own key with a short TTL, so the store self-cleans; a consumer
// that polls less often than the TTL may miss a command, which downstream
// views tolerate by doing a full reload.
type RelayRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRelayRepository constructs the relay store.
func NewRelayRepository(client *redis.Client, logger *zap.Logger) *RelayRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayRepository{client: client, logger: logger}
}

// Publish stores one command with the provided TTL.
func (r *RelayRepository) Publish(ctx context.Context, command models.Command, ttl time.Duration) error {
	payload, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	key := relayKeyPrefix + command.DedupKey()
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// List returns every command currently live in the relay, in unspecified
// order. Keys expiring mid-scan are skipped silently.
func (r *RelayRepository) List(ctx context.Context) ([]models.Command, error) {
	var commands []models.Command

	iter := r.client.Scan(ctx, 0, relayKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("redis get %s: %w", key, err)
		}

		var command models.Command
		if err := json.Unmarshal(raw, &command); err != nil {
			r.logger.Warn("dropping malformed relay command", zap.String("key", key), zap.Error(err))
			continue
		}
		commands = append(commands, command)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan relay: %w", err)
	}

	return commands, nil
}
