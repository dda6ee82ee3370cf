package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/models"
)

type relayStore interface {
	Publish(ctx context.Context, command models.Command, ttl time.Duration) error
	List(ctx context.Context) ([]models.Command, error)
}

type relayObserver interface {
	CommandPublished(action models.CommandAction)
	CommandDropped()
}

// CommandRelayConfig tunes relay behaviour.
type CommandRelayConfig struct {
	PollInterval time.Duration
	CommandTTL   time.Duration
}

// CommandRelay is a best-effort, at-least-once broadcast between views.
// Commands self-expire in the store; every consumer deduplicates on
// (timestamp, origin) independently, so one view consuming a command never
// hides it from the others. Missed commands read as a stale view that the
// next full reload corrects.
type CommandRelay struct {
	store    relayStore
	cfg      CommandRelayConfig
	originID string
	metrics  relayObserver
	logger   *zap.Logger

	mu sync.Mutex
	// seen tracks delivered dedup keys per consumer origin.
	seen map[string]map[string]time.Time
	now  func() time.Time
}

// NewCommandRelay wires the relay. Each relay instance gets its own origin
// id so it never consumes its own broadcasts.
func NewCommandRelay(store relayStore, metrics relayObserver, logger *zap.Logger, cfg CommandRelayConfig) *CommandRelay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.CommandTTL <= 0 {
		cfg.CommandTTL = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandRelay{
		store:    store,
		cfg:      cfg,
		originID: uuid.NewString(),
		metrics:  metrics,
		logger:   logger,
		seen:     make(map[string]map[string]time.Time),
		now:      time.Now,
	}
}

// OriginID identifies this relay instance in published commands.
func (r *CommandRelay) OriginID() string {
	return r.originID
}

// Publish broadcasts one command with the configured TTL.
func (r *CommandRelay) Publish(ctx context.Context, action models.CommandAction, trainerID string, effectiveDate time.Time, detail types.JSONText) error {
	command := models.Command{
		Action:        action,
		TrainerID:     trainerID,
		EffectiveDate: effectiveDate,
		Detail:        detail,
		Timestamp:     r.now().UTC(),
		OriginID:      r.originID,
	}
	if err := r.store.Publish(ctx, command, r.cfg.CommandTTL); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.CommandPublished(action)
	}
	return nil
}

// Poll returns the live commands the consumer identified by originID has not
// seen yet, ordered by timestamp. Each consumer keeps its own seen-set, so a
// broadcast reaches every polling view exactly once. Own-origin and
// already-seen commands are dropped silently; redelivery is expected, not an
// error. An empty originID polls as this relay instance.
func (r *CommandRelay) Poll(ctx context.Context, originID string) ([]models.Command, error) {
	if originID == "" {
		originID = r.originID
	}

	commands, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneSeenLocked()

	seen := r.seen[originID]
	if seen == nil {
		seen = make(map[string]time.Time)
		r.seen[originID] = seen
	}

	var unseen []models.Command
	for _, command := range commands {
		if command.OriginID == originID {
			continue
		}
		key := command.DedupKey()
		if _, dup := seen[key]; dup {
			if r.metrics != nil {
				r.metrics.CommandDropped()
			}
			continue
		}
		seen[key] = r.now()
		unseen = append(unseen, command)
	}

	// Timestamp order is the only ordering the relay guarantees, and only
	// per trainer.
	sort.Slice(unseen, func(i, j int) bool {
		return unseen[i].Timestamp.Before(unseen[j].Timestamp)
	})
	return unseen, nil
}

// PollLoop polls at the configured interval and hands unseen commands to fn
// until the context is cancelled. It consumes under this instance's own
// origin, leaving every other consumer's seen-set untouched.
func (r *CommandRelay) PollLoop(ctx context.Context, fn func([]models.Command)) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			commands, err := r.Poll(ctx, r.originID)
			if err != nil {
				r.logger.Warn("relay poll failed", zap.Error(err))
				continue
			}
			if len(commands) > 0 {
				fn(commands)
			}
		}
	}
}

// pruneSeenLocked drops dedup entries old enough that the store has long
// expired their commands, keeping the seen-sets bounded. Consumers with no
// recent deliveries fall away entirely.
func (r *CommandRelay) pruneSeenLocked() {
	horizon := r.now().Add(-4 * r.cfg.CommandTTL)
	for origin, keys := range r.seen {
		for key, at := range keys {
			if at.Before(horizon) {
				delete(keys, key)
			}
		}
		if len(keys) == 0 {
			delete(r.seen, origin)
		}
	}
}
