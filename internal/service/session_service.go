package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/models"
	appErrors "github.com/planordo/planning-api/pkg/errors"
)

type sessionStore interface {
	Save(ctx context.Context, session *models.EditorSession) error
	List(ctx context.Context) ([]models.EditorSession, error)
	Delete(ctx context.Context, sessionID string) error
}

type sessionBroadcaster interface {
	Publish(ctx context.Context, action models.CommandAction, trainerID string, effectiveDate time.Time, detail types.JSONText) error
}

type sessionObserver interface {
	SetLiveSessions(count int)
}

// SessionCoordinatorConfig tunes heartbeat expiry.
type SessionCoordinatorConfig struct {
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
}

// SessionCoordinator tracks connected admin sessions and derives write
// priority from connection order. The session with the longest continuous
// unexpired connection holds rank 1 and is the only one allowed to claim
// edit locks; ranks compact downward whenever a higher-ranked session
// expires. Locks are soft: heartbeat-expiring claims, advisory only.
type SessionCoordinator struct {
	store   sessionStore
	relay   sessionBroadcaster
	metrics sessionObserver
	cfg     SessionCoordinatorConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewSessionCoordinator wires the coordinator.
func NewSessionCoordinator(store sessionStore, relay sessionBroadcaster, metrics sessionObserver, logger *zap.Logger, cfg SessionCoordinatorConfig) *SessionCoordinator {
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 60 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionCoordinator{
		store:   store,
		relay:   relay,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Register creates a session for an admin and returns it with its derived
// rank. A freshly registered session always joins at the bottom.
func (s *SessionCoordinator) Register(ctx context.Context, adminID, view string) (*models.EditorSession, error) {
	now := s.now().UTC()
	session := &models.EditorSession{
		ID:            uuid.NewString(),
		AdminID:       adminID,
		View:          view,
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
	if err := s.store.Save(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to register session")
	}

	s.broadcastSessionsChanged(ctx)

	live, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range live {
		if live[i].ID == session.ID {
			return &live[i], nil
		}
	}
	return session, nil
}

// Heartbeat refreshes a session's liveness window.
func (s *SessionCoordinator) Heartbeat(ctx context.Context, sessionID string) error {
	session, err := s.find(ctx, sessionID)
	if err != nil {
		return err
	}
	session.LastHeartbeat = s.now().UTC()
	if err := s.store.Save(ctx, session); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to refresh heartbeat")
	}
	return nil
}

// ListSessions returns the live sessions ordered by rank. Rank is derived
// here, on every read, from connection-time ordering; it is never stored.
func (s *SessionCoordinator) ListSessions(ctx context.Context) ([]models.EditorSession, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to list sessions")
	}

	now := s.now()
	live := stored[:0]
	for _, session := range stored {
		if !session.Expired(now, s.cfg.HeartbeatTimeout) {
			live = append(live, session)
		}
	}

	sort.Slice(live, func(i, j int) bool {
		if !live[i].ConnectedAt.Equal(live[j].ConnectedAt) {
			return live[i].ConnectedAt.Before(live[j].ConnectedAt)
		}
		return live[i].ID < live[j].ID
	})
	for i := range live {
		live[i].Rank = i + 1
	}

	if s.metrics != nil {
		s.metrics.SetLiveSessions(len(live))
	}
	return live, nil
}

// ClaimLock grants the session an exclusive soft lock on an entity. Only the
// rank-1 session may claim; a denial names the current holder and is never
// queued.
func (s *SessionCoordinator) ClaimLock(ctx context.Context, sessionID, entityID string) error {
	live, err := s.ListSessions(ctx)
	if err != nil {
		return err
	}

	var caller *models.EditorSession
	for i := range live {
		session := &live[i]
		if session.ID == sessionID {
			caller = session
			continue
		}
		if session.EditingEntityID != nil && *session.EditingEntityID == entityID {
			return appErrors.Clone(appErrors.ErrLockDenied,
				fmt.Sprintf("entity %s is being edited by %s", entityID, session.AdminID))
		}
	}
	if caller == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "session expired or unknown")
	}
	if caller.Rank != 1 {
		holder := live[0]
		return appErrors.Clone(appErrors.ErrLockDenied,
			fmt.Sprintf("write access is held by %s (rank 1)", holder.AdminID))
	}

	caller.EditingEntityID = &entityID
	if err := s.store.Save(ctx, caller); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to persist lock")
	}
	s.broadcastSessionsChanged(ctx)
	return nil
}

// ReleaseLock clears the session's current lock, if any.
func (s *SessionCoordinator) ReleaseLock(ctx context.Context, sessionID string) error {
	session, err := s.find(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.EditingEntityID == nil {
		return nil
	}
	session.EditingEntityID = nil
	if err := s.store.Save(ctx, session); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to release lock")
	}
	s.broadcastSessionsChanged(ctx)
	return nil
}

// RequireLock verifies the caller is the rank-1 session and currently holds
// the lock on the entity. Write services gate every mutation through this.
func (s *SessionCoordinator) RequireLock(ctx context.Context, sessionID, entityID string) error {
	live, err := s.ListSessions(ctx)
	if err != nil {
		return err
	}
	for i := range live {
		session := &live[i]
		if session.ID != sessionID {
			continue
		}
		if session.Rank != 1 {
			return appErrors.Clone(appErrors.ErrLockDenied,
				fmt.Sprintf("write access is held by %s (rank 1)", live[0].AdminID))
		}
		if session.EditingEntityID == nil || *session.EditingEntityID != entityID {
			return appErrors.Clone(appErrors.ErrLockDenied,
				fmt.Sprintf("session does not hold the lock on %s", entityID))
		}
		return nil
	}
	return appErrors.Clone(appErrors.ErrNotFound, "session expired or unknown")
}

// Sweep removes sessions whose heartbeat is stale past the timeout,
// releasing their locks, and rebroadcasts the rank list when anything
// changed so other views update without user action.
func (s *SessionCoordinator) Sweep(ctx context.Context) error {
	stored, err := s.store.List(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to sweep sessions")
	}

	now := s.now()
	removed := 0
	for i := range stored {
		session := &stored[i]
		if !session.Expired(now, s.cfg.HeartbeatTimeout) {
			continue
		}
		if err := s.store.Delete(ctx, session.ID); err != nil {
			s.logger.Warn("failed to expire session", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		removed++
		s.logger.Info("expired editor session",
			zap.String("session_id", session.ID),
			zap.String("admin_id", session.AdminID),
			zap.Time("last_heartbeat", session.LastHeartbeat))
	}

	if removed > 0 {
		s.broadcastSessionsChanged(ctx)
	}
	return nil
}

// SweepLoop runs Sweep at the configured interval until the context is
// cancelled.
func (s *SessionCoordinator) SweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Warn("session sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *SessionCoordinator) find(ctx context.Context, sessionID string) (*models.EditorSession, error) {
	live, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range live {
		if live[i].ID == sessionID {
			return &live[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "session expired or unknown")
}

func (s *SessionCoordinator) broadcastSessionsChanged(ctx context.Context) {
	if s.relay == nil {
		return
	}
	if err := s.relay.Publish(ctx, models.CommandSessionsChange, "", s.now().UTC(), nil); err != nil {
		s.logger.Warn("failed to broadcast session change", zap.Error(err))
	}
}
