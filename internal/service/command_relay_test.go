package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/models"
)

type relayStoreStub struct {
	commands []models.Command
	ttls     []time.Duration
	err      error
}

func (s *relayStoreStub) Publish(ctx context.Context, command models.Command, ttl time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.commands = append(s.commands, command)
	s.ttls = append(s.ttls, ttl)
	return nil
}

func (s *relayStoreStub) List(ctx context.Context) ([]models.Command, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.commands, nil
}

func newRelayFixture(store *relayStoreStub) *CommandRelay {
	return NewCommandRelay(store, nil, zap.NewNop(), CommandRelayConfig{
		PollInterval: 500 * time.Millisecond,
		CommandTTL:   5 * time.Second,
	})
}

func TestCommandRelayPublishStampsOriginAndTTL(t *testing.T) {
	store := &relayStoreStub{}
	relay := newRelayFixture(store)

	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, relay.Publish(context.Background(), models.CommandTrainerRemoved, "t1", date, nil))

	require.Len(t, store.commands, 1)
	published := store.commands[0]
	assert.Equal(t, relay.OriginID(), published.OriginID)
	assert.Equal(t, models.CommandTrainerRemoved, published.Action)
	assert.False(t, published.Timestamp.IsZero())
	assert.Equal(t, 5*time.Second, store.ttls[0])
}

func TestCommandRelayPollSkipsOwnCommands(t *testing.T) {
	store := &relayStoreStub{}
	relay := newRelayFixture(store)

	require.NoError(t, relay.Publish(context.Background(), models.CommandPlanningChange, "t1", time.Now(), nil))

	commands, err := relay.Poll(context.Background(), relay.OriginID())
	require.NoError(t, err)
	assert.Empty(t, commands)

	// An empty origin polls as this instance, which is how the in-process
	// loop consumes.
	commands, err = relay.Poll(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, commands)
}

func TestCommandRelayPollDeliversToEveryConsumer(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	foreign := models.Command{
		Action:    models.CommandTrainerRemoved,
		TrainerID: "t1",
		Timestamp: now,
		OriginID:  "other-view",
	}
	store := &relayStoreStub{commands: []models.Command{foreign}}
	relay := newRelayFixture(store)
	relay.now = func() time.Time { return now }

	// One consumer polling first must not hide the command from another.
	first, err := relay.Poll(context.Background(), "view-a")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := relay.Poll(context.Background(), "view-b")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, models.CommandTrainerRemoved, second[0].Action)

	// And the in-process loop consuming under the relay's own origin does
	// not starve the views either.
	loop, err := relay.Poll(context.Background(), relay.OriginID())
	require.NoError(t, err)
	require.Len(t, loop, 1)

	late, err := relay.Poll(context.Background(), "view-c")
	require.NoError(t, err)
	assert.Len(t, late, 1)
}

func TestCommandRelayPollDeduplicatesRedelivery(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	foreign := models.Command{
		Action:    models.CommandTrainerRemoved,
		TrainerID: "t1",
		Timestamp: now,
		OriginID:  "other-view",
	}
	store := &relayStoreStub{commands: []models.Command{foreign}}
	relay := newRelayFixture(store)
	relay.now = func() time.Time { return now }

	first, err := relay.Poll(context.Background(), "view-a")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The store still holds the command; redelivery to the same consumer is
	// expected and dropped.
	second, err := relay.Poll(context.Background(), "view-a")
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestCommandRelayPollOrdersByTimestamp(t *testing.T) {
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	store := &relayStoreStub{commands: []models.Command{
		{Action: models.CommandPlanningChange, TrainerID: "t1", Timestamp: base.Add(2 * time.Second), OriginID: "view-a"},
		{Action: models.CommandTrainerRemoved, TrainerID: "t1", Timestamp: base, OriginID: "view-b"},
	}}
	relay := newRelayFixture(store)
	relay.now = func() time.Time { return base.Add(3 * time.Second) }

	commands, err := relay.Poll(context.Background(), "view-c")
	require.NoError(t, err)
	require.Len(t, commands, 2)
	assert.Equal(t, models.CommandTrainerRemoved, commands[0].Action)
	assert.Equal(t, models.CommandPlanningChange, commands[1].Action)
}

func TestCommandRelaySeenSetsArePruned(t *testing.T) {
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	foreign := models.Command{Action: models.CommandSessionsChange, Timestamp: base, OriginID: "other-view"}
	store := &relayStoreStub{commands: []models.Command{foreign}}
	relay := newRelayFixture(store)

	current := base
	relay.now = func() time.Time { return current }

	_, err := relay.Poll(context.Background(), "view-a")
	require.NoError(t, err)
	_, err = relay.Poll(context.Background(), "view-b")
	require.NoError(t, err)
	assert.Len(t, relay.seen, 2)
	assert.Len(t, relay.seen["view-a"], 1)

	// Well past four TTLs the dedup entries are dropped and idle consumers
	// fall away; the store would have expired the command long before.
	store.commands = nil
	current = base.Add(time.Minute)
	_, err = relay.Poll(context.Background(), "view-a")
	require.NoError(t, err)
	assert.Len(t, relay.seen, 1)
	assert.Empty(t, relay.seen["view-a"])
	assert.NotContains(t, relay.seen, "view-b")
}
