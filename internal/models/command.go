package models

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// CommandAction names a state-changing event broadcast between views.
type CommandAction string

const (
	CommandTrainerRemoved     CommandAction = "trainer-removed"
	CommandTrainerAdded       CommandAction = "trainer-added-exceptional"
	CommandTrainerRestored    CommandAction = "trainer-restored"
	CommandAvailabilityChange CommandAction = "availability-changed"
	CommandPlanningChange     CommandAction = "planning-changed"
	CommandSessionsChange     CommandAction = "sessions-changed"
)

// Command is a best-effort broadcast of a committed change. Delivery is
// at-least-once; consumers deduplicate on (Timestamp, OriginID).
type Command struct {
	Action        CommandAction  `json:"action"`
	TrainerID     string         `json:"trainer_id"`
	EffectiveDate time.Time      `json:"effective_date"`
	Detail        types.JSONText `json:"detail,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	OriginID      string         `json:"origin_id"`
}

// DedupKey is the identity a consumer uses to drop redelivered commands.
func (c *Command) DedupKey() string {
	return fmt.Sprintf("%d:%s", c.Timestamp.UnixNano(), c.OriginID)
}
