package risk

import (
	"time"

	"github.com/google/uuid"
)

// Event is a risk domain event consumed by audit and alerting collaborators.
type Event interface {
	EventType() string
	// Key is the partition key used by the message bus.
	Key() string
}

// RiskProfileCreated is emitted once per profile creation.
type RiskProfileCreated struct {
	ProfileID  uuid.UUID `json:"profile_id"`
	UserID     uuid.UUID `json:"user_id"`
	RiskLevel  RiskLevel `json:"risk_level"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e RiskProfileCreated) EventType() string { return "risk.profile.created" }
func (e RiskProfileCreated) Key() string       { return e.UserID.String() }

// RiskLimitExceeded is emitted for every breached limit, independent of the
// gate's final decision.
type RiskLimitExceeded struct {
	ProfileID    uuid.UUID `json:"profile_id"`
	UserID       uuid.UUID `json:"user_id"`
	LimitType    LimitType `json:"limit_type"`
	CurrentValue float64   `json:"current_value"`
	LimitValue   float64   `json:"limit_value"`
	Details      string    `json:"details,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (e RiskLimitExceeded) EventType() string { return "risk.limit.exceeded" }
func (e RiskLimitExceeded) Key() string       { return e.UserID.String() }

// BotKillSwitchActivated is emitted when a single bot is halted.
type BotKillSwitchActivated struct {
	BotID      uuid.UUID `json:"bot_id"`
	UserID     uuid.UUID `json:"user_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e BotKillSwitchActivated) EventType() string { return "risk.killswitch.bot" }
func (e BotKillSwitchActivated) Key() string       { return e.UserID.String() }

// GlobalKillSwitchActivated is emitted when all trading for a user is halted.
// The counts reflect how many stop/cancel requests succeeded.
type GlobalKillSwitchActivated struct {
	UserID          uuid.UUID `json:"user_id"`
	Reason          string    `json:"reason"`
	StoppedBots     int       `json:"stopped_bots"`
	CancelledOrders int       `json:"cancelled_orders"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (e GlobalKillSwitchActivated) EventType() string { return "risk.killswitch.global" }
func (e GlobalKillSwitchActivated) Key() string       { return e.UserID.String() }

// KillSwitchDeactivated is emitted when a halt flag is explicitly cleared.
type KillSwitchDeactivated struct {
	UserID     uuid.UUID  `json:"user_id"`
	BotID      *uuid.UUID `json:"bot_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func (e KillSwitchDeactivated) EventType() string { return "risk.killswitch.deactivated" }
func (e KillSwitchDeactivated) Key() string       { return e.UserID.String() }
