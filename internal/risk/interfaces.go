package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is a live position as reported by the portfolio service.
type Position struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"` // "long" or "short"
	Notional decimal.Decimal `json:"notional"`
}

// TradeHistory is a user's recent performance history used by the calculator.
type TradeHistory struct {
	Returns     []float64       `json:"returns"` // per-period returns, percent
	EquityCurve []float64       `json:"equity_curve"`
	DailyPnL    decimal.Decimal `json:"daily_pnl"`
}

// PortfolioProvider exposes the live state of a user's portfolio.
type PortfolioProvider interface {
	Positions(ctx context.Context, userID uuid.UUID) ([]Position, error)
	PortfolioValue(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

// TradeHistoryProvider returns the historical series the calculator consumes.
type TradeHistoryProvider interface {
	TradeHistory(ctx context.Context, userID uuid.UUID) (*TradeHistory, error)
}

// BotService is the automation component that owns and stops trading bots.
type BotService interface {
	// OwnerOf returns the owning user of a bot, or a NotFound error.
	OwnerOf(ctx context.Context, botID uuid.UUID) (uuid.UUID, error)
	ActiveBots(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	StopBot(ctx context.Context, botID uuid.UUID) error
}

// OpenOrder identifies a cancellable order on an exchange connection.
type OpenOrder struct {
	ID       uuid.UUID `json:"id"`
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
}

// OrderService cancels open orders for a user or bot scope.
type OrderService interface {
	OpenOrders(ctx context.Context, userID uuid.UUID) ([]OpenOrder, error)
	OpenOrdersForBot(ctx context.Context, botID uuid.UUID) ([]OpenOrder, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) error
}

// ProfileRepository persists risk profiles.
type ProfileRepository interface {
	Create(ctx context.Context, profile *RiskProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*RiskProfile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*RiskProfile, error)
	Update(ctx context.Context, profile *RiskProfile) error
}

// HaltState describes an active trading halt.
type HaltState struct {
	Reason      string    `json:"reason"`
	ActivatedAt time.Time `json:"activated_at"`
}

// HaltStore stores kill-switch halt flags with atomic read-modify-write
// semantics. Activation must keep the earliest flag when racing activations
// collide; the boolean result reports whether this call set the flag.
type HaltStore interface {
	ActivateUser(ctx context.Context, userID uuid.UUID, state HaltState) (bool, error)
	ActivateBot(ctx context.Context, userID, botID uuid.UUID, state HaltState) (bool, error)
	UserHalt(ctx context.Context, userID uuid.UUID) (*HaltState, error)
	BotHalt(ctx context.Context, userID, botID uuid.UUID) (*HaltState, error)
	DeactivateUser(ctx context.Context, userID uuid.UUID) error
	DeactivateBot(ctx context.Context, userID, botID uuid.UUID) error
}

// TradeCounter tracks how many trades a user has executed today.
type TradeCounter interface {
	TradesToday(ctx context.Context, userID uuid.UUID) (int, error)
	RecordTrade(ctx context.Context, userID uuid.UUID) error
}

// EventPublisher publishes risk domain events for audit and alerting.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// AssessmentSource produces the current risk assessment for a user. The
// calculator implements it directly; the service layer wraps it with a cache.
type AssessmentSource interface {
	Assessment(ctx context.Context, userID uuid.UUID) (*RiskAssessment, error)
}
