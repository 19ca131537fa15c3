package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/riskcore/pkg/errors"
	"github.com/Aidin1998/riskcore/pkg/metrics"
)

// Decision is the terminal outcome of a gate evaluation.
type Decision string

const (
	DecisionApproved        Decision = "approved"
	DecisionHeldForApproval Decision = "held_for_approval"
	DecisionRejected        Decision = "rejected"
)

// ProposedAction describes a trading action awaiting risk approval: a new
// position, an automation execution, or a proposal acceptance.
type ProposedAction struct {
	UserID      uuid.UUID  `json:"user_id"`
	BotID       *uuid.UUID `json:"bot_id,omitempty"`
	Symbol      string     `json:"symbol"`
	Side        string     `json:"side"`
	SizePercent float64    `json:"size_percent"`
	// Leverage is the leverage the action would move the account to;
	// 0 means unchanged.
	Leverage float64 `json:"leverage,omitempty"`
}

// LimitBreach records a single breached limit during evaluation.
type LimitBreach struct {
	LimitType    LimitType `json:"limit_type"`
	CurrentValue float64   `json:"current_value"`
	LimitValue   float64   `json:"limit_value"`
	Details      string    `json:"details,omitempty"`
}

// GateResult is the typed outcome of an evaluation. Rejected and
// HeldForApproval are normal outcomes, not errors.
type GateResult struct {
	Decision    Decision      `json:"decision"`
	Reason      string        `json:"reason,omitempty"`
	Breaches    []LimitBreach `json:"breaches,omitempty"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// Gate enforces a user's risk limits against proposed trading actions. It is
// on the critical path of every trade: it performs read-only queries, holds no
// locks, and either completes or fails before the caller proceeds.
type Gate struct {
	profiles    ProfileRepository
	exposure    *Monitor
	assessments AssessmentSource
	halts       HaltStore
	trades      TradeCounter
	events      EventPublisher
	logger      *zap.Logger
}

func NewGate(
	profiles ProfileRepository,
	exposure *Monitor,
	assessments AssessmentSource,
	halts HaltStore,
	trades TradeCounter,
	events EventPublisher,
	logger *zap.Logger,
) *Gate {
	return &Gate{
		profiles:    profiles,
		exposure:    exposure,
		assessments: assessments,
		halts:       halts,
		trades:      trades,
		events:      events,
		logger:      logger.Named("enforcement-gate"),
	}
}

// Evaluate classifies a proposed action as Approved, HeldForApproval or
// Rejected. The halt check runs before any numeric work. Failures while
// gathering exposure or assessment data are hard stops: the gate never
// approves on missing data.
func (g *Gate) Evaluate(ctx context.Context, action ProposedAction) (*GateResult, error) {
	start := time.Now()
	defer func() { metrics.GateLatency.Observe(time.Since(start).Seconds()) }()

	if halted, reason, err := g.haltState(ctx, action); err != nil {
		return nil, err
	} else if halted {
		result := &GateResult{
			Decision:    DecisionRejected,
			Reason:      fmt.Sprintf("trading halted: %s", reason),
			EvaluatedAt: time.Now().UTC(),
		}
		metrics.GateDecisions.WithLabelValues(string(result.Decision)).Inc()
		return result, nil
	}

	profile, err := g.profiles.GetByUserID(ctx, action.UserID)
	if err != nil {
		return nil, err
	}

	breaches, err := g.evaluateLimits(ctx, profile, action)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, breach := range breaches {
		metrics.LimitBreaches.WithLabelValues(string(breach.LimitType)).Inc()
		g.publish(ctx, RiskLimitExceeded{
			ProfileID:    profile.ID,
			UserID:       profile.UserID,
			LimitType:    breach.LimitType,
			CurrentValue: breach.CurrentValue,
			LimitValue:   breach.LimitValue,
			Details:      breach.Details,
			OccurredAt:   now,
		})
	}

	result := &GateResult{
		Decision:    DecisionApproved,
		Breaches:    breaches,
		EvaluatedAt: now,
	}
	if len(breaches) > 0 {
		if profile.RequireApprovalAboveLimit {
			result.Decision = DecisionHeldForApproval
			result.Reason = "risk limits exceeded, manual approval required"
		} else {
			result.Decision = DecisionRejected
			result.Reason = "risk limits exceeded"
		}
	}

	metrics.GateDecisions.WithLabelValues(string(result.Decision)).Inc()
	g.logger.Debug("gate decision",
		zap.String("user_id", action.UserID.String()),
		zap.String("symbol", action.Symbol),
		zap.String("decision", string(result.Decision)),
		zap.Int("breaches", len(breaches)),
	)
	return result, nil
}

// haltState checks the user-scoped flag and, when the action runs under a
// bot, the bot-scoped flag.
func (g *Gate) haltState(ctx context.Context, action ProposedAction) (bool, string, error) {
	halt, err := g.halts.UserHalt(ctx, action.UserID)
	if err != nil {
		return false, "", errors.Unavailable.Explain("halt store unavailable").Wrap(err)
	}
	if halt != nil {
		return true, halt.Reason, nil
	}

	if action.BotID != nil {
		halt, err = g.halts.BotHalt(ctx, action.UserID, *action.BotID)
		if err != nil {
			return false, "", errors.Unavailable.Explain("halt store unavailable").Wrap(err)
		}
		if halt != nil {
			return true, halt.Reason, nil
		}
	}
	return false, "", nil
}

func (g *Gate) evaluateLimits(ctx context.Context, profile *RiskProfile, action ProposedAction) ([]LimitBreach, error) {
	var breaches []LimitBreach

	if !profile.IsPositionSizeAllowed(action.SizePercent) {
		breaches = append(breaches, LimitBreach{
			LimitType:    LimitMaxPositionSize,
			CurrentValue: action.SizePercent,
			LimitValue:   profile.MaxPositionSizePercent,
			Details:      fmt.Sprintf("proposed position size %.2f%% for %s", action.SizePercent, action.Symbol),
		})
	}

	if action.Leverage > 0 && !profile.IsLeverageAllowed(action.Leverage) {
		breaches = append(breaches, LimitBreach{
			LimitType:    LimitMaxLeverage,
			CurrentValue: action.Leverage,
			LimitValue:   profile.MaxLeverage,
			Details:      "proposed leverage change",
		})
	}

	snapshot, err := g.exposure.CurrentExposure(ctx, profile.UserID)
	if err != nil {
		return nil, err
	}

	if projected := snapshot.TotalExposure + action.SizePercent; projected > profile.MaxPortfolioExposurePercent {
		breaches = append(breaches, LimitBreach{
			LimitType:    LimitMaxPortfolioExposure,
			CurrentValue: projected,
			LimitValue:   profile.MaxPortfolioExposurePercent,
			Details:      fmt.Sprintf("current exposure %.2f%% plus proposed %.2f%%", snapshot.TotalExposure, action.SizePercent),
		})
	}

	if profile.MaxConcentrationPercent != nil {
		if projected := snapshot.SymbolExposure(action.Symbol) + action.SizePercent; projected > *profile.MaxConcentrationPercent {
			breaches = append(breaches, LimitBreach{
				LimitType:    LimitMaxConcentration,
				CurrentValue: projected,
				LimitValue:   *profile.MaxConcentrationPercent,
				Details:      fmt.Sprintf("projected concentration in %s", action.Symbol),
			})
		}
	}

	assessment, err := g.assessments.Assessment(ctx, profile.UserID)
	if err != nil {
		return nil, err
	}

	if !profile.IsDailyLossAllowed(assessment.DailyPnLPercent) {
		breaches = append(breaches, LimitBreach{
			LimitType:    LimitMaxDailyLoss,
			CurrentValue: assessment.DailyPnLPercent,
			LimitValue:   profile.MaxDailyLossPercent,
			Details:      "daily loss limit reached",
		})
	}

	if !profile.IsDrawdownAllowed(assessment.CurrentDrawdown) {
		breaches = append(breaches, LimitBreach{
			LimitType:    LimitMaxDrawdown,
			CurrentValue: assessment.CurrentDrawdown,
			LimitValue:   profile.MaxDrawdownPercent,
			Details:      "portfolio drawdown limit reached",
		})
	}

	if profile.MaxTradesPerDay != nil {
		count, err := g.trades.TradesToday(ctx, profile.UserID)
		if err != nil {
			return nil, errors.Unavailable.Explain("trade counter unavailable").Wrap(err)
		}
		if count+1 > *profile.MaxTradesPerDay {
			breaches = append(breaches, LimitBreach{
				LimitType:    LimitMaxTradesPerDay,
				CurrentValue: float64(count),
				LimitValue:   float64(*profile.MaxTradesPerDay),
				Details:      "daily trade count limit reached",
			})
		}
	}

	return breaches, nil
}

// publish sends a domain event; failures are logged and never change the
// gate decision.
func (g *Gate) publish(ctx context.Context, event Event) {
	if g.events == nil {
		return
	}
	if err := g.events.Publish(ctx, event); err != nil {
		g.logger.Error("failed to publish risk event",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	}
}
