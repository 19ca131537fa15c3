// Package risk implements the risk control core: per-user risk profiles,
// quantitative risk metrics, live exposure monitoring, trade enforcement and
// emergency kill switches.
package risk

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Aidin1998/riskcore/pkg/errors"
)

// RiskLevel is a user's risk tolerance tier.
type RiskLevel string

const (
	RiskLevelVeryLow  RiskLevel = "very_low"
	RiskLevelLow      RiskLevel = "low"
	RiskLevelModerate RiskLevel = "moderate"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelVeryHigh RiskLevel = "very_high"
)

// LevelCeilings holds the default ceiling limits a risk level grants.
type LevelCeilings struct {
	MaxPositionSizePercent float64
	MaxDailyLossPercent    float64
	MaxDrawdownPercent     float64
}

// levelCeilings is the data-driven ceiling table. Ceilings strictly increase
// from VeryLow to VeryHigh.
var levelCeilings = map[RiskLevel]LevelCeilings{
	RiskLevelVeryLow:  {MaxPositionSizePercent: 5, MaxDailyLossPercent: 2, MaxDrawdownPercent: 5},
	RiskLevelLow:      {MaxPositionSizePercent: 10, MaxDailyLossPercent: 3, MaxDrawdownPercent: 10},
	RiskLevelModerate: {MaxPositionSizePercent: 20, MaxDailyLossPercent: 5, MaxDrawdownPercent: 20},
	RiskLevelHigh:     {MaxPositionSizePercent: 30, MaxDailyLossPercent: 10, MaxDrawdownPercent: 30},
	RiskLevelVeryHigh: {MaxPositionSizePercent: 50, MaxDailyLossPercent: 15, MaxDrawdownPercent: 50},
}

// Valid reports whether l is a known risk level.
func (l RiskLevel) Valid() bool {
	_, ok := levelCeilings[l]
	return ok
}

// Ceilings returns the default ceiling limits for the level.
func (l RiskLevel) Ceilings() LevelCeilings {
	return levelCeilings[l]
}

// ParseRiskLevel validates a raw risk level string.
func ParseRiskLevel(s string) (RiskLevel, error) {
	level := RiskLevel(s)
	if !level.Valid() {
		return "", errors.Invalid.Explain("unknown risk level %q", s)
	}
	return level, nil
}

// RiskProfile is the per-user aggregate of risk tolerance and numeric limits.
// One profile exists per user; it is never deleted while the account exists.
type RiskProfile struct {
	ID                          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                      uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Level                       RiskLevel  `gorm:"type:varchar(16);not null" json:"risk_level"`
	MaxPositionSizePercent      float64    `gorm:"not null" json:"max_position_size_percent"`
	MaxPortfolioExposurePercent float64    `gorm:"not null" json:"max_portfolio_exposure_percent"`
	MaxDailyLossPercent         float64    `gorm:"not null" json:"max_daily_loss_percent"`
	MaxDrawdownPercent          float64    `gorm:"not null" json:"max_drawdown_percent"`
	MaxLeverage                 float64    `gorm:"not null" json:"max_leverage"`
	MaxConcentrationPercent     *float64   `json:"max_concentration_percent,omitempty"`
	MaxTradesPerDay             *int       `json:"max_trades_per_day,omitempty"`
	RequireApprovalAboveLimit   bool       `gorm:"not null" json:"require_approval_above_limit"`
	Notes                       string     `gorm:"type:text" json:"notes"`
	CreatedAt                   time.Time  `json:"created_at"`
	UpdatedAt                   time.Time  `json:"updated_at"`
}

// ProfileOverrides carries optional limit values supplied at creation. Nil
// fields fall back to the risk level's ceiling defaults.
type ProfileOverrides struct {
	MaxPositionSizePercent      *float64
	MaxPortfolioExposurePercent *float64
	MaxDailyLossPercent         *float64
	MaxDrawdownPercent          *float64
	MaxLeverage                 *float64
	MaxConcentrationPercent     *float64
	MaxTradesPerDay             *int
	RequireApprovalAboveLimit   *bool
	Notes                       string
}

// LimitUpdate carries explicit replacement values for UpdateLimits. Nil fields
// keep their current value.
type LimitUpdate struct {
	MaxPositionSizePercent      *float64
	MaxPortfolioExposurePercent *float64
	MaxDailyLossPercent         *float64
	MaxDrawdownPercent          *float64
	MaxLeverage                 *float64
	MaxConcentrationPercent     *float64
	MaxTradesPerDay             *int
	RequireApprovalAboveLimit   *bool
	Notes                       *string
}

// NewRiskProfile creates a profile for userID at the given level. Omitted
// overrides default to the level's ceilings; portfolio exposure defaults to
// 100 and leverage to 1 regardless of level.
func NewRiskProfile(userID uuid.UUID, level RiskLevel, overrides ProfileOverrides) (*RiskProfile, error) {
	if userID == uuid.Nil {
		return nil, errors.Invalid.Explain("user id is required")
	}
	if !level.Valid() {
		return nil, errors.Invalid.Explain("unknown risk level %q", level)
	}

	ceilings := level.Ceilings()
	now := time.Now().UTC()
	p := &RiskProfile{
		ID:                          uuid.New(),
		UserID:                      userID,
		Level:                       level,
		MaxPositionSizePercent:      ceilings.MaxPositionSizePercent,
		MaxPortfolioExposurePercent: 100,
		MaxDailyLossPercent:         ceilings.MaxDailyLossPercent,
		MaxDrawdownPercent:          ceilings.MaxDrawdownPercent,
		MaxLeverage:                 1,
		Notes:                       overrides.Notes,
		CreatedAt:                   now,
		UpdatedAt:                   now,
	}

	if overrides.MaxPositionSizePercent != nil {
		p.MaxPositionSizePercent = *overrides.MaxPositionSizePercent
	}
	if overrides.MaxPortfolioExposurePercent != nil {
		p.MaxPortfolioExposurePercent = *overrides.MaxPortfolioExposurePercent
	}
	if overrides.MaxDailyLossPercent != nil {
		p.MaxDailyLossPercent = *overrides.MaxDailyLossPercent
	}
	if overrides.MaxDrawdownPercent != nil {
		p.MaxDrawdownPercent = *overrides.MaxDrawdownPercent
	}
	if overrides.MaxLeverage != nil {
		p.MaxLeverage = *overrides.MaxLeverage
	}
	if overrides.MaxConcentrationPercent != nil {
		v := *overrides.MaxConcentrationPercent
		p.MaxConcentrationPercent = &v
	}
	if overrides.MaxTradesPerDay != nil {
		v := *overrides.MaxTradesPerDay
		p.MaxTradesPerDay = &v
	}
	if overrides.RequireApprovalAboveLimit != nil {
		p.RequireApprovalAboveLimit = *overrides.RequireApprovalAboveLimit
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// validate enforces the absolute bounds: percent fields in [0,100], leverage
// in [1,100], trade count non-negative.
func (p *RiskProfile) validate() error {
	var fields []errors.FieldError

	checkPercent := func(name string, v float64) {
		if v < 0 || v > 100 {
			fields = append(fields, errors.NewFieldError("range", name, "must be between 0 and 100"))
		}
	}
	checkPercent("max_position_size_percent", p.MaxPositionSizePercent)
	checkPercent("max_portfolio_exposure_percent", p.MaxPortfolioExposurePercent)
	checkPercent("max_daily_loss_percent", p.MaxDailyLossPercent)
	checkPercent("max_drawdown_percent", p.MaxDrawdownPercent)
	if p.MaxConcentrationPercent != nil {
		checkPercent("max_concentration_percent", *p.MaxConcentrationPercent)
	}
	if p.MaxLeverage < 1 || p.MaxLeverage > 100 {
		fields = append(fields, errors.NewFieldError("range", "max_leverage", "must be between 1 and 100"))
	}
	if p.MaxTradesPerDay != nil && *p.MaxTradesPerDay < 0 {
		fields = append(fields, errors.NewFieldError("range", "max_trades_per_day", "must not be negative"))
	}

	if len(fields) > 0 {
		return errors.Invalid.Explain("risk limits out of bounds").WithFields(fields)
	}
	return nil
}

// UpdateLimits replaces the supplied fields and re-validates the absolute
// bounds. It deliberately does not clamp to the current risk level's ceilings;
// an operator may grant limits above the level's nominal ceiling.
func (p *RiskProfile) UpdateLimits(update LimitUpdate) error {
	next := *p

	if update.MaxPositionSizePercent != nil {
		next.MaxPositionSizePercent = *update.MaxPositionSizePercent
	}
	if update.MaxPortfolioExposurePercent != nil {
		next.MaxPortfolioExposurePercent = *update.MaxPortfolioExposurePercent
	}
	if update.MaxDailyLossPercent != nil {
		next.MaxDailyLossPercent = *update.MaxDailyLossPercent
	}
	if update.MaxDrawdownPercent != nil {
		next.MaxDrawdownPercent = *update.MaxDrawdownPercent
	}
	if update.MaxLeverage != nil {
		next.MaxLeverage = *update.MaxLeverage
	}
	if update.MaxConcentrationPercent != nil {
		v := *update.MaxConcentrationPercent
		next.MaxConcentrationPercent = &v
	}
	if update.MaxTradesPerDay != nil {
		v := *update.MaxTradesPerDay
		next.MaxTradesPerDay = &v
	}
	if update.RequireApprovalAboveLimit != nil {
		next.RequireApprovalAboveLimit = *update.RequireApprovalAboveLimit
	}
	if update.Notes != nil {
		next.Notes = *update.Notes
	}

	if err := next.validate(); err != nil {
		return err
	}

	next.UpdatedAt = time.Now().UTC()
	*p = next
	return nil
}

// ChangeRiskLevel moves the profile to newLevel and clamps the three
// ceiling-governed limits down to the new level's ceilings. Moving to a looser
// level never raises values implicitly; it only removes the clamp going
// forward.
func (p *RiskProfile) ChangeRiskLevel(newLevel RiskLevel) error {
	if !newLevel.Valid() {
		return errors.Invalid.Explain("unknown risk level %q", newLevel)
	}

	ceilings := newLevel.Ceilings()
	p.Level = newLevel
	p.MaxPositionSizePercent = math.Min(p.MaxPositionSizePercent, ceilings.MaxPositionSizePercent)
	p.MaxDailyLossPercent = math.Min(p.MaxDailyLossPercent, ceilings.MaxDailyLossPercent)
	p.MaxDrawdownPercent = math.Min(p.MaxDrawdownPercent, ceilings.MaxDrawdownPercent)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Boundary predicates are inclusive: a value exactly at the limit is allowed.

// IsPositionSizeAllowed reports whether a position of sizePercent is within
// the position size limit.
func (p *RiskProfile) IsPositionSizeAllowed(sizePercent float64) bool {
	return sizePercent <= p.MaxPositionSizePercent
}

// IsDailyLossAllowed reports whether the day's loss is within the daily loss
// limit. The loss may be passed signed or unsigned.
func (p *RiskProfile) IsDailyLossAllowed(lossPercent float64) bool {
	return math.Abs(lossPercent) <= p.MaxDailyLossPercent
}

// IsDrawdownAllowed reports whether the drawdown is within the drawdown limit.
func (p *RiskProfile) IsDrawdownAllowed(drawdownPercent float64) bool {
	return drawdownPercent <= p.MaxDrawdownPercent
}

// IsLeverageAllowed reports whether the leverage is within the leverage limit.
func (p *RiskProfile) IsLeverageAllowed(leverage float64) bool {
	return leverage <= p.MaxLeverage
}
