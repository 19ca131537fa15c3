package risk

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/riskcore/pkg/errors"
)

// periodsPerYear is the annualization convention for volatility and the
// per-period risk-free rate (daily trading periods).
const periodsPerYear = 252

// RiskAssessment is the computed risk picture for a user at a point in time.
// It is recomputed on demand and cached, never persisted as source of truth.
type RiskAssessment struct {
	UserID          uuid.UUID          `json:"user_id"`
	CurrentDrawdown float64            `json:"current_drawdown"`
	DailyPnL        float64            `json:"daily_pnl"`
	DailyPnLPercent float64            `json:"daily_pnl_percent"`
	Volatility      float64            `json:"volatility"`
	SharpeRatio     *float64           `json:"sharpe_ratio,omitempty"`
	ValueAtRisk     *float64           `json:"value_at_risk,omitempty"`
	PortfolioValue  float64            `json:"portfolio_value"`
	TotalExposure   float64            `json:"total_exposure"`
	Leverage        float64            `json:"leverage"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	CalculatedAt    time.Time          `json:"calculated_at"`
}

// VaR estimates value at risk by historical simulation: the loss magnitude at
// the (1-confidence) percentile of the sorted return series. Returns 0 for an
// empty series.
func VaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx < 0 {
		idx = 0
	}
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}

	return math.Max(0, -sorted[idx])
}

// SharpeRatio computes the risk-adjusted return: mean excess return over the
// per-period risk-free rate, divided by the standard deviation of returns.
// riskFreeRate is annual and divided down by the annualization factor.
// Returns 0 for an empty series or zero dispersion.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sd := stdDev(returns)
	if sd == 0 {
		return 0
	}

	excess := mean(returns) - riskFreeRate/periodsPerYear
	return excess / sd
}

// Volatility is the standard deviation of the return series scaled to an
// annual figure. Returns 0 for an empty series.
func Volatility(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return stdDev(returns) * math.Sqrt(periodsPerYear)
}

// MaxDrawdown returns the largest peak-to-trough percentage decline in the
// equity curve. A monotonically non-decreasing curve yields 0.
func MaxDrawdown(equityCurve []float64) float64 {
	var peak, maxDD float64
	for _, value := range equityCurve {
		if value > peak {
			peak = value
		}
		if peak > 0 && value < peak {
			dd := (peak - value) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)))
}

// Calculator composes the pure metric functions with a user's trade history
// and live exposure into a full risk assessment.
type Calculator struct {
	history       TradeHistoryProvider
	exposure      *Monitor
	varConfidence float64
	riskFreeRate  float64
	logger        *zap.Logger
}

// NewCalculator creates a calculator. varConfidence and riskFreeRate have
// sensible defaults when zero (0.95 and 0).
func NewCalculator(history TradeHistoryProvider, exposure *Monitor, varConfidence, riskFreeRate float64, logger *zap.Logger) *Calculator {
	if varConfidence <= 0 || varConfidence >= 1 {
		varConfidence = 0.95
	}
	return &Calculator{
		history:       history,
		exposure:      exposure,
		varConfidence: varConfidence,
		riskFreeRate:  riskFreeRate,
		logger:        logger.Named("risk-calculator"),
	}
}

// Assessment computes the current risk assessment for a user. An empty
// history is not an error: metric fields degrade to zero and Sharpe/VaR stay
// nil so new users receive a usable zero-risk assessment.
func (c *Calculator) Assessment(ctx context.Context, userID uuid.UUID) (*RiskAssessment, error) {
	history, err := c.history.TradeHistory(ctx, userID)
	if err != nil {
		return nil, errors.Unavailable.Explain("trade history unavailable").Wrap(err)
	}

	snapshot, err := c.exposure.CurrentExposure(ctx, userID)
	if err != nil {
		return nil, err
	}

	pv, err := c.exposure.portfolioValue(ctx, userID)
	if err != nil {
		return nil, err
	}
	portfolioValue, _ := pv.Float64()

	dailyPnL, _ := history.DailyPnL.Float64()
	assessment := &RiskAssessment{
		UserID:          userID,
		CurrentDrawdown: MaxDrawdown(history.EquityCurve),
		DailyPnL:        dailyPnL,
		Volatility:      Volatility(history.Returns),
		PortfolioValue:  portfolioValue,
		TotalExposure:   snapshot.TotalExposure,
		Leverage:        snapshot.Leverage,
		Metrics:         map[string]float64{"return_periods": float64(len(history.Returns))},
		CalculatedAt:    time.Now().UTC(),
	}
	if portfolioValue > 0 {
		assessment.DailyPnLPercent = dailyPnL / portfolioValue * 100
	}

	if len(history.Returns) > 0 {
		sharpe := SharpeRatio(history.Returns, c.riskFreeRate)
		valueAtRisk := VaR(history.Returns, c.varConfidence)
		assessment.SharpeRatio = &sharpe
		assessment.ValueAtRisk = &valueAtRisk
	} else {
		c.logger.Debug("no return history, degrading to neutral assessment",
			zap.String("user_id", userID.String()))
	}

	return assessment, nil
}
