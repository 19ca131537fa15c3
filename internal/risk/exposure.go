package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/riskcore/pkg/errors"
)

// ExposureSnapshot is the live exposure picture of a portfolio. All exposure
// values are percentages of portfolio value; leverage is a ratio.
type ExposureSnapshot struct {
	TotalExposure float64            `json:"total_exposure"`
	LongExposure  float64            `json:"long_exposure"`
	ShortExposure float64            `json:"short_exposure"`
	NetExposure   float64            `json:"net_exposure"`
	PerAsset      map[string]float64 `json:"per_asset"`
	Leverage      float64            `json:"leverage"`
	Timestamp     time.Time          `json:"timestamp"`
}

// MaxConcentration returns the largest single-asset exposure, 0 when the
// portfolio is empty.
func (s *ExposureSnapshot) MaxConcentration() float64 {
	var maxPct float64
	for _, pct := range s.PerAsset {
		if pct > maxPct {
			maxPct = pct
		}
	}
	return maxPct
}

// SymbolExposure returns the exposure for a symbol, 0 when absent.
func (s *ExposureSnapshot) SymbolExposure(symbol string) float64 {
	return s.PerAsset[symbol]
}

// Monitor computes live exposure snapshots from the portfolio service and
// answers capacity questions against a user's risk profile.
type Monitor struct {
	portfolio PortfolioProvider
	profiles  ProfileRepository
	logger    *zap.Logger
}

func NewMonitor(portfolio PortfolioProvider, profiles ProfileRepository, logger *zap.Logger) *Monitor {
	return &Monitor{
		portfolio: portfolio,
		profiles:  profiles,
		logger:    logger.Named("exposure-monitor"),
	}
}

func (m *Monitor) portfolioValue(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	pv, err := m.portfolio.PortfolioValue(ctx, userID)
	if err != nil {
		return decimal.Zero, errors.Unavailable.Explain("portfolio value unavailable").Wrap(err)
	}
	return pv, nil
}

// CurrentExposure aggregates live positions into an exposure snapshot. A
// portfolio with no value yields a zero snapshot.
func (m *Monitor) CurrentExposure(ctx context.Context, userID uuid.UUID) (*ExposureSnapshot, error) {
	positions, err := m.portfolio.Positions(ctx, userID)
	if err != nil {
		return nil, errors.Unavailable.Explain("positions unavailable").Wrap(err)
	}

	pv, err := m.portfolioValue(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot := &ExposureSnapshot{
		PerAsset:  make(map[string]float64),
		Timestamp: time.Now().UTC(),
	}
	if !pv.IsPositive() {
		return snapshot, nil
	}

	long := decimal.Zero
	short := decimal.Zero
	perAsset := make(map[string]decimal.Decimal)
	for _, pos := range positions {
		notional := pos.Notional.Abs()
		if pos.Side == "short" {
			short = short.Add(notional)
		} else {
			long = long.Add(notional)
		}
		perAsset[pos.Symbol] = perAsset[pos.Symbol].Add(notional)
	}

	hundred := decimal.NewFromInt(100)
	toPercent := func(v decimal.Decimal) float64 {
		pct, _ := v.Div(pv).Mul(hundred).Float64()
		return pct
	}

	total := long.Add(short)
	snapshot.TotalExposure = toPercent(total)
	snapshot.LongExposure = toPercent(long)
	snapshot.ShortExposure = toPercent(short)
	snapshot.NetExposure = toPercent(long.Sub(short))
	leverage, _ := total.Div(pv).Float64()
	snapshot.Leverage = leverage
	for symbol, notional := range perAsset {
		snapshot.PerAsset[symbol] = toPercent(notional)
	}

	return snapshot, nil
}

// WouldExceedLimit simulates adding a position of sizePercent to symbol and
// reports whether the user's concentration or portfolio exposure limit would
// be breached.
func (m *Monitor) WouldExceedLimit(ctx context.Context, userID uuid.UUID, symbol string, sizePercent float64) (bool, error) {
	profile, err := m.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return false, err
	}

	snapshot, err := m.CurrentExposure(ctx, userID)
	if err != nil {
		return false, err
	}

	if profile.MaxConcentrationPercent != nil &&
		snapshot.SymbolExposure(symbol)+sizePercent > *profile.MaxConcentrationPercent {
		return true, nil
	}
	if snapshot.TotalExposure+sizePercent > profile.MaxPortfolioExposurePercent {
		return true, nil
	}
	return false, nil
}

// AvailableCapacity returns the remaining exposure headroom in percent before
// the portfolio exposure limit is reached, floored at 0.
func (m *Monitor) AvailableCapacity(ctx context.Context, userID uuid.UUID) (float64, error) {
	profile, err := m.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}

	snapshot, err := m.CurrentExposure(ctx, userID)
	if err != nil {
		return 0, err
	}

	capacity := profile.MaxPortfolioExposurePercent - snapshot.TotalExposure
	if capacity < 0 {
		capacity = 0
	}
	return capacity, nil
}
