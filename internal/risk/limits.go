package risk

// LimitType identifies a specific risk limit enforced by the gate.
type LimitType string

const (
	LimitMaxPositionSize      LimitType = "max_position_size"
	LimitMaxPortfolioExposure LimitType = "max_portfolio_exposure"
	LimitMaxDailyLoss         LimitType = "max_daily_loss"
	LimitMaxDrawdown          LimitType = "max_drawdown"
	LimitMaxLeverage          LimitType = "max_leverage"
	LimitMaxConcentration     LimitType = "max_concentration"
	LimitMaxTradesPerDay      LimitType = "max_trades_per_day"
)

type limitTypeInfo struct {
	Description string
	Percent     bool
}

// limitTypes is the closed set of enforced limits. Percent marks limits whose
// unit is a percentage rather than a raw count.
var limitTypes = map[LimitType]limitTypeInfo{
	LimitMaxPositionSize:      {"Maximum single position size as percent of portfolio", true},
	LimitMaxPortfolioExposure: {"Maximum total portfolio exposure percent", true},
	LimitMaxDailyLoss:         {"Maximum daily loss percent", true},
	LimitMaxDrawdown:          {"Maximum portfolio drawdown percent", true},
	LimitMaxLeverage:          {"Maximum account leverage", false},
	LimitMaxConcentration:     {"Maximum single-asset concentration percent", true},
	LimitMaxTradesPerDay:      {"Maximum number of trades per day", false},
}

// Valid reports whether t is a known limit type.
func (t LimitType) Valid() bool {
	_, ok := limitTypes[t]
	return ok
}

// Description returns the human readable description of the limit.
func (t LimitType) Description() string {
	return limitTypes[t].Description
}

// IsPercent reports whether the limit's unit is a percentage.
func (t LimitType) IsPercent() bool {
	return limitTypes[t].Percent
}
