package model

// TriggerType indicates what triggered an evaluation run.
type TriggerType string

const (
	TriggerDaily  TriggerType = "DAILY"
	TriggerWeekly TriggerType = "WEEKLY"
	TriggerManual TriggerType = "MANUAL"
)

// Signal is the outcome of the decision ladder for one index.
type Signal string

const (
	SignalInsufficientHistory  Signal = "INSUFFICIENT_HISTORY"
	SignalSuppressedByCooldown Signal = "SUPPRESSED_BY_COOLDOWN"
	SignalSuggestSell          Signal = "SUGGEST_SELL"
	SignalSuggestSellNoHolding Signal = "SUGGEST_SELL_NO_HOLDING"
	SignalSuppressedByStepBuy  Signal = "SUPPRESSED_BY_STEP_BUY"
	SignalSuggestBuy           Signal = "SUGGEST_BUY"
	SignalSuggestBuyAtCap      Signal = "SUGGEST_BUY_AT_CAP"
	SignalNeutral              Signal = "NEUTRAL"
	SignalDataUnavailable      Signal = "DATA_UNAVAILABLE"
)

// Label returns the user-facing text of the signal.
func (s Signal) Label() string {
	switch s {
	case SignalInsufficientHistory:
		return "⚠️ 数据积累中 (不满 3 年)"
	case SignalSuppressedByCooldown:
		return "⏸️ 观望 (时间/波动率限制)"
	case SignalSuggestSell:
		return "🔴 建议卖出"
	case SignalSuggestSellNoHolding:
		return "🔴 建议卖出 (无持仓)"
	case SignalSuppressedByStepBuy:
		return "⏸️ 观望 (跌幅不足)"
	case SignalSuggestBuy:
		return "🟢 建议买入"
	case SignalSuggestBuyAtCap:
		return "🟢 建议买入 (已满仓)"
	case SignalNeutral:
		return "观望"
	case SignalDataUnavailable:
		return "⚠️ 数据缺失"
	default:
		return string(s)
	}
}

// IsSell reports whether the signal belongs to the sell family.
func (s Signal) IsSell() bool {
	return s == SignalSuggestSell || s == SignalSuggestSellNoHolding
}

// IsBuy reports whether the signal belongs to the buy family.
func (s Signal) IsBuy() bool {
	return s == SignalSuggestBuy || s == SignalSuggestBuyAtCap
}

// Decision is the signal plus the ordered reasoning that produced it.
type Decision struct {
	Signal Signal
	Log    []string
}

// StrategyParams are the user-adjustable knobs of the signal engine.
// They only affect signal computation, never the ledger.
type StrategyParams struct {
	MaxUnits              float64 `yaml:"max_units"`
	StepPercent           float64 `yaml:"step_percent"`
	MinIntervalDays       int     `yaml:"min_interval_days"`
	VolatilityOverridePct float64 `yaml:"volatility_override_pct"`

	SellPercentile float64 `yaml:"sell_percentile"`
	SellDeviation  float64 `yaml:"sell_deviation"`
	BuyPercentile  float64 `yaml:"buy_percentile"`
}

// DefaultStrategyParams returns the stock strategy.
func DefaultStrategyParams() StrategyParams {
	return StrategyParams{
		MaxUnits:              10,
		StepPercent:           0.06,
		MinIntervalDays:       30,
		VolatilityOverridePct: 0.12,
		SellPercentile:        0.75,
		SellDeviation:         0.30,
		BuyPercentile:         0.20,
	}
}

// PL is the floating profit/loss estimate of a holding.
// Fields are NaN when not applicable.
type PL struct {
	AvgCost        float64
	EstimatedPrice float64
	MarketValue    float64
	PLPct          float64
}
