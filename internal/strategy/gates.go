package strategy

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"ValuationSentinel/internal/model"
)

// gate is one rung of the decision ladder. A gate that decides returns true.
type gate func(e *evaluation) bool

type evaluation struct {
	snap    model.Snapshot
	holding model.Holding
	history []model.Transaction
	params  model.StrategyParams
	today   time.Time

	decision model.Decision
}

func (e *evaluation) logf(format string, args ...any) {
	e.decision.Log = append(e.decision.Log, fmt.Sprintf(format, args...))
}

func (e *evaluation) decide(s model.Signal) bool {
	e.decision.Signal = s
	return true
}

// insufficientHistory stops evaluation until three years of P/E history exist.
func insufficientHistory(e *evaluation) bool {
	avg3 := e.snap.Avg3Y
	if model.Available(avg3) && avg3 != 0 {
		return false
	}
	if model.Available(avg3) {
		e.logf("条件: 3年均值PE (%.2f) 不足，无法评估。", avg3)
	} else {
		e.logf("条件: 3年均值PE 不可用 (历史不足 3 年)，无法评估。")
	}
	return e.decide(model.SignalInsufficientHistory)
}

// cooldown suppresses a new operation shortly after the last one, unless P/E has
// moved by more than the override since then.
func cooldown(e *evaluation) bool {
	last, ok := lastOperation(e.history)
	if !ok {
		e.logf("无上次操作记录，不检查时间/波动率限制。")
		return false
	}
	days := DaysSince(last.Date, e.today)
	e.logf("上次操作距今: %d 天 (要求 ≥ %d 天)", days, e.params.MinIntervalDays)
	if days >= e.params.MinIntervalDays {
		e.logf("结果: 已超过最小时间间隔，继续评估。")
		return false
	}

	lastPE := *last.PE
	change := (e.snap.PE - lastPE) / lastPE
	e.logf("上次操作PE: %.2f, 当前PE: %.2f, 变动: %.1f%% (要求 ±%.0f%% 覆盖)",
		lastPE, e.snap.PE, change*100, e.params.VolatilityOverridePct*100)
	if math.Abs(change) < e.params.VolatilityOverridePct {
		e.logf("结果: 时间/波动率限制生效，抑制操作。")
		return e.decide(model.SignalSuppressedByCooldown)
	}
	e.logf("结果: 波动率达到覆盖条件，继续评估。")
	return false
}

// summarize logs the valuation the thresholds are compared against.
func summarize(e *evaluation) bool {
	e.logf("--- 策略评估 ---")
	e.logf("当前PE: %.2f, PE分位点: %s, 3年均值PE: %.2f, 5年均值PE: %s",
		e.snap.PE, percent(e.snap.Percentile), e.snap.Avg3Y, number(e.snap.Avg5Y))
	return false
}

// sell fires on an expensive percentile or a large premium over the 3-year mean.
func sell(e *evaluation) bool {
	dev := (e.snap.PE - e.snap.Avg3Y) / e.snap.Avg3Y
	byPercentile := e.snap.Percentile > e.params.SellPercentile
	byDeviation := dev > e.params.SellDeviation
	if !byPercentile && !byDeviation {
		return false
	}
	e.logf("条件: 卖出条件满足 (分位点 > %.0f%% [%s] 或偏离度 > %.0f%% [%.1f%%])。",
		e.params.SellPercentile*100, percent(e.snap.Percentile), e.params.SellDeviation*100, dev*100)
	if e.holding.UnitsHeld > 0 {
		e.logf("结果: 建议卖出。")
		return e.decide(model.SignalSuggestSell)
	}
	e.logf("结果: 无持仓，仅作提示。")
	return e.decide(model.SignalSuggestSellNoHolding)
}

// buy fires on a cheap percentile or a P/E below both the 3- and 5-year means,
// spaced by the step-buy gate while a position is open.
func buy(e *evaluation) bool {
	byPercentile := e.snap.Percentile < e.params.BuyPercentile
	byMeans := e.snap.PE < e.snap.Avg3Y && e.snap.PE < e.snap.Avg5Y
	if !byPercentile && !byMeans {
		e.logf("条件: 无明确买入/卖出信号。")
		return e.decide(model.SignalNeutral)
	}
	e.logf("条件: 买入条件满足 (分位点 < %.0f%% [%s] 或 PE < 3/5年均值)。",
		e.params.BuyPercentile*100, percent(e.snap.Percentile))

	lastBuyPE, ok := lastBuyPE(e.history)
	if e.holding.UnitsHeld > 0 && ok {
		required := lastBuyPE * (1 - e.params.StepPercent)
		e.logf("阶梯买入检查: 上次买入PE %.2f, 下次买入PE阈值 %.2f (要求跌幅 ≥ %.0f%%)。",
			lastBuyPE, required, e.params.StepPercent*100)
		if e.snap.PE > required {
			e.logf("结果: 跌幅不足 %.0f%%，抑制买入。", e.params.StepPercent*100)
			return e.decide(model.SignalSuppressedByStepBuy)
		}
	} else {
		e.logf("阶梯买入检查: 无持仓或无上次买入PE，不检查跌幅限制。")
	}

	if e.holding.UnitsHeld < e.params.MaxUnits {
		e.logf("结果: 建议买入。")
		return e.decide(model.SignalSuggestBuy)
	}
	e.logf("结果: 建议买入 (已满仓 %.4g/%.4g 份)。", e.holding.UnitsHeld, e.params.MaxUnits)
	return e.decide(model.SignalSuggestBuyAtCap)
}

// lastOperation returns the final history entry when its P/E is known.
func lastOperation(history []model.Transaction) (model.Transaction, bool) {
	if len(history) == 0 {
		return model.Transaction{}, false
	}
	last := history[len(history)-1]
	if last.PE == nil || !model.Available(*last.PE) {
		return model.Transaction{}, false
	}
	return last, true
}

// lastBuyPE returns the P/E of the most recent buy that has one.
func lastBuyPE(history []model.Transaction) (float64, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		tx := history[i]
		if tx.Type == model.Buy && tx.PE != nil && model.Available(*tx.PE) {
			return *tx.PE, true
		}
	}
	return 0, false
}

// DaysSince returns the number of calendar days from date to today.
func DaysSince(date, today time.Time) int {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(t.Sub(d).Hours() / 24))
}

func number(v float64) string {
	if !model.Available(v) {
		return "—"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func percent(v float64) string {
	if !model.Available(v) {
		return "—"
	}
	return fmt.Sprintf("%.1f%%", v*100)
}
