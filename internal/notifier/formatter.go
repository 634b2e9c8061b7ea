package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"ValuationSentinel/internal/calculator"
	"ValuationSentinel/internal/model"
	"ValuationSentinel/internal/portfolio"
	"ValuationSentinel/internal/strategy"
)

const dash = "—"

// FormatOverview formats the per-index overview into a Telegram message.
func FormatOverview(title string, rows []portfolio.Row, overall float64, now time.Time) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %s\n", html.EscapeString(title), now.Format("2006-01-02")))
	if model.Available(overall) {
		b.WriteString(fmt.Sprintf("市场整体位置: %.1f / 100 (%s)\n", overall, positionLabel(overall)))
	}
	b.WriteString("\n")

	for _, r := range rows {
		b.WriteString(fmt.Sprintf("<b>%s</b>: %s\n", html.EscapeString(r.Index.Name), r.Decision.Signal.Label()))
		if !r.Available {
			b.WriteString(fmt.Sprintf("  持仓 %s 份\n\n", units(r.Holding.UnitsHeld)))
			continue
		}
		s := r.Snapshot
		b.WriteString(fmt.Sprintf("  PE %.2f | 分位点 %s | 偏离度(3年) %s\n",
			s.PE, pct(s.Percentile*100), signed(r.Deviation)))
		b.WriteString(fmt.Sprintf("  持仓 %s 份 | 成本 %s | 浮盈 %s\n",
			units(r.Holding.UnitsHeld), num(r.PL.AvgCost, 4), signed(r.PL.PLPct*100)))
		if r.LastOp != nil {
			b.WriteString(fmt.Sprintf("  上次操作: %s %s (%d 天前)\n",
				r.LastOp.Date.Format(model.DateLayout), r.LastOp.Type.Label(), r.DaysSinceLastOp))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatDecisionLog formats the reasoning behind one index's signal.
func FormatDecisionLog(r portfolio.Row) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🧭 <b>%s 决策日志</b>\n", html.EscapeString(r.Index.Name)))
	if r.Available {
		b.WriteString(fmt.Sprintf("数据日期: %s\n", r.Snapshot.Date.Format(model.DateLayout)))
	}
	b.WriteString("\n")
	for i, line := range r.Decision.Log {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, html.EscapeString(line)))
	}
	b.WriteString(fmt.Sprintf("\n信号: %s", r.Decision.Signal.Label()))
	if r.Available {
		b.WriteString(fmt.Sprintf("\n偏离度极值: 最高 %s | 最低 %s",
			extreme(r.MaxDeviation), extreme(r.MinDeviation)))
		if model.Available(r.Volatility) {
			b.WriteString(fmt.Sprintf("\n年化波动率: %.1f%%", r.Volatility))
		}
		if model.Available(r.CloseMA) {
			b.WriteString(fmt.Sprintf("\n年线(%d日): %.2f | 点位偏离 %s", portfolio.MovingAveragePeriod,
				r.CloseMA, signed(calculator.DeviationPct(r.Snapshot.Close, r.CloseMA))))
		}
	}
	return b.String()
}

// FormatHoldings formats holdings, cost basis and estimated P/L of every index.
func FormatHoldings(rows []portfolio.Row) string {
	var b strings.Builder
	b.WriteString("📦 <b>持仓状态</b>\n\n")
	var cost, value float64
	held := 0
	for _, r := range rows {
		if r.Holding.UnitsHeld <= 0 {
			continue
		}
		held++
		b.WriteString(fmt.Sprintf("<b>%s</b>: %s 份\n", html.EscapeString(r.Index.Name), units(r.Holding.UnitsHeld)))
		b.WriteString(fmt.Sprintf("  平均成本 %s | 总成本 %.2f\n", num(r.PL.AvgCost, 4), r.Holding.TotalCost))
		b.WriteString(fmt.Sprintf("  估算现价 %s | 市值 %s | 浮盈 %s\n",
			num(r.PL.EstimatedPrice, 4), num(r.PL.MarketValue, 2), signed(r.PL.PLPct*100)))
		if model.Available(r.PL.MarketValue) {
			cost += r.Holding.TotalCost
			value += r.PL.MarketValue
		}
	}
	if held == 0 {
		b.WriteString("当前无持仓")
		return b.String()
	}
	if cost > 0 {
		b.WriteString(fmt.Sprintf("\n合计: 成本 %.2f | 市值 %.2f | 浮盈 %s", cost, value, signed((value/cost-1)*100)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSignalChange announces that an index moved to a new signal.
func FormatSignalChange(r portfolio.Row, previous model.Signal) string {
	from := dash
	if previous != "" {
		from = previous.Label()
	}
	return fmt.Sprintf("🔔 <b>%s</b> 信号变化\n%s → %s\nPE %.2f | 分位点 %s",
		html.EscapeString(r.Index.Name), from, r.Decision.Signal.Label(),
		r.Snapshot.PE, pct(r.Snapshot.Percentile*100))
}

// FormatTransaction confirms a recorded transaction.
func FormatTransaction(name string, tx model.Transaction, h model.Holding) string {
	pe := dash
	if tx.PE != nil {
		pe = fmt.Sprintf("%.2f", *tx.PE)
	}
	return fmt.Sprintf("✅ 已记录：%s %s %s 份 (#%d)\n日期 %s | 成交价 %.4f | PE %s\n当前持仓 %s 份",
		html.EscapeString(name), tx.Type.Label(), units(tx.Unit), tx.ID,
		tx.Date.Format(model.DateLayout), tx.Price, pe, units(h.UnitsHeld))
}

// FormatHistory lists the transactions of one ledger, newest last.
func FormatHistory(name string, l *model.IndexLedger) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>%s 交易记录</b>\n\n", html.EscapeString(name)))
	if l == nil || len(l.History) == 0 {
		b.WriteString("暂无交易记录")
		return b.String()
	}
	for _, tx := range l.History {
		pe, closing := dash, dash
		if tx.PE != nil {
			pe = fmt.Sprintf("%.2f", *tx.PE)
		}
		if tx.Close != nil {
			closing = fmt.Sprintf("%.2f", *tx.Close)
		}
		b.WriteString(fmt.Sprintf("#%d %s %s %s 份 @ %.4f | PE %s | 点位 %s\n",
			tx.ID, tx.Date.Format(model.DateLayout), tx.Type.Label(), units(tx.Unit), tx.Price, pe, closing))
	}
	b.WriteString(fmt.Sprintf("\n持仓 %s 份 | 总成本 %.2f", units(l.Holdings.UnitsHeld), l.Holdings.TotalCost))
	return b.String()
}

// FormatPerformance lists the return and drawdown of every index over a period.
func FormatPerformance(period string, perfs []portfolio.Performance) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>指数表现 (%s)</b>\n\n", html.EscapeString(period)))
	for _, p := range perfs {
		name := html.EscapeString(p.Index.Name)
		if !p.Available {
			b.WriteString(fmt.Sprintf("<b>%s</b>: 数据不足\n", name))
			continue
		}
		b.WriteString(fmt.Sprintf("<b>%s</b>: %s ~ %s\n  累计 %s | 年化 %s | 最大回撤 %s\n", name,
			p.Start.Format(model.DateLayout), p.End.Format(model.DateLayout),
			signed(p.TotalReturn*100), signed(p.CAGR*100), signed(p.MaxDrawdown*100)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatBacktest compares the percentile policy with a plain periodic investment.
func FormatBacktest(name string, r strategy.BacktestResult, p strategy.BacktestParams) string {
	final := r.Final()
	return fmt.Sprintf("🧪 <b>%s 策略回测</b>\n"+
		"区间 %s ~ %s | 每 %d 个交易日检查\n"+
		"分位点 ≤ %s 买入 %.0f | ≥ %s 卖出 %.0f%% 持仓\n\n"+
		"买入 %d 次 | 卖出 %d 次\n"+
		"策略: 投入 %.2f | 市值 %.2f | 收益 %s\n"+
		"定投: 投入 %.2f | 市值 %.2f | 收益 %s\n"+
		"超额收益: %s",
		html.EscapeString(name),
		r.Start().Format(model.DateLayout), r.End().Format(model.DateLayout), p.Interval,
		pct(p.BuyPercentile*100), p.Amount, pct(p.SellPercentile*100), p.SellFraction*100,
		r.Buys, r.Sells,
		final.Invested, final.Value, signed(r.Return*100),
		final.BaselineInvested, final.BaselineValue, signed(r.BaselineReturn*100),
		signed(r.Excess*100))
}

func positionLabel(v float64) string {
	switch {
	case v >= 80:
		return "极度低估"
	case v >= 60:
		return "偏低"
	case v >= 40:
		return "适中"
	case v >= 20:
		return "偏高"
	default:
		return "极度高估"
	}
}

func extreme(e calculator.Extreme) string {
	if !e.OK {
		return dash
	}
	return fmt.Sprintf("%+.1f%% (%s)", e.Value, e.Date.Format(model.DateLayout))
}

func units(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

func num(v float64, prec int) string {
	if !model.Available(v) {
		return dash
	}
	return fmt.Sprintf("%.*f", prec, v)
}

func pct(v float64) string {
	if !model.Available(v) {
		return dash
	}
	return fmt.Sprintf("%.1f%%", v)
}

func signed(v float64) string {
	if !model.Available(v) {
		return dash
	}
	return fmt.Sprintf("%+.1f%%", v)
}
