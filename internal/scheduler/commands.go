package scheduler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"ValuationSentinel/internal/apperrors"
	"ValuationSentinel/internal/config"
	"ValuationSentinel/internal/ledger"
	"ValuationSentinel/internal/model"
	"ValuationSentinel/internal/notifier"
	"ValuationSentinel/internal/portfolio"
	"ValuationSentinel/internal/recorder"
	"ValuationSentinel/internal/strategy"
	"ValuationSentinel/internal/valuation"
)

// Replies are sent in HTML parse mode: user text and errors go through failure,
// and literal angle brackets are written as entities.
const helpText = `可用命令:
• /signals 查看信号总览
• /holdings 查看持仓
• /log &lt;指数&gt; 查看决策日志
• /history &lt;指数&gt; 查看交易记录
• /buy &lt;指数&gt; &lt;成交价&gt; [份数] [日期]
• /sell &lt;指数&gt; &lt;成交价&gt; [份数] [日期]
• /edit &lt;指数&gt; &lt;记录号&gt; &lt;成交价&gt; [份数] [日期]
• /delete &lt;指数&gt; &lt;记录号&gt;
• /backfill 补录 PE/点位
• /perf [1y|3y|5y|ytd] 查看指数表现
• /backtest &lt;指数&gt; [买入分位] [卖出分位] 回测分位策略
• /params 查看策略参数
• /set &lt;参数&gt; &lt;值&gt; 调整策略参数`

const (
	usageTrade    = "❌ 用法: /%s &lt;指数&gt; &lt;成交价&gt; [份数] [日期]"
	usageEdit     = "❌ 用法: /edit &lt;指数&gt; &lt;记录号&gt; &lt;成交价&gt; [份数] [日期]"
	usageDelete   = "❌ 用法: /delete &lt;指数&gt; &lt;记录号&gt;"
	usageSet      = "❌ 用法: /set &lt;参数&gt; &lt;值&gt;\n"
	usageBacktest = "❌ 用法: /backtest &lt;指数&gt; [买入分位] [卖出分位]"
)

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	args := fields[1:]

	switch fields[0] {
	case "/signals", "查看信号":
		res, err := s.Evaluate(ctx, model.TriggerManual)
		if err != nil {
			return failure("评估失败: " + err.Error())
		}
		return notifier.FormatOverview(s.opts.Title, res.Rows, res.Overall, s.today())
	case "/holdings", "查看持仓":
		return notifier.FormatHoldings(s.rows(ctx))
	case "/log":
		idx, err := s.index(args)
		if err != nil {
			return failure(err.Error())
		}
		series, _ := s.Collector.Collect(ctx, idx)
		l, _ := s.Ledger.Ledger(idx.Code)
		return notifier.FormatDecisionLog(portfolio.Build(idx, series, l, s.Params(), s.today()))
	case "/history":
		idx, err := s.index(args)
		if err != nil {
			return failure(err.Error())
		}
		l, err := s.Ledger.Ledger(idx.Code)
		if err != nil {
			return failure(err.Error())
		}
		return notifier.FormatHistory(idx.Name, l)
	case "/buy", "买入":
		return s.trade(ctx, model.Buy, args)
	case "/sell", "卖出":
		return s.trade(ctx, model.Sell, args)
	case "/edit", "修改":
		return s.editTx(ctx, args)
	case "/delete", "删除":
		return s.deleteTx(args)
	case "/backfill":
		series, err := s.Collector.CollectAll(ctx, s.opts.Indices)
		if err != nil {
			return failure("数据加载失败: " + err.Error())
		}
		n, err := s.backfill(series)
		if err != nil {
			return failure("补录失败: " + err.Error())
		}
		if n == 0 {
			return "无需补录"
		}
		return fmt.Sprintf("✅ 已自动补录 %d 条交易记录的 PE/点位数据", n)
	case "/perf", "指数表现":
		return s.performance(ctx, args)
	case "/backtest", "回测":
		return s.backtest(ctx, args)
	case "/params":
		return formatParams(s.Params())
	case "/set":
		return s.setParam(args)
	default:
		return helpText
	}
}

func (s *Scheduler) rows(ctx context.Context) []portfolio.Row {
	series, err := s.Collector.CollectAll(ctx, s.opts.Indices)
	if err != nil {
		s.log.Warn().Err(err).Msg("collect for command")
	}
	return portfolio.BuildAll(s.opts.Indices, series, s.Ledger.Snapshot(), s.Params(), s.today())
}

// index resolves the first argument by code or display name.
func (s *Scheduler) index(args []string) (model.Index, error) {
	if len(args) == 0 {
		return model.Index{}, apperrors.ErrEmptyIndexCode
	}
	for _, idx := range s.opts.Indices {
		if idx.Code == args[0] || idx.Name == args[0] {
			return idx, nil
		}
	}
	return model.Index{}, fmt.Errorf("%s: %w", args[0], apperrors.ErrUnknownIndex)
}

// parseFill reads "<price> [unit] [date]". Missing unit and date keep the given defaults.
func parseFill(args []string, unit float64, date time.Time) (float64, float64, time.Time, error) {
	price, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("成交价无效: %s", args[0])
	}
	if len(args) > 1 {
		if unit, err = strconv.ParseFloat(args[1], 64); err != nil {
			return 0, 0, time.Time{}, fmt.Errorf("份数无效: %s", args[1])
		}
	}
	if len(args) > 2 {
		d, ok := valuation.ParseDate(args[2])
		if !ok {
			return 0, 0, time.Time{}, fmt.Errorf("日期无效: %s", args[2])
		}
		date = d
	}
	return price, unit, time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC), nil
}

// trade parses "<index> <price> [unit] [date]" and appends the transaction.
func (s *Scheduler) trade(ctx context.Context, typ model.TxType, args []string) string {
	idx, err := s.index(args)
	if err != nil {
		return failure(err.Error())
	}
	if len(args) < 2 {
		return fmt.Sprintf(usageTrade, typ)
	}
	price, unit, date, err := parseFill(args[1:], 1, s.today())
	if err != nil {
		return failure(err.Error())
	}

	series, err := s.Collector.Collect(ctx, idx)
	if err != nil {
		s.log.Warn().Err(err).Str("index", idx.Code).Msg("no series to annotate transaction")
	}
	tx, err := s.Ledger.Append(idx.Code, model.Transaction{
		Date:  date,
		Type:  typ,
		Unit:  unit,
		Price: price,
	}, series)
	if err != nil {
		return failure(describe(err))
	}

	l, _ := s.Ledger.Ledger(idx.Code)
	s.recordLedger(recorder.ActionAppend, idx.Code, tx, l.Holdings)
	return notifier.FormatTransaction(idx.Name, tx, l.Holdings)
}

// editTx parses "<index> <id> <price> [unit] [date]" and replaces the record.
// The type is kept; unit and date default to the stored values.
func (s *Scheduler) editTx(ctx context.Context, args []string) string {
	idx, err := s.index(args)
	if err != nil {
		return failure(err.Error())
	}
	if len(args) < 3 {
		return usageEdit
	}
	id, err := parseID(args[1])
	if err != nil {
		return failure(err.Error())
	}
	l, err := s.Ledger.Ledger(idx.Code)
	if err != nil {
		return failure(describe(err))
	}
	pos := ledger.Position(l, id)
	if pos < 0 {
		return failure(describe(apperrors.ErrTransactionNotFound))
	}
	cur := l.History[pos]

	price, unit, date, err := parseFill(args[2:], cur.Unit, cur.Date)
	if err != nil {
		return failure(err.Error())
	}
	tx := model.Transaction{Date: date, Type: cur.Type, Unit: unit, Price: price}
	if date.Equal(cur.Date) {
		tx.PE, tx.Close = cur.PE, cur.Close
	}

	series, err := s.Collector.Collect(ctx, idx)
	if err != nil {
		s.log.Warn().Err(err).Str("index", idx.Code).Msg("no series to annotate transaction")
	}
	edited, err := s.Ledger.Edit(idx.Code, id, tx, series)
	if err != nil {
		return failure(describe(err))
	}

	l, _ = s.Ledger.Ledger(idx.Code)
	s.recordLedger(recorder.ActionEdit, idx.Code, edited, l.Holdings)
	return fmt.Sprintf("✏️ 已修改 %s 记录 #%d\n%s %s %.4g 份 @ %.4f\n当前持仓 %.4g 份",
		html.EscapeString(idx.Name), edited.ID, edited.Date.Format(model.DateLayout),
		edited.Type.Label(), edited.Unit, edited.Price, l.Holdings.UnitsHeld)
}

func (s *Scheduler) deleteTx(args []string) string {
	idx, err := s.index(args)
	if err != nil {
		return failure(err.Error())
	}
	if len(args) < 2 {
		return usageDelete
	}
	id, err := parseID(args[1])
	if err != nil {
		return failure(err.Error())
	}
	removed, err := s.Ledger.Delete(idx.Code, id)
	if err != nil {
		return failure(describe(err))
	}
	l, _ := s.Ledger.Ledger(idx.Code)
	s.recordLedger(recorder.ActionDelete, idx.Code, removed, l.Holdings)
	return fmt.Sprintf("🗑 已删除 %s 记录 #%d\n当前持仓 %.4g 份", html.EscapeString(idx.Name), id, l.Holdings.UnitsHeld)
}

// performance parses "[period]" and reports every index over it.
func (s *Scheduler) performance(ctx context.Context, args []string) string {
	period := weeklyPeriod
	if len(args) > 0 {
		period = strings.ToLower(args[0])
	}
	series, err := s.Collector.CollectAll(ctx, s.opts.Indices)
	if err != nil {
		return failure("数据加载失败: " + err.Error())
	}
	perfs, err := portfolio.MeasureAll(s.opts.Indices, series, period)
	if err != nil {
		return failure(fmt.Sprintf("未知区间: %s (可选 1y, 3y, 5y, ytd)", period))
	}
	return notifier.FormatPerformance(period, perfs)
}

// backtest parses "<index> [buy] [sell]" with percentiles as fractions.
func (s *Scheduler) backtest(ctx context.Context, args []string) string {
	idx, err := s.index(args)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyIndexCode) {
			return usageBacktest
		}
		return failure(err.Error())
	}
	p := strategy.DefaultBacktestParams()
	for i, target := range []*float64{&p.BuyPercentile, &p.SellPercentile} {
		if len(args) <= i+1 {
			break
		}
		v, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return failure("分位无效: " + args[i+1])
		}
		*target = v
	}
	if !(p.BuyPercentile > 0 && p.BuyPercentile < p.SellPercentile && p.SellPercentile < 1) {
		return failure("分位需满足 0 < 买入 < 卖出 < 1")
	}

	series, err := s.Collector.Collect(ctx, idx)
	if err != nil {
		return failure("数据加载失败: " + err.Error())
	}
	res, ok := strategy.Backtest(series, p)
	if !ok {
		return failure(fmt.Sprintf("%s 历史数据不足 %d 个交易日，无法回测", idx.Name, p.MinPeriods))
	}
	s.log.Info().
		Str("index", idx.Code).
		Int("buys", res.Buys).
		Int("sells", res.Sells).
		Float64("excess", res.Excess).
		Msg("backtest finished")
	return notifier.FormatBacktest(idx.Name, res, p)
}

func (s *Scheduler) recordLedger(action recorder.LedgerAction, code string, tx model.Transaction, h model.Holding) {
	if err := s.Recorder.RecordLedgerEvent(&recorder.LedgerEvent{
		Code:       code,
		Action:     action,
		TxID:       tx.ID,
		Type:       tx.Type,
		Unit:       tx.Unit,
		Price:      tx.Price,
		UnitsAfter: h.UnitsHeld,
		CostAfter:  h.TotalCost,
	}); err != nil {
		s.log.Error().Err(err).Str("index", code).Msg("record ledger event")
	}
}

func (s *Scheduler) setParam(args []string) string {
	if len(args) != 2 {
		return usageSet + formatParams(s.Params())
	}
	p := s.Params()
	name, value := args[0], args[1]
	if name == "min_interval_days" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return failure(fmt.Sprintf("%s 需要整数: %s", name, value))
		}
		p.MinIntervalDays = n
	} else {
		target := floatParam(&p, name)
		if target == nil {
			return failure("未知参数: "+name) + "\n" + formatParams(p)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return failure("数值无效: " + value)
		}
		*target = v
	}
	if err := config.ValidateStrategy(p); err != nil {
		return failure(err.Error())
	}
	s.SetParams(p)
	s.log.Info().Str("param", name).Str("value", value).Msg("strategy parameter changed")
	return "✅ 已更新\n" + formatParams(p)
}

func floatParam(p *model.StrategyParams, name string) *float64 {
	switch name {
	case "max_units":
		return &p.MaxUnits
	case "step_percent":
		return &p.StepPercent
	case "volatility_override_pct":
		return &p.VolatilityOverridePct
	case "sell_percentile":
		return &p.SellPercentile
	case "sell_deviation":
		return &p.SellDeviation
	case "buy_percentile":
		return &p.BuyPercentile
	}
	return nil
}

func formatParams(p model.StrategyParams) string {
	return fmt.Sprintf(`⚙️ <b>策略参数</b>
max_units: %g
step_percent: %g
min_interval_days: %d
volatility_override_pct: %g
sell_percentile: %g
sell_deviation: %g
buy_percentile: %g`,
		p.MaxUnits, p.StepPercent, p.MinIntervalDays, p.VolatilityOverridePct,
		p.SellPercentile, p.SellDeviation, p.BuyPercentile)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("记录号无效: %s", s)
	}
	return id, nil
}

func failure(msg string) string {
	return "❌ " + html.EscapeString(msg)
}

// describe turns ledger errors into user-facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrOversell):
		return "卖出份数超过当前持仓"
	case errors.Is(err, apperrors.ErrInvalidUnit):
		return "份数必须为正数"
	case errors.Is(err, apperrors.ErrInvalidPrice):
		return "成交价必须为正数"
	case errors.Is(err, apperrors.ErrTransactionNotFound):
		return "找不到该记录"
	default:
		return err.Error()
	}
}
