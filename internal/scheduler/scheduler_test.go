package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ValuationSentinel/internal/collector"
	"ValuationSentinel/internal/ledger"
	"ValuationSentinel/internal/model"
	"ValuationSentinel/internal/recorder"
	"ValuationSentinel/internal/valuation"
)

var today = time.Date(2025, 7, 1, 20, 0, 0, 0, time.UTC)

type captureNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureNotifier) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *captureNotifier) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// weeklyTable spans 2019..2025 at a flat P/E of 10 and ends on 2025-06-30 with lastPE.
func weeklyTable(lastPE, lastPct float64) *valuation.RawTable {
	t := &valuation.RawTable{Columns: []string{"日期", "PE-TTM", "PE-TTM 分位点", "收盘点位"}}
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	for d := time.Date(2019, 1, 2, 0, 0, 0, 0, time.UTC); d.Before(end); d = d.AddDate(0, 0, 7) {
		t.Rows = append(t.Rows, []string{d.Format("2006-01-02"), "10", "50", "4000"})
	}
	t.Rows = append(t.Rows, []string{
		end.Format("2006-01-02"),
		fmt.Sprint(lastPE),
		fmt.Sprint(lastPct),
		"3500",
	})
	return t
}

type fixture struct {
	s        *Scheduler
	notifier *captureNotifier
	rec      *recorder.SQLiteRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	log := zerolog.Nop()

	indices := []model.Index{
		{Code: "hs300", Name: "沪深300", Prefix: "hs300"},
		{Code: "zz500", Name: "中证500", Prefix: "zz500"},
		{Code: "cyb", Name: "创业板", Prefix: "cyb"},
	}
	fetcher := &collector.MockFetcher{Tables: map[string]*valuation.RawTable{
		"hs300": weeklyTable(7, 10),
		"zz500": weeklyTable(10, 50),
	}}
	col := collector.NewCollector(fetcher, time.Hour, log)

	lm, err := ledger.NewManager(filepath.Join(dir, "state.json"), []string{"hs300", "zz500", "cyb"}, log)
	require.NoError(t, err)

	rec, err := recorder.NewSQLiteRecorder(filepath.Join(dir, "history.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	n := &captureNotifier{}
	s := NewScheduler(context.Background(), col, lm, n, rec, Options{
		Indices:   indices,
		Benchmark: "hs300",
		Title:     "日报",
		Strategy:  model.DefaultStrategyParams(),
		Location:  time.UTC,
	}, log)
	s.now = func() time.Time { return today }
	return &fixture{s: s, notifier: n, rec: rec}
}

type captureRecorder struct {
	recorder.Recorder
	mu     sync.Mutex
	events []recorder.LedgerEvent
}

func (c *captureRecorder) RecordLedgerEvent(evt *recorder.LedgerEvent) error {
	c.mu.Lock()
	c.events = append(c.events, *evt)
	c.mu.Unlock()
	return c.Recorder.RecordLedgerEvent(evt)
}

func (c *captureRecorder) actions() []recorder.LedgerAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]recorder.LedgerAction, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Action)
	}
	return out
}

func signals(res *Result) map[string]model.Signal {
	out := make(map[string]model.Signal)
	for _, r := range res.Rows {
		out[r.Index.Code] = r.Decision.Signal
	}
	return out
}

func TestEvaluate_SignalsAndChanges(t *testing.T) {
	f := newFixture(t)

	res, err := f.s.Evaluate(context.Background(), model.TriggerDaily)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, map[string]model.Signal{
		"hs300": model.SignalSuggestBuy,
		"zz500": model.SignalNeutral,
		"cyb":   model.SignalDataUnavailable,
	}, signals(res))
	assert.InDelta(t, 90, res.Overall, 1e-9)
	assert.Len(t, res.Changed, 2, "unavailable rows never count as a change")
	assert.Empty(t, res.Previous)

	last, ok, err := f.rec.LastSignal("hs300", model.TriggerDaily)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.SignalSuggestBuy, last)

	res, err = f.s.Evaluate(context.Background(), model.TriggerDaily)
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
	assert.Equal(t, model.SignalSuggestBuy, res.Previous["hs300"])
}

func TestEvaluate_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.s.Evaluate(ctx, model.TriggerManual)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDailyTask_NotifiesBuySellChangesOnly(t *testing.T) {
	f := newFixture(t)

	f.s.dailyTask()
	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "沪深300")
	assert.Contains(t, msgs[0], model.SignalSuggestBuy.Label())

	f.s.dailyTask()
	assert.Len(t, f.notifier.messages(), 1, "unchanged signals stay quiet")
}

func TestDailyTask_AlertsAfterManualRun(t *testing.T) {
	f := newFixture(t)

	f.s.HandleCommand(context.Background(), "/signals")
	f.s.dailyTask()
	msgs := f.notifier.messages()
	require.Len(t, msgs, 1, "a manual look does not swallow the daily alert")
	assert.Contains(t, msgs[0], model.SignalSuggestBuy.Label())
}

func TestWeeklyTask_SendsOverviewAndHoldings(t *testing.T) {
	f := newFixture(t)

	f.s.weeklyTask()
	msgs := f.notifier.messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "日报")
	assert.Contains(t, msgs[2], "指数表现 (1y)")
}

func TestRegisterAll(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.RegisterAll("0 30 18 * * 1-5", "0 0 9 * * 6"))
	assert.Len(t, f.s.Cron.Entries(), 2)

	assert.Error(t, f.s.RegisterAll("not a cron", "0 0 9 * * 6"))
}

func TestHandleCommand_Trades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.s.HandleCommand(ctx, "/buy hs300 1.5 2")
	assert.Contains(t, reply, "已记录")
	assert.Contains(t, reply, "#1")

	l, err := f.s.Ledger.Ledger("hs300")
	require.NoError(t, err)
	require.Len(t, l.History, 1)
	tx := l.History[0]
	assert.Equal(t, today.Format(model.DateLayout), tx.Date.Format(model.DateLayout))
	require.NotNil(t, tx.PE)
	assert.Equal(t, 7.0, *tx.PE, "P/E is forward-filled from the last trading day")
	require.NotNil(t, tx.Close)
	assert.Equal(t, 3500.0, *tx.Close)
	assert.Equal(t, model.Holding{UnitsHeld: 2, TotalCost: 3}, l.Holdings)

	assert.Contains(t, f.s.HandleCommand(ctx, "/sell 沪深300 1.6 5"), "卖出份数超过当前持仓")
	assert.Contains(t, f.s.HandleCommand(ctx, "/sell hs300 -1"), "成交价必须为正数")
	assert.Contains(t, f.s.HandleCommand(ctx, "/buy hs300 abc"), "成交价无效")
	assert.Contains(t, f.s.HandleCommand(ctx, "/buy hs300 1 1 yesterday"), "日期无效")
	assert.Contains(t, f.s.HandleCommand(ctx, "/buy nope 1"), "nope")

	reply = f.s.HandleCommand(ctx, "/sell hs300 1.6 1 2025-06-15")
	assert.Contains(t, reply, "卖出")
	l, _ = f.s.Ledger.Ledger("hs300")
	require.Len(t, l.History, 2)
	assert.Equal(t, "2025-06-15", l.History[1].Date.Format(model.DateLayout))
	assert.Equal(t, 10.0, *l.History[1].PE)

	history := f.s.HandleCommand(ctx, "/history hs300")
	assert.Contains(t, history, "#1")
	assert.Contains(t, history, "#2")

	assert.Contains(t, f.s.HandleCommand(ctx, "/delete hs300 #2"), "已删除")
	assert.Contains(t, f.s.HandleCommand(ctx, "/delete hs300 2"), "找不到该记录")
	l, _ = f.s.Ledger.Ledger("hs300")
	assert.Equal(t, model.Holding{UnitsHeld: 2, TotalCost: 3}, l.Holdings)
}

func TestHandleCommand_Edit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := &captureRecorder{Recorder: f.s.Recorder}
	f.s.Recorder = rec

	f.s.HandleCommand(ctx, "/buy hs300 1.5 2")
	f.s.HandleCommand(ctx, "/sell hs300 1.6 1 2025-06-15")

	reply := f.s.HandleCommand(ctx, "/edit hs300 #1 1.4")
	assert.Contains(t, reply, "已修改")
	assert.Contains(t, reply, "#1")
	l, err := f.s.Ledger.Ledger("hs300")
	require.NoError(t, err)
	require.Len(t, l.History, 2)
	assert.Equal(t, model.Buy, l.History[0].Type, "the type is kept")
	assert.Equal(t, 2.0, l.History[0].Unit, "the unit defaults to the stored one")
	assert.Equal(t, 7.0, *l.History[0].PE)
	assert.InDelta(t, 1, l.Holdings.UnitsHeld, 1e-9)
	assert.InDelta(t, 1.4, l.Holdings.TotalCost, 1e-9)

	assert.Contains(t, f.s.HandleCommand(ctx, "/edit hs300 1 1.4 0.5"), "卖出份数超过当前持仓",
		"shrinking the buy would leave the later sell uncovered")
	assert.Contains(t, f.s.HandleCommand(ctx, "/edit hs300 9 1"), "找不到该记录")
	assert.Contains(t, f.s.HandleCommand(ctx, "/edit hs300 x 1"), "记录号无效")
	assert.Contains(t, f.s.HandleCommand(ctx, "/edit hs300 1"), "用法")

	reply = f.s.HandleCommand(ctx, "/edit hs300 2 1.7 1 2025-06-16")
	assert.Contains(t, reply, "2025-06-16")
	l, _ = f.s.Ledger.Ledger("hs300")
	assert.Equal(t, model.Sell, l.History[1].Type)
	assert.Equal(t, 1.7, l.History[1].Price)
	require.NotNil(t, l.History[1].PE, "P/E is looked up again for the new date")

	assert.Equal(t, []recorder.LedgerAction{
		recorder.ActionAppend, recorder.ActionAppend, recorder.ActionEdit, recorder.ActionEdit,
	}, rec.actions(), "rejected edits leave no trace")
}

func TestHandleCommand_CooldownAfterBuy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.s.HandleCommand(ctx, "/buy hs300 1.5")
	res, err := f.s.Evaluate(ctx, model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.SignalSuppressedByCooldown, signals(res)["hs300"])

	decisionLog := f.s.HandleCommand(ctx, "/log hs300")
	assert.Contains(t, decisionLog, "时间/波动率限制生效")
}

func TestHandleCommand_Params(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.s.HandleCommand(ctx, "/params"), "step_percent: 0.06")

	reply := f.s.HandleCommand(ctx, "/set step_percent 0.1")
	assert.Contains(t, reply, "已更新")
	assert.Equal(t, 0.1, f.s.Params().StepPercent)

	assert.Contains(t, f.s.HandleCommand(ctx, "/set step_percent 2"), "step_percent")
	assert.Equal(t, 0.1, f.s.Params().StepPercent, "invalid values are not applied")

	assert.Contains(t, f.s.HandleCommand(ctx, "/set min_interval_days 1.5"), "需要整数")
	assert.Equal(t, 30, f.s.Params().MinIntervalDays, "fractional days are rejected, not truncated")
	assert.Contains(t, f.s.HandleCommand(ctx, "/set min_interval_days 20"), "min_interval_days: 20")
	assert.Equal(t, 20, f.s.Params().MinIntervalDays)

	assert.Contains(t, f.s.HandleCommand(ctx, "/set bogus 1"), "未知参数")
	assert.Contains(t, f.s.HandleCommand(ctx, "/set step_percent"), "用法")
}

func TestHandleCommand_Overview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.s.HandleCommand(ctx, "/signals"), "日报")
	assert.Contains(t, f.s.HandleCommand(ctx, "/holdings"), "当前无持仓")
	f.s.HandleCommand(ctx, "/buy hs300 1.5")
	assert.Contains(t, f.s.HandleCommand(ctx, "/holdings"), "沪深300")
	assert.Equal(t, "无需补录", f.s.HandleCommand(ctx, "/backfill"))
	assert.Equal(t, helpText, f.s.HandleCommand(ctx, "/what"))
	assert.Equal(t, helpText, f.s.HandleCommand(ctx, "  "))
}

func TestHandleCommand_Performance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.s.HandleCommand(ctx, "/perf")
	assert.Contains(t, reply, "指数表现 (1y)")
	assert.Contains(t, reply, "累计 -12.5%")
	assert.Contains(t, reply, "最大回撤 -12.5%")
	assert.Contains(t, reply, "创业板</b>: 数据不足")

	assert.Contains(t, f.s.HandleCommand(ctx, "/perf YTD"), "指数表现 (ytd)")
	assert.Contains(t, f.s.HandleCommand(ctx, "/perf 2w"), "未知区间")
}

func TestHandleCommand_Backtest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.s.HandleCommand(ctx, "/backtest hs300")
	assert.Contains(t, reply, "沪深300 策略回测")
	assert.Contains(t, reply, "每 30 个交易日检查")

	assert.Contains(t, f.s.HandleCommand(ctx, "/backtest hs300 0.1 0.9"), "分位点 ≤ 10.0%")
	assert.Contains(t, f.s.HandleCommand(ctx, "/backtest hs300 0.9 0.1"), "分位需满足")
	assert.Contains(t, f.s.HandleCommand(ctx, "/backtest hs300 low"), "分位无效")
	assert.Contains(t, f.s.HandleCommand(ctx, "/backtest cyb"), "❌")
	assert.Contains(t, f.s.HandleCommand(ctx, "/backtest"), "用法")
}

// Replies are rendered as Telegram HTML: only <b> markup may reach the client.
func TestHandleCommand_RepliesAreHTMLSafe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.s.HandleCommand(ctx, "/buy hs300 1.5 2")

	markup := strings.NewReplacer("<b>", "", "</b>", "")
	for _, cmd := range []string{
		"/what",
		"/signals",
		"/holdings",
		"/params",
		"/perf",
		"/perf <1y>",
		"/log hs300",
		"/log <script>",
		"/history hs300",
		"/history <script>",
		"/buy",
		"/buy <script> 1",
		"/buy hs300",
		"/buy hs300 <1>",
		"/sell hs300 1 <2>",
		"/sell hs300 1 1 <d>",
		"/sell hs300 1 99",
		"/edit hs300",
		"/edit hs300 <1> 1",
		"/edit hs300 1 <1>",
		"/delete hs300",
		"/delete hs300 <i>",
		"/set",
		"/set <x> 1",
		"/set step_percent <1>",
		"/set min_interval_days <1>",
		"/set step_percent 2",
		"/backtest",
		"/backtest <hs300>",
		"/backtest hs300",
		"/backtest hs300 <0.2>",
	} {
		reply := f.s.HandleCommand(ctx, cmd)
		assert.NotContains(t, markup.Replace(reply), "<", cmd)
	}
}
