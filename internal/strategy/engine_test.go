package strategy

import (
	"math"
	"strings"
	"testing"
	"time"

	"ValuationSentinel/internal/model"
)

var today = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

func snap(pe, pct, avg3, avg5 float64) model.Snapshot {
	return model.Snapshot{Date: today, PE: pe, Percentile: pct, Close: 4000, Avg3Y: avg3, Avg5Y: avg5, Avg10Y: math.NaN()}
}

func tx(typ model.TxType, daysAgo int, pe float64) model.Transaction {
	return model.Transaction{
		ID:    1,
		Date:  today.AddDate(0, 0, -daysAgo),
		Type:  typ,
		Unit:  1,
		Price: 1,
		PE:    model.Float(pe),
	}
}

func held(units float64) model.Holding {
	return model.Holding{UnitsHeld: units, TotalCost: units}
}

func TestEvaluate_Ladder(t *testing.T) {
	params := model.DefaultStrategyParams()
	tests := []struct {
		name    string
		snap    model.Snapshot
		holding model.Holding
		history []model.Transaction
		want    model.Signal
	}{
		{"no 3y mean", snap(10, 0.1, math.NaN(), math.NaN()), held(0), nil, model.SignalInsufficientHistory},
		{"zero 3y mean", snap(10, 0.1, 0, 0), held(0), nil, model.SignalInsufficientHistory},
		{"neutral", snap(12, 0.5, 12, 11), held(0), nil, model.SignalNeutral},
		{"sell by percentile", snap(12, 0.8, 12, 12), held(1), nil, model.SignalSuggestSell},
		{"sell by deviation", snap(16, 0.5, 12, 12), held(1), nil, model.SignalSuggestSell},
		{"sell without holding", snap(16, 0.5, 12, 12), held(0), nil, model.SignalSuggestSellNoHolding},
		{"buy by percentile", snap(12, 0.1, 12, 12), held(0), nil, model.SignalSuggestBuy},
		{"buy below both means", snap(10, 0.5, 12, 11), held(0), nil, model.SignalSuggestBuy},
		{"below 3y only is neutral", snap(11.5, 0.5, 12, 11), held(0), nil, model.SignalNeutral},
		{"buy at cap", snap(10, 0.1, 12, 12), held(10), nil, model.SignalSuggestBuyAtCap},
		{"sell beats buy", snap(10, 0.8, 12, 12), held(1), nil, model.SignalSuggestSell},
		{"insufficient beats cooldown", snap(10, 0.1, math.NaN(), 12), held(1), []model.Transaction{tx(model.Buy, 1, 10)}, model.SignalInsufficientHistory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.snap, tt.holding, tt.history, params, today)
			if d.Signal != tt.want {
				t.Errorf("expected %s, got %s\n%s", tt.want, d.Signal, strings.Join(d.Log, "\n"))
			}
			if len(d.Log) == 0 {
				t.Error("expected a decision log")
			}
		})
	}
}

func TestEvaluate_Cooldown(t *testing.T) {
	params := model.DefaultStrategyParams()
	s := snap(16, 0.9, 12, 12)

	// 10 days after an operation at PE 15: +6.7% is within the ±12% band
	d := Evaluate(s, held(1), []model.Transaction{tx(model.Buy, 10, 15)}, params, today)
	if d.Signal != model.SignalSuppressedByCooldown {
		t.Fatalf("expected cooldown, got %s", d.Signal)
	}

	// same timing but PE moved from 14 to 16 (+14.3%): volatility overrides the time gate
	d = Evaluate(s, held(1), []model.Transaction{tx(model.Buy, 10, 14)}, params, today)
	if d.Signal != model.SignalSuggestSell {
		t.Fatalf("expected override to reach sell, got %s", d.Signal)
	}

	// exactly min interval days ago: the gate is open
	d = Evaluate(s, held(1), []model.Transaction{tx(model.Buy, params.MinIntervalDays, 15)}, params, today)
	if d.Signal != model.SignalSuggestSell {
		t.Fatalf("expected sell after the interval, got %s", d.Signal)
	}

	// last entry without PE disables the gate even if an earlier one has it
	unknown := tx(model.Sell, 2, 0)
	unknown.PE = nil
	d = Evaluate(s, held(1), []model.Transaction{tx(model.Buy, 5, 15), unknown}, params, today)
	if d.Signal != model.SignalSuggestSell {
		t.Fatalf("expected sell when last entry has no PE, got %s", d.Signal)
	}
}

func TestEvaluate_StepBuy(t *testing.T) {
	params := model.DefaultStrategyParams()
	history := []model.Transaction{tx(model.Buy, 60, 10), tx(model.Sell, 45, 13)}

	tests := []struct {
		pe   float64
		want model.Signal
	}{
		{9.5, model.SignalSuppressedByStepBuy},
		{9.39, model.SignalSuggestBuy}, // threshold is 10 * (1 - 0.06)
		{9.0, model.SignalSuggestBuy},
	}
	for _, tt := range tests {
		d := Evaluate(snap(tt.pe, 0.1, 12, 12), held(1), history, params, today)
		if d.Signal != tt.want {
			t.Errorf("pe %.2f: expected %s, got %s", tt.pe, tt.want, d.Signal)
		}
	}

	// no open position: the step gate does not apply
	d := Evaluate(snap(9.9, 0.1, 12, 12), held(0), history, params, today)
	if d.Signal != model.SignalSuggestBuy {
		t.Errorf("expected buy without a position, got %s", d.Signal)
	}

	// the most recent buy with a known PE is the reference
	noPE := tx(model.Buy, 40, 0)
	noPE.PE = nil
	d = Evaluate(snap(9.5, 0.1, 12, 12), held(2), append(history, noPE), params, today)
	if d.Signal != model.SignalSuppressedByStepBuy {
		t.Errorf("expected step gate against the last known buy PE, got %s", d.Signal)
	}
}

func TestEvaluate_CustomParams(t *testing.T) {
	params := model.DefaultStrategyParams()
	params.MaxUnits = 2
	params.StepPercent = 0.2

	d := Evaluate(snap(8, 0.1, 12, 12), held(2), []model.Transaction{tx(model.Buy, 90, 10)}, params, today)
	if d.Signal != model.SignalSuggestBuyAtCap {
		t.Errorf("expected buy at cap, got %s", d.Signal)
	}

	d = Evaluate(snap(8.5, 0.1, 12, 12), held(1), []model.Transaction{tx(model.Buy, 90, 10)}, params, today)
	if d.Signal != model.SignalSuppressedByStepBuy {
		t.Errorf("expected 20%% step to suppress, got %s", d.Signal)
	}
}

func TestEvaluate_LogExplainsSteps(t *testing.T) {
	d := Evaluate(snap(10, 0.1, 12, 12), held(0), nil, model.DefaultStrategyParams(), today)
	log := strings.Join(d.Log, "\n")
	for _, want := range []string{"无上次操作记录", "策略评估", "买入条件满足", "建议买入"} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %q:\n%s", want, log)
		}
	}
}

func TestDaysSince(t *testing.T) {
	from := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)
	if got := DaysSince(from, time.Date(2025, 3, 31, 1, 0, 0, 0, time.UTC)); got != 30 {
		t.Errorf("expected 30 days, got %d", got)
	}
	if got := DaysSince(from, from); got != 0 {
		t.Errorf("expected 0 days, got %d", got)
	}
}
