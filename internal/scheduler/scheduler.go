package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"ValuationSentinel/internal/collector"
	"ValuationSentinel/internal/ledger"
	"ValuationSentinel/internal/model"
	"ValuationSentinel/internal/notifier"
	"ValuationSentinel/internal/portfolio"
	"ValuationSentinel/internal/recorder"
	"ValuationSentinel/internal/valuation"
)

// Options configures what the scheduler evaluates and how it reports.
type Options struct {
	Indices   []model.Index
	Benchmark string
	Title     string
	Strategy  model.StrategyParams
	Location  *time.Location
}

// Scheduler manages all cron tasks and user commands.
type Scheduler struct {
	Cron      *cron.Cron
	Collector *collector.Collector
	Ledger    *ledger.Manager
	Notifier  notifier.Notifier
	Recorder  recorder.Recorder
	Ctx       context.Context

	opts Options
	log  zerolog.Logger
	now  func() time.Time

	mu     sync.RWMutex
	params model.StrategyParams
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, col *collector.Collector, lm *ledger.Manager, n notifier.Notifier, rec recorder.Recorder, opts Options, log zerolog.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds(), cron.WithLocation(opts.Location)),
		Collector: col,
		Ledger:    lm,
		Notifier:  n,
		Recorder:  rec,
		Ctx:       ctx,
		opts:      opts,
		log:       log.With().Str("component", "scheduler").Logger(),
		now:       time.Now,
		params:    opts.Strategy,
	}
}

// RegisterAll registers the daily evaluation and the weekly report.
func (s *Scheduler) RegisterAll(dailyCron, weeklyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	if _, err := s.Cron.AddFunc(weeklyCron, s.weeklyTask); err != nil {
		return fmt.Errorf("register weekly task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// Params returns the strategy parameters currently in effect.
func (s *Scheduler) Params() model.StrategyParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// SetParams replaces the strategy parameters for subsequent evaluations.
func (s *Scheduler) SetParams(p model.StrategyParams) {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
}

// RunDailyNow executes the daily task immediately (RUN_ON_START).
func (s *Scheduler) RunDailyNow() {
	s.dailyTask()
}

// Result is the outcome of one evaluation run.
type Result struct {
	RunID   string
	Rows    []portfolio.Row
	Series  map[string]*model.Series
	Overall float64
	// Changed holds the rows whose signal differs from the one recorded by the
	// last daily run, which is what alerts were sent against.
	Changed  []portfolio.Row
	Previous map[string]model.Signal
}

// Evaluate loads every series, backfills the ledger, evaluates all indices and
// records the outcome.
func (s *Scheduler) Evaluate(ctx context.Context, trigger model.TriggerType) (*Result, error) {
	series, err := s.Collector.CollectAll(ctx, s.opts.Indices)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	if _, err := s.backfill(series); err != nil {
		s.log.Error().Err(err).Msg("ledger backfill")
	}

	today := s.today()
	rows := portfolio.BuildAll(s.opts.Indices, series, s.Ledger.Snapshot(), s.Params(), today)
	res := &Result{
		RunID:    recorder.NewRunID(),
		Rows:     rows,
		Series:   series,
		Overall:  s.overall(series),
		Previous: make(map[string]model.Signal),
	}

	for _, r := range rows {
		prev, ok, err := s.Recorder.LastSignal(r.Index.Code, model.TriggerDaily)
		if err != nil {
			s.log.Error().Err(err).Str("index", r.Index.Code).Msg("read last signal")
		}
		if ok {
			res.Previous[r.Index.Code] = prev
		}
		if r.Available && prev != r.Decision.Signal {
			res.Changed = append(res.Changed, r)
		}
		if err := s.Recorder.RecordEvaluation(evaluationOf(res.RunID, trigger, r)); err != nil {
			s.log.Error().Err(err).Str("index", r.Index.Code).Msg("record evaluation")
		}
	}

	s.log.Info().
		Str("run_id", res.RunID).
		Str("trigger", string(trigger)).
		Int("indices", len(rows)).
		Int("loaded", len(series)).
		Int("changed", len(res.Changed)).
		Msg("evaluation finished")
	return res, nil
}

func (s *Scheduler) dailyTask() {
	s.log.Info().Msg("running daily evaluation")
	res, err := s.Evaluate(s.Ctx, model.TriggerDaily)
	if err != nil {
		s.log.Error().Err(err).Msg("daily evaluation")
		s.trySend(failure("每日评估失败: " + err.Error()))
		return
	}
	for _, r := range res.Changed {
		if r.Decision.Signal.IsBuy() || r.Decision.Signal.IsSell() {
			s.trySend(notifier.FormatSignalChange(r, res.Previous[r.Index.Code]))
		}
	}
}

// weeklyPeriod is the performance window appended to the weekly report.
const weeklyPeriod = "1y"

func (s *Scheduler) weeklyTask() {
	s.log.Info().Msg("running weekly report")
	res, err := s.Evaluate(s.Ctx, model.TriggerWeekly)
	if err != nil {
		s.log.Error().Err(err).Msg("weekly evaluation")
		s.trySend(failure("周报生成失败: " + err.Error()))
		return
	}
	s.trySend(notifier.FormatOverview(s.opts.Title, res.Rows, res.Overall, s.now().In(s.opts.Location)))
	s.trySend(notifier.FormatHoldings(res.Rows))

	perfs, err := portfolio.MeasureAll(s.opts.Indices, res.Series, weeklyPeriod)
	if err != nil {
		s.log.Error().Err(err).Msg("weekly performance")
		return
	}
	s.trySend(notifier.FormatPerformance(weeklyPeriod, perfs))
}

func (s *Scheduler) backfill(series map[string]*model.Series) (int, error) {
	n, err := s.Ledger.Backfill(series)
	if err != nil || n == 0 {
		return n, err
	}
	if err := s.Recorder.RecordLedgerEvent(&recorder.LedgerEvent{
		Action: recorder.ActionBackfill,
		Note:   fmt.Sprintf("%d records", n),
	}); err != nil {
		s.log.Error().Err(err).Msg("record backfill")
	}
	return n, nil
}

func (s *Scheduler) overall(series map[string]*model.Series) float64 {
	snap, ok := valuation.Latest(series[s.opts.Benchmark])
	if !ok {
		return math.NaN()
	}
	return portfolio.OverallPosition(snap)
}

func (s *Scheduler) today() time.Time {
	return s.now().In(s.opts.Location)
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.Send(s.Ctx, text); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}

func evaluationOf(runID string, trigger model.TriggerType, r portfolio.Row) *recorder.Evaluation {
	return &recorder.Evaluation{
		RunID:      runID,
		Trigger:    trigger,
		Code:       r.Index.Code,
		DataDate:   r.Snapshot.Date,
		PE:         valueOr(r.Available, r.Snapshot.PE),
		Percentile: valueOr(r.Available, r.Snapshot.Percentile),
		Avg3Y:      valueOr(r.Available, r.Snapshot.Avg3Y),
		Avg5Y:      valueOr(r.Available, r.Snapshot.Avg5Y),
		Deviation:  r.Deviation,
		Signal:     r.Decision.Signal,
		Log:        r.Decision.Log,
		UnitsHeld:  r.Holding.UnitsHeld,
		TotalCost:  r.Holding.TotalCost,
		PLPct:      r.PL.PLPct,
	}
}

func valueOr(ok bool, v float64) float64 {
	if !ok {
		return math.NaN()
	}
	return v
}
