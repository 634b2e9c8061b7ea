package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ValuationSentinel/internal/apperrors"
	"ValuationSentinel/internal/model"
	"ValuationSentinel/internal/valuation"
)

// MockFetcher returns fixed tables for development and testing.
type MockFetcher struct {
	mu     sync.Mutex
	Tables map[string]*valuation.RawTable
	Errs   map[string]error
	Calls  map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchTable(_ context.Context, prefix string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[prefix]++
	if err := m.Errs[prefix]; err != nil {
		return nil, err
	}
	raw, ok := m.Tables[prefix]
	if !ok {
		return nil, fmt.Errorf("%s: %w", prefix, apperrors.ErrNoDataFile)
	}
	return &Table{Raw: raw, Source: prefix + ".mock", ModifiedAt: time.Now()}, nil
}

// CallCount returns how often prefix was fetched.
func (m *MockFetcher) CallCount(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[prefix]
}

type cacheEntry struct {
	series  *model.Series
	source  string
	fetched time.Time
}

// Collector turns raw tables into normalized series and memoizes them for TTL.
// The cache is an optimization only; Invalidate forces a reload.
type Collector struct {
	Fetcher     Fetcher
	TTL         time.Duration
	Concurrency int

	log   zerolog.Logger
	now   func() time.Time
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, ttl time.Duration, log zerolog.Logger) *Collector {
	return &Collector{
		Fetcher:     fetcher,
		TTL:         ttl,
		Concurrency: 4,
		log:         log.With().Str("component", "collector").Logger(),
		now:         time.Now,
		cache:       make(map[string]cacheEntry),
	}
}

// Collect returns the valuation series of one index.
// A missing file or a table with no usable rows yields ErrDataUnavailable.
func (c *Collector) Collect(ctx context.Context, idx model.Index) (*model.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s, ok := c.cached(idx.Code); ok {
		return s, nil
	}

	prefix := idx.Prefix
	if prefix == "" {
		prefix = idx.Code
	}
	table, err := c.Fetcher.FetchTable(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", idx.Code, apperrors.ErrDataUnavailable, err)
	}
	series := valuation.Load(idx.Code, table.Raw)
	if series == nil {
		return nil, fmt.Errorf("load %s from %s: %w", idx.Code, table.Source, apperrors.ErrDataUnavailable)
	}

	c.mu.Lock()
	c.cache[idx.Code] = cacheEntry{series: series, source: table.Source, fetched: c.now()}
	c.mu.Unlock()

	c.log.Debug().
		Str("index", idx.Code).
		Str("source", table.Source).
		Int("rows", series.Len()).
		Msg("valuation series loaded")
	return series, nil
}

// CollectAll loads every index concurrently. Indices without data are logged and
// left out of the result; only context cancellation fails the whole call.
func (c *Collector) CollectAll(ctx context.Context, indices []model.Index) (map[string]*model.Series, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]*model.Series, len(indices))
	)
	g, gctx := errgroup.WithContext(ctx)
	if c.Concurrency > 0 {
		g.SetLimit(c.Concurrency)
	}
	for _, idx := range indices {
		g.Go(func() error {
			s, err := c.Collect(gctx, idx)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.Warn().Err(err).Str("index", idx.Code).Msg("valuation data unavailable")
				return nil
			}
			mu.Lock()
			out[idx.Code] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Source returns the file name the cached series of code was loaded from.
func (c *Collector) Source(code string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache[code].source
}

// Invalidate drops every cached series.
func (c *Collector) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *Collector) cached(code string) (*model.Series, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[code]
	if !ok || c.TTL <= 0 || c.now().Sub(e.fetched) >= c.TTL {
		return nil, false
	}
	return e.series, true
}
