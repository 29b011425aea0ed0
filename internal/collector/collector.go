package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CDPRadar/internal/cache"
	"CDPRadar/internal/logger"
	"CDPRadar/internal/metrics"
	"CDPRadar/internal/model"
	"CDPRadar/internal/scan"

	"golang.org/x/sync/errgroup"
)

// Collector fetches bars for many symbols and picks each symbol's pivot basis.
type Collector struct {
	Fetcher     Fetcher
	Basis       scan.BasisSelector
	Cache       cache.Service // optional
	CacheTTL    time.Duration
	Lookback    int
	Concurrency int
	Log         *logger.Logger
	Metrics     *metrics.Recorder // optional
	Now         func() time.Time
}

// NewCollector creates a Collector with a bounded fan-out of concurrency.
func NewCollector(fetcher Fetcher, basis scan.BasisSelector, lookback, concurrency int, log *logger.Logger) *Collector {
	if basis == nil {
		basis = scan.LatestBar{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{
		Fetcher:     fetcher,
		Basis:       basis,
		Lookback:    lookback,
		Concurrency: concurrency,
		Log:         log,
		Now:         time.Now,
	}
}

// CollectBars returns the basis bar of every symbol that could be fetched.
// Failed or empty symbols are simply absent from the map.
func (c *Collector) CollectBars(ctx context.Context, symbols []string) map[string]model.OHLCV {
	start := time.Now()
	out := make(map[string]model.OHLCV, len(symbols))
	var mu sync.Mutex

	limit := c.Concurrency
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			bar, err := c.CollectBar(ctx, sym)
			if err != nil {
				c.Log.Warn("skip symbol", logger.String("symbol", sym), logger.Error(err))
				return nil
			}
			mu.Lock()
			out[sym] = bar
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if c.Metrics != nil {
		c.Metrics.ObserveDuration("collect", start)
	}
	c.Log.Debug("collected bars",
		logger.Int("requested", len(symbols)),
		logger.Int("collected", len(out)),
		logger.Duration("took", time.Since(start)))
	return out
}

// CollectBar fetches one symbol's series and applies the basis selector.
func (c *Collector) CollectBar(ctx context.Context, symbol string) (model.OHLCV, error) {
	bars, err := c.bars(ctx, symbol)
	if err != nil {
		return model.OHLCV{}, err
	}
	bar, ok := c.Basis.Select(bars, c.Now())
	if !ok {
		return model.OHLCV{}, fmt.Errorf("%s: %w for basis %q", symbol, ErrNoData, c.Basis.Name())
	}
	return bar, nil
}

func (c *Collector) bars(ctx context.Context, symbol string) ([]model.OHLCV, error) {
	key := fmt.Sprintf("bars:%s:%s:%d", c.Fetcher.Name(), symbol, c.Lookback)
	if c.Cache != nil {
		var cached []model.OHLCV
		err := c.Cache.Get(ctx, key, &cached)
		if err == nil && len(cached) > 0 {
			return cached, nil
		}
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.Log.Warn("cache read failed", logger.String("key", key), logger.Error(err))
		}
	}

	bars, err := c.Fetcher.FetchDailyBars(ctx, symbol, c.Lookback)
	if err != nil {
		if c.Metrics != nil {
			c.Metrics.RecordFetchError(c.Fetcher.Name())
		}
		return nil, fmt.Errorf("fetch daily bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}

	if c.Cache != nil {
		if err := c.Cache.Set(ctx, key, bars, c.CacheTTL); err != nil {
			c.Log.Warn("cache write failed", logger.String("key", key), logger.Error(err))
		}
	}
	return bars, nil
}
