package collector

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"CDPRadar/internal/model"
)

// MockFetcher is a synthetic data provider for demos and tests. Bars are
// generated from a per-symbol seed, so the same symbol always yields the same
// series. Nothing it returns is real market data.
type MockFetcher struct {
	// DailyData, when set, is returned verbatim for the matching symbol.
	DailyData map[string][]model.OHLCV
	// Errors forces a fetch failure for the matching symbol.
	Errors map[string]error
	Now    func() time.Time
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyBars(_ context.Context, symbol string, days int) ([]model.OHLCV, error) {
	if err, ok := m.Errors[symbol]; ok {
		return nil, err
	}
	if bars, ok := m.DailyData[symbol]; ok {
		return trimBars(bars, days), nil
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return generateMockBars(symbol, days, now()), nil
}

func generateMockBars(symbol string, count int, end time.Time) []model.OHLCV {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	price := 50 + rng.Float64()*750
	bars := make([]model.OHLCV, count)
	day := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, taipeiZone)
	for i := count - 1; i >= 0; i-- {
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, -1)
		}
		// walk backwards: this bar closes where the next one opened
		close := price
		open := close / (1 + (rng.Float64()-0.45)*0.08)
		high := math.Max(open, close) * (1 + rng.Float64()*0.02)
		low := math.Min(open, close) * (1 - rng.Float64()*0.02)
		bars[i] = model.OHLCV{
			Time:   day,
			Open:   tick(open),
			High:   tick(high),
			Low:    tick(low),
			Close:  tick(close),
			Volume: int64(2000+rng.Intn(48000)) * 1000,
		}
		price = open
		day = day.AddDate(0, 0, -1)
	}
	return bars
}

// tick rounds to the 0.05 grid used for most TWSE price bands.
func tick(p float64) float64 {
	return math.Round(p*20) / 20
}
