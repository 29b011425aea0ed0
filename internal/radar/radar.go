// Package radar ties market data collection, the scan pipeline and the scan
// journal together for the bot and the HTTP API.
package radar

import (
	"context"
	"fmt"
	"time"

	"CDPRadar/internal/calculator"
	"CDPRadar/internal/collector"
	"CDPRadar/internal/logger"
	"CDPRadar/internal/metrics"
	"CDPRadar/internal/model"
	"CDPRadar/internal/recorder"
	"CDPRadar/internal/scan"

	"github.com/google/uuid"
)

// Scan triggers, as stored in the journal.
const (
	TriggerCron    = "cron"
	TriggerCommand = "command"
	TriggerAPI     = "api"
	TriggerStartup = "startup"
)

// Run is one finished scan.
type Run struct {
	ID        string              `json:"run_id"`
	StartedAt time.Time           `json:"started_at"`
	Criterion model.ScanCriterion `json:"criterion"`
	Report    *scan.Report        `json:"report"`
}

// Radar runs scans over a watchlist and serves single-symbol pivots.
type Radar struct {
	Collector *collector.Collector
	Watchlist model.Watchlist
	Recorder  recorder.Recorder
	Metrics   *metrics.Recorder // optional
	Log       *logger.Logger
	Now       func() time.Time
}

// New creates a Radar. A nil recorder falls back to the no-op journal.
func New(col *collector.Collector, watchlist model.Watchlist, rec recorder.Recorder, m *metrics.Recorder, log *logger.Logger) *Radar {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Radar{
		Collector: col,
		Watchlist: watchlist,
		Recorder:  rec,
		Metrics:   m,
		Log:       log,
		Now:       time.Now,
	}
}

// Scan collects the watchlist, runs p over it and journals the result.
// Upstream failures show up as skipped instruments, never as an error.
func (r *Radar) Scan(ctx context.Context, p *scan.Pipeline, trigger string) *Run {
	start := time.Now()
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: r.Now(),
		Criterion: p.Criterion,
	}
	log := r.Log.With(logger.String("run_id", run.ID), logger.String("trigger", trigger))

	ids := r.Watchlist.IDs()
	bars := r.Collector.CollectBars(ctx, ids)
	run.Report = p.Run(ids, bars, r.Watchlist.Names())

	counts := run.Report.SkipCounts()
	if r.Metrics != nil {
		skipped := make(map[string]int, len(counts))
		for reason, n := range counts {
			skipped[string(reason)] = n
		}
		r.Metrics.RecordScan(len(run.Report.Results), skipped)
		r.Metrics.ObserveDuration("scan", start)
	}

	if err := r.Recorder.RecordScan(&recorder.ScanSnapshot{
		RunID:     run.ID,
		StartedAt: run.StartedAt,
		Provider:  r.Collector.Fetcher.Name(),
		Basis:     r.Collector.Basis.Name(),
		Trigger:   trigger,
		Criterion: run.Criterion,
		Report:    run.Report,
	}); err != nil {
		log.Error("record scan", logger.Error(err))
	}

	log.Info("scan finished",
		logger.Int("evaluated", run.Report.Evaluated),
		logger.Int("results", len(run.Report.Results)),
		logger.Int("skipped", len(run.Report.Skipped)),
		logger.Int("filtered", counts[scan.SkipFiltered]),
		logger.Duration("took", time.Since(start)))
	return run
}

// Pivots fetches symbol's basis bar and computes its next-session levels.
// The returned name is empty when symbol is not on the watchlist.
func (r *Radar) Pivots(ctx context.Context, symbol string) (string, model.OHLCV, model.PivotLevels, error) {
	bar, err := r.Collector.CollectBar(ctx, symbol)
	if err != nil {
		return "", model.OHLCV{}, model.PivotLevels{}, err
	}
	levels, err := calculator.CalculateCDPFromBar(bar)
	if err != nil {
		return "", bar, model.PivotLevels{}, fmt.Errorf("%s: %w", symbol, err)
	}
	return r.Watchlist.Names()[symbol], bar, levels, nil
}
