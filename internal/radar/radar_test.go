package radar

import (
	"context"
	"errors"
	"testing"
	"time"

	"CDPRadar/internal/calculator"
	"CDPRadar/internal/collector"
	"CDPRadar/internal/metrics"
	"CDPRadar/internal/model"
	"CDPRadar/internal/recorder"
	"CDPRadar/internal/scan"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type memRecorder struct {
	snaps []*recorder.ScanSnapshot
	err   error
}

func (m *memRecorder) RecordScan(s *recorder.ScanSnapshot) error {
	m.snaps = append(m.snaps, s)
	return m.err
}

func (m *memRecorder) Close() error { return nil }

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func newTestRadar(rec recorder.Recorder, m *metrics.Recorder) *Radar {
	mock := &collector.MockFetcher{
		DailyData: map[string][]model.OHLCV{
			"2603": {{Time: day(3), Open: 190, High: 203, Low: 189, Close: 202, Volume: 30_000_000}},
			"3231": {{Time: day(3), Open: 100, High: 104, Low: 99, Close: 103, Volume: 8_000_000}},
			"2330": {{Time: day(3), Open: 590, High: 593, Low: 578, Close: 580, Volume: 26_000_000}},
			"0000": {{Time: day(3), Open: 0, High: 10, Low: 0, Close: 5, Volume: 1}},
		},
		Errors: map[string]error{"9999": errors.New("boom")},
	}
	col := collector.NewCollector(mock, scan.LatestBar{}, 5, 2, nil)
	col.Metrics = m
	wl := model.Watchlist{
		{ID: "2330", Name: "台積電"},
		{ID: "2603", Name: "長榮"},
		{ID: "3231", Name: "緯創"},
		{ID: "0000", Name: "零"},
		{ID: "9999", Name: "下市"},
	}
	return New(col, wl, rec, m, nil)
}

func TestScan_RanksAndJournals(t *testing.T) {
	rec := &memRecorder{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := newTestRadar(rec, m)

	run := r.Scan(context.Background(), scan.NewPipeline(model.ScanCriterion{MinChangePercent: 1}, 10), TriggerCron)

	if run.ID == "" {
		t.Error("expected run id")
	}
	rep := run.Report
	if rep.Evaluated != 5 {
		t.Errorf("expected 5 evaluated, got %d", rep.Evaluated)
	}
	if len(rep.Results) != 2 || rep.Results[0].InstrumentID != "2603" || rep.Results[1].InstrumentID != "3231" {
		t.Fatalf("unexpected ranking: %+v", rep.Results)
	}
	if rep.Results[0].Name != "長榮" {
		t.Errorf("expected name from watchlist, got %q", rep.Results[0].Name)
	}

	counts := rep.SkipCounts()
	if counts[scan.SkipFiltered] != 1 || counts[scan.SkipDivisionGuard] != 1 || counts[scan.SkipMissingData] != 1 {
		t.Errorf("unexpected skip counts: %v", counts)
	}

	if len(rec.snaps) != 1 {
		t.Fatalf("expected 1 journaled scan, got %d", len(rec.snaps))
	}
	snap := rec.snaps[0]
	if snap.RunID != run.ID || snap.Trigger != TriggerCron || snap.Provider != "mock" || snap.Basis != "latest" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	if n, err := testutil.GatherAndCount(reg, "cdpradar_scans_total", "cdpradar_scan_skipped_total"); err != nil || n != 4 {
		t.Errorf("expected 4 scan series, got %d (%v)", n, err)
	}
}

func TestScan_JournalFailureIsNotFatal(t *testing.T) {
	r := newTestRadar(&memRecorder{err: errors.New("disk full")}, nil)
	run := r.Scan(context.Background(), scan.NewPipeline(model.ScanCriterion{}, 0), TriggerAPI)
	if run.Report == nil || len(run.Report.Results) == 0 {
		t.Error("expected report despite journal failure")
	}
}

func TestPivots(t *testing.T) {
	r := newTestRadar(nil, nil)

	name, bar, levels, err := r.Pivots(context.Background(), "2603")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "長榮" || bar.Close != 202 {
		t.Errorf("unexpected name/bar: %s %+v", name, bar)
	}
	want, _ := calculator.CalculateCDP(203, 189, 202)
	if levels != want {
		t.Errorf("expected %+v, got %+v", want, levels)
	}

	if _, _, _, err := r.Pivots(context.Background(), "9999"); err == nil {
		t.Error("expected error for failing symbol")
	}
}
