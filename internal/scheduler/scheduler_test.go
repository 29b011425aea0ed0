package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"CDPRadar/internal/collector"
	"CDPRadar/internal/model"
	"CDPRadar/internal/radar"
	"CDPRadar/internal/scan"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) SendWithRetry(_ context.Context, text string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

// gatedSender blocks every send until release is closed.
type gatedSender struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSender) SendWithRetry(_ context.Context, _ string, _ int) error {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return nil
}

func newTestScheduler(sender Sender) *Scheduler {
	d := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	mock := &collector.MockFetcher{
		DailyData: map[string][]model.OHLCV{
			"2330": {{Time: d, Open: 580, High: 593, Low: 578, Close: 590, Volume: 26_000_000}},
			"2603": {{Time: d, Open: 190, High: 203, Low: 189, Close: 202, Volume: 30_000_000}},
		},
		Errors: map[string]error{"9999": collector.ErrNoData},
	}
	col := collector.NewCollector(mock, scan.LatestBar{}, 5, 2, nil)
	wl := model.Watchlist{{ID: "2330", Name: "台積電"}, {ID: "2603", Name: "長榮"}}
	r := radar.New(col, wl, nil, nil, nil)
	p := scan.NewPipeline(model.ScanCriterion{MinChangePercent: 1}, 20)
	return NewScheduler(context.Background(), r, p, sender, time.UTC, nil)
}

func TestHandleCommand(t *testing.T) {
	s := newTestScheduler(nil)

	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"manual cdp", "/cdp 225 220 222", []string{"222.25", "227.25", "224.50", "219.50", "217.25"}},
		{"manual cdp invalid", "/cdp 220 225 222", []string{"輸入無效"}},
		{"manual cdp not a number", "/cdp 225 abc 222", []string{"無效的數字: abc"}},
		{"symbol cdp", "/cdp 2603", []string{"2603 長榮", "2024-01-03"}},
		{"symbol cdp missing", "/cdp 9999", []string{"無法取得 9999"}},
		{"bad arity", "/cdp 1 2", []string{"用法"}},
		{"scan", "/scan", []string{"市場雷達", "1. <b>2603 長榮</b>", "2. <b>2330 台積電</b>"}},
		{"scan with bot suffix", "/scan@CDPRadarBot", []string{"市場雷達"}},
		{"watchlist", "/watchlist", []string{"• 2330 台積電", "• 2603 長榮"}},
		{"unknown", "hello", []string{"可用命令"}},
		{"empty", "   ", []string{"可用命令"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.HandleCommand(context.Background(), tt.command)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("reply to %q missing %q:\n%s", tt.command, w, got)
				}
			}
		})
	}
}

func TestRunScanNow_SendsReport(t *testing.T) {
	sender := &fakeSender{}
	s := newTestScheduler(sender)
	s.RunScanNow()

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "入選 2") {
		t.Errorf("unexpected report:\n%s", sender.sent[0])
	}
}

func TestRunScanNow_WithoutTelegram(t *testing.T) {
	s := newTestScheduler(nil)
	run := s.runScan(radar.TriggerCron)
	if run.Report.Evaluated != 2 {
		t.Errorf("expected 2 evaluated, got %d", run.Report.Evaluated)
	}
}

func TestRegisterScan(t *testing.T) {
	s := newTestScheduler(nil)
	if err := s.RegisterScan("0 40 13 * * 1-5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Cron.Entries()) != 1 {
		t.Errorf("expected 1 entry, got %d", len(s.Cron.Entries()))
	}
	if err := s.RegisterScan("40 13 * * 1-5"); err == nil {
		t.Error("expected error for a five-field spec")
	}
}

func TestStop_WaitsForBackgroundScan(t *testing.T) {
	gate := &gatedSender{started: make(chan struct{}), release: make(chan struct{})}
	s := newTestScheduler(gate)
	s.Start()
	s.RunScanAsync()
	<-gate.started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the startup scan was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the scan finished")
	}
}
