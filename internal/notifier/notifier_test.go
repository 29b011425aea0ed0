package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"CDPRadar/internal/model"
	"CDPRadar/internal/scan"
)

func TestFormatPivotCard(t *testing.T) {
	bar := model.OHLCV{
		Time:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Open:   221,
		High:   225,
		Low:    220,
		Close:  222,
		Volume: 5_000_000,
	}
	levels := model.PivotLevels{CDP: 222.25, AH: 227.25, NH: 224.5, NL: 219.5, AL: 217.25}

	msg := FormatPivotCard("2330", "台積電", bar, levels)
	for _, want := range []string{"2330 台積電", "2024-01-03", "227.25", "224.50", "222.25", "219.50", "217.25", "5000 張"} {
		if !strings.Contains(msg, want) {
			t.Errorf("card missing %q:\n%s", want, msg)
		}
	}

	manual := FormatPivotCard("", "", model.OHLCV{High: 225, Low: 220, Close: 222}, levels)
	if !strings.Contains(manual, "明日點位") {
		t.Errorf("manual card missing title:\n%s", manual)
	}
	if strings.Contains(manual, "成交量") {
		t.Errorf("manual card should omit volume:\n%s", manual)
	}
}

func TestFormatScanReport(t *testing.T) {
	report := &scan.Report{
		Results: []model.ScanResult{
			{Rank: 1, InstrumentID: "2603", Name: "長榮", Volume: 30_000_000, ChangePercent: 6.5,
				Bar: model.OHLCV{Close: 200}, Levels: model.PivotLevels{NH: 205, NL: 195}},
			{Rank: 2, InstrumentID: "3231", Name: "<緯創>", Volume: 8_000_000, ChangePercent: 3.1,
				Bar: model.OHLCV{Close: 110}, Levels: model.PivotLevels{NH: 112, NL: 108}},
		},
		Skipped: []scan.Skip{
			{InstrumentID: "2330", Reason: scan.SkipFiltered},
			{InstrumentID: "9999", Reason: scan.SkipMissingData},
		},
		Evaluated: 4,
	}
	msg := FormatScanReport(report, model.ScanCriterion{MinVolume: 2_000_000, MinChangePercent: 1.5, MaxPrice: 500})

	for _, want := range []string{"1. <b>2603 長榮</b> +6.50%", "30000 張", "205.00", "&lt;緯創&gt;", "掃描 4 檔", "入選 2", "略過 2", "資料異常 1", "價 ≤ 500.00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report missing %q:\n%s", want, msg)
		}
	}
	if strings.Index(msg, "2603") > strings.Index(msg, "3231") {
		t.Error("results should appear in rank order")
	}
}

func TestFormatScanReport_Empty(t *testing.T) {
	msg := FormatScanReport(&scan.Report{}, model.ScanCriterion{})
	if !strings.Contains(msg, "無符合條件") {
		t.Errorf("expected empty notice:\n%s", msg)
	}
	if strings.Contains(msg, "價 ≤") {
		t.Error("price ceiling should be hidden when unset")
	}
}

func TestFormatWatchlist(t *testing.T) {
	msg := FormatWatchlist(model.Watchlist{{ID: "2330", Name: "台積電"}, {ID: "2317", Name: "鴻海"}})
	if !strings.Contains(msg, "(2)") || !strings.Contains(msg, "• 2317 鴻海") {
		t.Errorf("unexpected watchlist:\n%s", msg)
	}
}

func TestSendWithRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["chat_id"] != "42" || payload["parse_mode"] != "HTML" {
			t.Errorf("unexpected payload %v", payload)
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "", nil)
	tn.BaseURL = srv.URL
	tn.Backoff = time.Millisecond

	if err := tn.SendWithRetry(context.Background(), "hi", 3); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "", nil)
	tn.BaseURL = srv.URL
	tn.Backoff = time.Millisecond

	err := tn.SendWithRetry(context.Background(), "hi", 1)
	if err == nil || !strings.Contains(err.Error(), "all 2 retries exhausted") {
		t.Errorf("expected exhausted error, got %v", err)
	}
}

func TestStartPolling_DispatchesCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replies := make(chan string, 1)
	var polled int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if atomic.AddInt32(&polled, 1) == 1 {
				_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"text":" /watchlist "}}]}`))
				return
			}
			if r.URL.Query().Get("offset") != "8" {
				t.Errorf("expected offset 8, got %s", r.URL.Query().Get("offset"))
			}
			cancel()
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload map[string]string
			_ = json.NewDecoder(r.Body).Decode(&payload)
			replies <- payload["text"]
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "", nil)
	tn.BaseURL = srv.URL

	done := make(chan struct{})
	go func() {
		tn.StartPolling(ctx, func(_ context.Context, cmd string) string { return "got " + cmd })
		close(done)
	}()

	select {
	case reply := <-replies:
		if reply != "got /watchlist" {
			t.Errorf("unexpected reply %q", reply)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}
}
