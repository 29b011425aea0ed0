package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"CDPRadar/internal/calculator"
	"CDPRadar/internal/logger"
	"CDPRadar/internal/model"
	"CDPRadar/internal/notifier"
	"CDPRadar/internal/radar"
	"CDPRadar/internal/scan"

	"github.com/robfig/cron/v3"
)

const sendRetries = 3

// Sender delivers chat messages. *notifier.TelegramNotifier implements it.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler runs the post-close scan on a cron and answers bot commands.
type Scheduler struct {
	Cron     *cron.Cron
	Radar    *radar.Radar
	Pipeline *scan.Pipeline
	Notifier Sender // nil when Telegram is not configured
	Log      *logger.Logger
	Ctx      context.Context

	background sync.WaitGroup
}

// NewScheduler creates a Scheduler whose cron specs are evaluated in loc.
func NewScheduler(ctx context.Context, r *radar.Radar, p *scan.Pipeline, sender Sender, loc *time.Location, log *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Radar:    r,
		Pipeline: p,
		Notifier: sender,
		Log:      log,
		Ctx:      ctx,
	}
}

// RegisterScan registers the daily scan task.
func (s *Scheduler) RegisterScan(scanCron string) error {
	if _, err := s.Cron.AddFunc(scanCron, s.scanTask); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started", logger.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running scans, cron or
// background, to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.background.Wait()
	s.Log.Info("scheduler stopped")
}

// RunScanNow executes the scan task immediately (RUN_ON_START).
func (s *Scheduler) RunScanNow() {
	s.runScan(radar.TriggerStartup)
}

// RunScanAsync runs RunScanNow in the background. Stop waits for it.
// Call it before Stop.
func (s *Scheduler) RunScanAsync() {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.RunScanNow()
	}()
}

func (s *Scheduler) scanTask() {
	s.runScan(radar.TriggerCron)
}

func (s *Scheduler) runScan(trigger string) *radar.Run {
	s.Log.Info("running scan task", logger.String("trigger", trigger))
	run := s.Radar.Scan(s.Ctx, s.Pipeline, trigger)
	s.trySend(notifier.FormatScanReport(run.Report, run.Criterion))
	return run
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	// Telegram appends the bot name in group chats: /scan@CDPRadarBot.
	name := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	args := fields[1:]

	switch name {
	case "/cdp", "計算":
		return s.handleCDP(ctx, args)
	case "/scan", "掃描":
		run := s.Radar.Scan(ctx, s.Pipeline, radar.TriggerCommand)
		return notifier.FormatScanReport(run.Report, run.Criterion)
	case "/watchlist", "清單":
		return notifier.FormatWatchlist(s.Radar.Watchlist)
	default:
		return helpText
	}
}

const helpText = "可用命令:\n" +
	"• /cdp 最高 最低 收盤  手動計算明日點位\n" +
	"• /cdp 代號  以最新K線計算點位\n" +
	"• /scan  市場雷達\n" +
	"• /watchlist  觀察清單"

func (s *Scheduler) handleCDP(ctx context.Context, args []string) string {
	switch len(args) {
	case 1:
		symbol := args[0]
		name, bar, levels, err := s.Radar.Pivots(ctx, symbol)
		if err != nil {
			s.Log.Warn("pivot lookup failed", logger.String("symbol", symbol), logger.Error(err))
			return fmt.Sprintf("❌ 無法取得 %s 的K線資料", symbol)
		}
		return notifier.FormatPivotCard(symbol, name, bar, levels)
	case 3:
		vals := make([]float64, 3)
		for i, a := range args {
			v, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return fmt.Sprintf("❌ 無效的數字: %s", a)
			}
			vals[i] = v
		}
		high, low, closePrice := vals[0], vals[1], vals[2]
		levels, err := calculator.CalculateCDP(high, low, closePrice)
		if errors.Is(err, calculator.ErrInvalidInput) {
			return "❌ 輸入無效: 需 最高 ≥ 收盤 ≥ 最低 ≥ 0"
		}
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		return notifier.FormatPivotCard("", "", model.OHLCV{High: high, Low: low, Close: closePrice}, levels)
	default:
		return "用法: /cdp 最高 最低 收盤 或 /cdp 代號"
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		s.Log.Debug("telegram disabled, report not sent")
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, sendRetries); err != nil {
		s.Log.Error("send notification", logger.Error(err))
	}
}
