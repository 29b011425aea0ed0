package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"CDPRadar/internal/cache"
	"CDPRadar/internal/collector"
	"CDPRadar/internal/config"
	"CDPRadar/internal/logger"
	"CDPRadar/internal/metrics"
	"CDPRadar/internal/notifier"
	"CDPRadar/internal/radar"
	"CDPRadar/internal/recorder"
	"CDPRadar/internal/scan"
	"CDPRadar/internal/scheduler"
	"CDPRadar/internal/server"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	log, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("CDPRadar starting", logger.String("config", cfgPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fetcher
	var fetcher collector.Fetcher
	switch cfg.DataSource.Provider {
	case "twse":
		fetcher = collector.NewTWSEFetcher(cfg.Proxy, cfg.DataSource.Timeout)
	case "mock":
		fetcher = &collector.MockFetcher{}
		log.Warn("using synthetic market data")
	default:
		fetcher = collector.NewYahooFetcher(cfg.DataSource.SymbolSuffix, cfg.Proxy, cfg.DataSource.Timeout)
	}
	log.Info("data source ready", logger.String("provider", fetcher.Name()))

	basis, err := scan.ParseBasis(cfg.Scan.Basis, cfg.Location())
	if err != nil {
		return fmt.Errorf("scan basis: %w", err)
	}

	// Bar cache
	var barCache cache.Service
	if cfg.Cache.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.Redis.Addr,
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix(cfg.Cache.Redis.Prefix))
		if err != nil {
			log.Warn("redis unavailable, using in-memory cache", logger.Error(err))
		} else {
			barCache = rc
		}
	}
	if barCache == nil {
		barCache = cache.NewMemoryCache(4096, time.Minute)
	}
	defer barCache.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	col := collector.NewCollector(fetcher, basis, cfg.DataSource.LookbackDays, cfg.DataSource.Concurrency, log)
	col.Cache = barCache
	col.CacheTTL = cfg.Cache.TTL
	col.Metrics = m

	// Scan journal
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
			log.Warn("create sqlite dir", logger.Error(err))
		}
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn("init sqlite recorder failed, using noop", logger.Error(err))
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	rdr := radar.New(col, cfg.Watchlist, rec, m, log)

	order, err := scan.ParseSortKey(cfg.Scan.SortBy)
	if err != nil {
		return fmt.Errorf("scan sort: %w", err)
	}
	pipeline := scan.NewPipeline(cfg.Criterion(), cfg.Scan.TopN)
	pipeline.Order = order

	// Telegram is optional; without it scans still run and are journaled.
	var tn *notifier.TelegramNotifier
	var sender scheduler.Sender
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		sender = tn
	} else {
		log.Warn("telegram not configured, bot commands disabled")
	}

	sched := scheduler.NewScheduler(ctx, rdr, pipeline, sender, cfg.Location(), log)
	if err := sched.RegisterScan(cfg.Schedule.ScanCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	pollDone := make(chan struct{})
	if tn != nil {
		go func() {
			defer close(pollDone)
			tn.StartPolling(ctx, sched.HandleCommand)
		}()
		log.Info("telegram polling started")
	} else {
		close(pollDone)
	}

	var srv *server.Server
	if !cfg.Server.Disabled {
		handler := server.NewHandler(rdr, server.ScanDefaults{
			Criterion: cfg.Criterion(),
			TopN:      cfg.Scan.TopN,
			SortBy:    cfg.Scan.SortBy,
		}, log)
		srv = server.NewServer(handler, log,
			server.WithHost(cfg.Server.Host),
			server.WithPort(cfg.Server.Port))
		srv.Start()
	}

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info("RUN_ON_START enabled, executing scan now")
		sched.RunScanAsync()
	}

	log.Info("CDPRadar is running", logger.Int("watchlist", len(cfg.Watchlist)), logger.String("scan_cron", cfg.Schedule.ScanCron))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping")
	cancel()
	if srv != nil {
		if err := srv.Stop(context.Background()); err != nil {
			log.Error("stop http server", logger.Error(err))
		}
	}
	// a /scan command may still be journaling
	<-pollDone
	// deferred sched.Stop waits for cron and startup scans before rec.Close runs
	log.Info("CDPRadar stopped")
	return nil
}
