package recorder

import (
	"database/sql"
	"fmt"
	"sync"

	"CDPRadar/internal/logger"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists scan history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logger.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *logger.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", logger.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scan_runs (
			run_id             TEXT PRIMARY KEY,
			timestamp          INTEGER NOT NULL,
			trigger_source     TEXT,
			provider           TEXT,
			basis              TEXT,
			min_volume         INTEGER,
			min_change_percent REAL,
			max_price          REAL,
			evaluated          INTEGER,
			results            INTEGER,
			skipped            INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_runs_ts ON scan_runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS scan_results (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         TEXT NOT NULL REFERENCES scan_runs(run_id),
			rank           INTEGER NOT NULL,
			instrument_id  TEXT NOT NULL,
			name           TEXT,
			bar_time       INTEGER,
			open           REAL,
			high           REAL,
			low            REAL,
			close          REAL,
			volume         INTEGER,
			change_percent REAL,
			cdp            REAL,
			ah             REAL,
			nh             REAL,
			nl             REAL,
			al             REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_results_run ON scan_results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_results_inst ON scan_results(instrument_id)`,

		`CREATE TABLE IF NOT EXISTS scan_skips (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id        TEXT NOT NULL REFERENCES scan_runs(run_id),
			instrument_id TEXT NOT NULL,
			reason        TEXT NOT NULL,
			detail        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_skips_run ON scan_skips(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordScan writes one run with its ranked rows and skips in a single transaction.
func (r *SQLiteRecorder) RecordScan(snap *ScanSnapshot) error {
	if snap == nil || snap.Report == nil {
		return fmt.Errorf("record scan: empty snapshot")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rep := snap.Report
	crit := snap.Criterion
	if _, err := tx.Exec(`INSERT INTO scan_runs
		(run_id, timestamp, trigger_source, provider, basis,
		 min_volume, min_change_percent, max_price,
		 evaluated, results, skipped)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		snap.RunID, snap.StartedAt.Unix(), snap.Trigger, snap.Provider, snap.Basis,
		crit.MinVolume, crit.MinChangePercent, crit.MaxPrice,
		rep.Evaluated, len(rep.Results), len(rep.Skipped),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, res := range rep.Results {
		lv := res.Levels
		if _, err := tx.Exec(`INSERT INTO scan_results
			(run_id, rank, instrument_id, name, bar_time,
			 open, high, low, close, volume, change_percent,
			 cdp, ah, nh, nl, al)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			snap.RunID, res.Rank, res.InstrumentID, res.Name, res.Bar.Time.Unix(),
			res.Bar.Open, res.Bar.High, res.Bar.Low, res.Bar.Close, res.Volume, res.ChangePercent,
			lv.CDP, lv.AH, lv.NH, lv.NL, lv.AL,
		); err != nil {
			return fmt.Errorf("insert result %s: %w", res.InstrumentID, err)
		}
	}

	for _, sk := range rep.Skipped {
		if _, err := tx.Exec(`INSERT INTO scan_skips
			(run_id, instrument_id, reason, detail)
			VALUES (?,?,?,?)`,
			snap.RunID, sk.InstrumentID, string(sk.Reason), sk.Detail,
		); err != nil {
			return fmt.Errorf("insert skip %s: %w", sk.InstrumentID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
