package recorder

import (
	"time"

	"CDPRadar/internal/model"
	"CDPRadar/internal/scan"
)

// ScanSnapshot holds everything journaled for one scan run.
type ScanSnapshot struct {
	RunID     string
	StartedAt time.Time
	Provider  string
	Basis     string
	Trigger   string // "cron", "command", "api" or "startup"
	Criterion model.ScanCriterion
	Report    *scan.Report
}

// Recorder persists scan history for later analysis. Nothing in the scan
// path reads it back.
type Recorder interface {
	RecordScan(snap *ScanSnapshot) error
	Close() error
}
