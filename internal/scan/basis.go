package scan

import (
	"fmt"
	"time"

	"CDPRadar/internal/model"
)

// BasisSelector picks the bar that feeds the pivots out of a chronological series.
type BasisSelector interface {
	Select(bars []model.OHLCV, now time.Time) (model.OHLCV, bool)
	Name() string
}

// LatestBar always uses the most recent bar.
type LatestBar struct{}

func (LatestBar) Name() string { return "latest" }

func (LatestBar) Select(bars []model.OHLCV, _ time.Time) (model.OHLCV, bool) {
	if len(bars) == 0 {
		return model.OHLCV{}, false
	}
	return bars[len(bars)-1], true
}

// PriorSession uses the latest bar dated before today in Location, so an
// in-progress session never feeds the pivots.
type PriorSession struct {
	Location *time.Location
}

func (PriorSession) Name() string { return "prior" }

func (s PriorSession) Select(bars []model.OHLCV, now time.Time) (model.OHLCV, bool) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	today := dateOf(now, loc)
	for i := len(bars) - 1; i >= 0; i-- {
		if dateOf(bars[i].Time, loc).Before(today) {
			return bars[i], true
		}
	}
	return model.OHLCV{}, false
}

// SessionAware behaves like PriorSession before the market close and like
// LatestBar from the close onwards.
type SessionAware struct {
	Location    *time.Location
	CloseHour   int
	CloseMinute int
}

func (SessionAware) Name() string { return "session" }

func (s SessionAware) Select(bars []model.OHLCV, now time.Time) (model.OHLCV, bool) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	closeAt := time.Date(local.Year(), local.Month(), local.Day(), s.CloseHour, s.CloseMinute, 0, 0, loc)
	if local.Before(closeAt) {
		return PriorSession{Location: loc}.Select(bars, now)
	}
	return LatestBar{}.Select(bars, now)
}

// ParseBasis resolves latest|prior|session. The session variant uses the
// TWSE close of 13:30.
func ParseBasis(name string, loc *time.Location) (BasisSelector, error) {
	switch name {
	case "", "latest":
		return LatestBar{}, nil
	case "prior":
		return PriorSession{Location: loc}, nil
	case "session":
		return SessionAware{Location: loc, CloseHour: 13, CloseMinute: 30}, nil
	default:
		return nil, fmt.Errorf("unknown basis %q", name)
	}
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
