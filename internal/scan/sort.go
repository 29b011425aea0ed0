package scan

import (
	"fmt"

	"CDPRadar/internal/model"
)

// SortKey reports whether a ranks strictly ahead of b.
type SortKey func(a, b model.ScanResult) bool

// ByChangePercent ranks the biggest gainers first.
func ByChangePercent(a, b model.ScanResult) bool {
	return a.ChangePercent > b.ChangePercent
}

// ByVolume ranks the most traded instruments first.
func ByVolume(a, b model.ScanResult) bool {
	return a.Volume > b.Volume
}

// ByTurnover ranks by close * volume.
func ByTurnover(a, b model.ScanResult) bool {
	return a.Turnover() > b.Turnover()
}

var sortKeys = map[string]SortKey{
	"change_percent": ByChangePercent,
	"volume":         ByVolume,
	"turnover":       ByTurnover,
}

// ParseSortKey resolves a configured sort key name. Empty means change_percent.
func ParseSortKey(name string) (SortKey, error) {
	if name == "" {
		return ByChangePercent, nil
	}
	k, ok := sortKeys[name]
	if !ok {
		return nil, fmt.Errorf("unknown sort key %q", name)
	}
	return k, nil
}
